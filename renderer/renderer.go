// Package renderer provides navigable, queryable product pages.
//
// Two implementations exist: a real Chromium session driven by Rod, and a
// static snapshot renderer that parses HTML fetched over plain HTTP (or from
// fixtures) with goquery and cascadia.
package renderer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/christianvidalwolf-prog/promochecker/config"
	"github.com/christianvidalwolf-prog/promochecker/models"
)

// Engine names accepted by NewLauncher.
const (
	EngineBrowser = "browser"
	EngineHTTP    = "http"
)

// Element is one node matched by a structural selector.
type Element interface {
	// Visible reports whether the element is rendered and not hidden.
	Visible() (bool, error)

	// Text returns the element's text content, untrimmed.
	Text() (string, error)

	// QueryAll matches selector against the element's descendants.
	QueryAll(selector string) ([]Element, error)
}

// Page is a single browser tab (or its static equivalent).
type Page interface {
	// Navigate loads url and waits for DOM readiness, bounded by timeout.
	Navigate(ctx context.Context, url string, timeout time.Duration) error

	// QueryAll returns every element matching selector in document order.
	// An empty result is not an error.
	QueryAll(ctx context.Context, selector string) ([]Element, error)

	// Title returns the document title.
	Title(ctx context.Context) (string, error)
}

// Session owns the browser process and its one page.
type Session interface {
	Page() Page
	Close() error
}

// Launcher starts sessions.
type Launcher interface {
	Launch(ctx context.Context, headless bool) (Session, error)
}

// NewLauncher returns the launcher for engine: a Rod browser session or a
// static renderer fed by the Chrome-fingerprinted HTTP fetcher.
func NewLauncher(engine string, cfg config.BrowserConfig) (Launcher, error) {
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case "", EngineBrowser:
		return NewRodLauncher(cfg), nil
	case EngineHTTP:
		return NewStaticLauncher(NewHTTPFetcher(cfg)), nil
	default:
		return nil, fmt.Errorf("unknown engine %q (want %q or %q)", engine, EngineBrowser, EngineHTTP)
	}
}

// categorizeError wraps raw errors into typed CheckErrors so callers can
// tell timeouts from other navigation failures.
func categorizeError(err error, msg string) *models.CheckError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewCheckError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewCheckError(models.ErrCodeTimeout, "navigation canceled", err)
	default:
		return models.NewCheckError(models.ErrCodeNavigation, msg, err)
	}
}
