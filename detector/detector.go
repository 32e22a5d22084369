// Package detector decides whether a rendered product page shows an active
// promotion and reconciles its price readings.
package detector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/christianvidalwolf-prog/promochecker/config"
	"github.com/christianvidalwolf-prog/promochecker/models"
	"github.com/christianvidalwolf-prog/promochecker/renderer"
)

// Detector runs the detection pipeline. It holds configuration only, never
// state from a previous page, so one Detector serves a whole batch.
type Detector struct {
	cfg    config.DetectorConfig
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(min, max time.Duration) time.Duration
}

// Option configures a Detector.
type Option func(*Detector)

// WithSleep replaces the function used for the retry pause and the dwell.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(d *Detector) { d.sleep = fn }
}

// WithJitter replaces the random duration source for the dwell.
func WithJitter(fn func(min, max time.Duration) time.Duration) Option {
	return func(d *Detector) { d.jitter = fn }
}

// New creates a Detector.
func New(cfg config.DetectorConfig, opts ...Option) *Detector {
	d := &Detector{
		cfg:    cfg,
		sleep:  Sleep,
		jitter: Jitter,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.cfg.NavigationAttempts < 1 {
		d.cfg.NavigationAttempts = 1
	}
	return d
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Jitter returns a uniformly random duration in [min, max].
func Jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + rand.N(max-min+1)
}

// errBotCheck marks the bot-check short circuit inside the pipeline.
var errBotCheck = models.NewCheckError(models.ErrCodeBotCheck, "bot check page detected", nil)

// Detect checks one product page. It never returns an error and never
// panics: every failure maps to an ERROR_* result. The check runs detached
// from ctx cancellation so a batch abort never interrupts a page mid-check.
func (d *Detector) Detect(ctx context.Context, page renderer.Page, url string) (result models.PromoCheckResult) {
	ctx = context.WithoutCancel(ctx)
	target := models.NormalizeURL(url)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("detector panic", "url", target, "panic", r)
			result = models.FailedResult(0, target, models.StatusErrorException, fmt.Sprint(r))
		}
	}()

	if err := d.navigate(ctx, page, target); err != nil {
		slog.Warn("navigation exhausted", "url", target, "attempts", d.cfg.NavigationAttempts, "error", err)
		details := fmt.Sprintf("page did not load after %d attempts (%s timeout each): %v",
			d.cfg.NavigationAttempts, d.cfg.NavigationTimeout, err)
		return models.FailedResult(0, target, models.StatusErrorTimeout, details)
	}

	c := newPageCheck(d.cfg, page)
	if err := c.run(ctx, d); err != nil {
		if errors.Is(err, errBotCheck) {
			slog.Warn("bot check page", "url", target, "code", models.CodeOf(err), "title", c.title)
			return models.FailedResult(0, target, models.StatusErrorCaptcha,
				fmt.Sprintf("%v (title %q)", err, c.title))
		}
		slog.Warn("detection failed", "url", target, "error", err)
		return models.FailedResult(0, target, models.StatusErrorException, err.Error())
	}

	result = c.fuse(target)
	slog.Debug("page checked",
		"url", target,
		"status", result.Status,
		"signals", len(result.Signals),
		"elapsed", time.Since(start),
	)
	return result
}

// navigate is stage 1: bounded attempts with a fixed pause in between.
func (d *Detector) navigate(ctx context.Context, page renderer.Page, url string) error {
	var lastErr error
	for attempt := 1; attempt <= d.cfg.NavigationAttempts; attempt++ {
		err := page.Navigate(ctx, url, d.cfg.NavigationTimeout)
		if err == nil {
			return nil
		}
		lastErr = err
		slog.Info("navigation attempt failed", "url", url, "attempt", attempt, "error", err)
		if attempt < d.cfg.NavigationAttempts {
			if err := d.sleep(ctx, d.cfg.RetryPause); err != nil {
				return err
			}
		}
	}
	return lastErr
}

// isBotCheckTitle reports whether title matches a known robot-check page.
func isBotCheckTitle(title string) bool {
	lower := strings.ToLower(title)
	for _, sig := range captchaSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}
