package renderer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/christianvidalwolf-prog/promochecker/config"
	"github.com/christianvidalwolf-prog/promochecker/models"
)

// RodLauncher starts a Chromium process per session.
type RodLauncher struct {
	cfg config.BrowserConfig
}

// NewRodLauncher creates a launcher for the given browser settings.
func NewRodLauncher(cfg config.BrowserConfig) *RodLauncher {
	return &RodLauncher{cfg: cfg}
}

// Launch starts Chromium, connects to it and opens exactly one page with the
// user agent, stealth script and request hijacking installed.
func (l *RodLauncher) Launch(ctx context.Context, headless bool) (Session, error) {
	lch := launcher.New().
		Context(ctx).
		Headless(headless).
		NoSandbox(l.cfg.NoSandbox)

	if l.cfg.BrowserBin != "" {
		lch = lch.Bin(l.cfg.BrowserBin)
	}
	if l.cfg.Proxy != "" {
		lch = lch.Proxy(l.cfg.Proxy)
	}

	// ── Anti-automation flags ────────────────────────────────────────
	lch.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	lch.Delete(flags.Flag("enable-automation"))
	lch.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	lch.Set(flags.Flag("disable-popup-blocking"))
	lch.Set(flags.Flag("disable-renderer-backgrounding"))
	lch.Set(flags.Flag("disable-background-timer-throttling"))
	lch.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	lch.Set(flags.Flag("disable-component-update"))
	lch.Set(flags.Flag("disable-default-apps"))
	lch.Set(flags.Flag("disable-dev-shm-usage"))
	lch.Set(flags.Flag("disable-extensions"))
	lch.Set(flags.Flag("no-first-run"))
	lch.Set(flags.Flag("window-size"), "1366,900")

	controlURL, err := lch.Launch()
	if err != nil {
		return nil, models.NewCheckError(
			models.ErrCodeBrowserCrash,
			"failed to launch browser",
			err,
		)
	}
	slog.Info("browser launched", "controlURL", controlURL, "headless", headless)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		lch.Kill()
		return nil, models.NewCheckError(
			models.ErrCodeBrowserCrash,
			"failed to connect to browser",
			err,
		)
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = browser.Close()
		lch.Cleanup()
		return nil, models.NewCheckError(
			models.ErrCodeBrowserCrash,
			"failed to open page",
			err,
		)
	}

	ua := l.cfg.UserAgent
	if ua == "" {
		ua = config.DefaultUserAgent
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua}); err != nil {
		slog.Warn("user agent override failed", "error", err)
	}

	if l.cfg.AcceptLanguage != "" {
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeadersMap(map[string]string{"Accept-Language": l.cfg.AcceptLanguage}),
		}.Call(page)
	}

	// Stealth and hijacking must be installed before the first navigation.
	if l.cfg.Stealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth",
				"error", evalErr,
			)
		}
	}
	router := setupHijack(page, l.cfg.BlockedResourceTypes, l.cfg.BlockAds)

	return &rodSession{
		launcher: lch,
		browser:  browser,
		router:   router,
		page:     &rodPage{page: page},
	}, nil
}

type rodSession struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	router   *rod.HijackRouter
	page     *rodPage
}

func (s *rodSession) Page() Page { return s.page }

// Close stops the hijack router, closes the page and the browser, and waits
// for the Chromium process to exit.
func (s *rodSession) Close() error {
	var errs []error
	if s.router != nil {
		if err := s.router.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.page.page.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.browser.Close(); err != nil {
		errs = append(errs, err)
	}
	s.launcher.Cleanup()
	slog.Info("browser session closed")
	return errors.Join(errs...)
}

type rodPage struct {
	page *rod.Page
}

// Navigate registers a DOMContentLoaded waiter before navigating so the event
// cannot be missed, then waits for it within timeout.
func (p *rodPage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	pg := p.page.Context(ctx)
	wait := pg.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := pg.Navigate(url); err != nil {
		return categorizeError(err, "navigation to product page failed")
	}
	wait()

	if err := ctx.Err(); err != nil {
		return categorizeError(err, "page did not reach DOMContentLoaded")
	}
	return nil
}

func (p *rodPage) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	els, err := p.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, err
	}
	return wrapRodElements(els), nil
}

func (p *rodPage) Title(ctx context.Context) (string, error) {
	res, err := p.page.Context(ctx).Eval(`() => document.title`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

type rodElement struct {
	el *rod.Element
}

func wrapRodElements(els rod.Elements) []Element {
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el})
	}
	return out
}

func (e *rodElement) Visible() (bool, error) {
	return e.el.Visible()
}

// Text reads the DOM textContent property, which unlike innerText also
// covers visually offscreen price spans.
func (e *rodElement) Text() (string, error) {
	v, err := e.el.Property("textContent")
	if err != nil {
		return "", err
	}
	if v.Nil() {
		return "", nil
	}
	return v.Str(), nil
}

func (e *rodElement) QueryAll(selector string) ([]Element, error) {
	els, err := e.el.Elements(selector)
	if err != nil {
		return nil, err
	}
	return wrapRodElements(els), nil
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
