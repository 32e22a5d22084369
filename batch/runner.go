// Package batch drives the detector over a list of product pages with one
// browser session, pacing between pages and selective retry of failures.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/christianvidalwolf-prog/promochecker/config"
	"github.com/christianvidalwolf-prog/promochecker/detector"
	"github.com/christianvidalwolf-prog/promochecker/models"
	"github.com/christianvidalwolf-prog/promochecker/renderer"
)

// Checker inspects one loaded page. *detector.Detector implements it.
type Checker interface {
	Detect(ctx context.Context, page renderer.Page, url string) models.PromoCheckResult
}

// ProgressFunc receives the fraction of the batch started so far, then 1.0.
type ProgressFunc func(fraction float64)

// Runner processes batches strictly serially over a single page.
type Runner struct {
	launcher renderer.Launcher
	checker  Checker
	cfg      config.BatchConfig

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(min, max time.Duration) time.Duration
	now    func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithSleep replaces the pause between items.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Runner) { r.sleep = fn }
}

// WithJitter replaces the random pause length source.
func WithJitter(fn func(min, max time.Duration) time.Duration) Option {
	return func(r *Runner) { r.jitter = fn }
}

// WithClock replaces the clock used for CheckedAt.
func WithClock(fn func() time.Time) Option {
	return func(r *Runner) { r.now = fn }
}

// NewRunner creates a Runner.
func NewRunner(l renderer.Launcher, c Checker, cfg config.BatchConfig, opts ...Option) *Runner {
	r := &Runner{
		launcher: l,
		checker:  c,
		cfg:      cfg,
		sleep:    detector.Sleep,
		jitter:   detector.Jitter,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ProcessAll checks every input in order and returns exactly one result per
// input, in input order. Per-item failures never abort the batch.
//
// Cancellation is observed between items only. The remaining rows are then
// filled with ERROR_EXCEPTION and ctx.Err() is returned alongside them.
// A session launch failure yields ERROR_EXCEPTION for every row plus the
// launch error.
func (r *Runner) ProcessAll(ctx context.Context, inputs []models.ProductCheckInput, headless bool, onProgress ProgressFunc) ([]models.PromoCheckResult, error) {
	report := func(f float64) {
		if onProgress != nil {
			onProgress(f)
		}
	}

	results := make([]models.PromoCheckResult, len(inputs))
	if len(inputs) == 0 {
		report(1.0)
		return results, nil
	}

	session, err := r.launcher.Launch(ctx, headless)
	if err != nil {
		slog.Error("browser session launch failed", "error", err, "rows", len(inputs))
		r.fail(results, inputs, 0, fmt.Sprintf("browser session failed to start: %v", err))
		report(1.0)
		return results, err
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			slog.Warn("closing browser session failed", "error", closeErr)
		}
	}()

	page := session.Page()
	total := float64(len(inputs))
	batchStart := time.Now()

	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			slog.Warn("batch cancelled", "done", i, "total", len(inputs))
			r.fail(results, inputs, i, "batch cancelled")
			return results, err
		}
		report(float64(i) / total)

		start := time.Now()
		res := r.checker.Detect(ctx, page, in.URL)
		res.Row = in.Row
		res.CheckedAt = r.now()
		results[i] = res

		slog.Info("product checked",
			"row", in.Row,
			"url", res.URL,
			"status", res.Status,
			"elapsed", time.Since(start),
		)

		if i < len(inputs)-1 {
			// An interrupted pause is picked up by the ctx check above.
			_ = r.sleep(ctx, r.jitter(r.cfg.PauseMin, r.cfg.PauseMax))
		}
	}

	report(1.0)
	slog.Info("batch finished", "rows", len(inputs), "elapsed", time.Since(batchStart))
	return results, nil
}

// fail fills results[from:] with ERROR_EXCEPTION rows.
func (r *Runner) fail(results []models.PromoCheckResult, inputs []models.ProductCheckInput, from int, details string) {
	now := r.now()
	for i := from; i < len(inputs); i++ {
		res := models.FailedResult(inputs[i].Row, inputs[i].NormalizedURL(), models.StatusErrorException, details)
		res.CheckedAt = now
		results[i] = res
	}
}
