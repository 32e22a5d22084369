// Command promocheck reads a CSV or XLSX list of product pages, checks each
// one for an active promotion and writes the report next to the input columns.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/christianvidalwolf-prog/promochecker/batch"
	"github.com/christianvidalwolf-prog/promochecker/config"
	"github.com/christianvidalwolf-prog/promochecker/detector"
	"github.com/christianvidalwolf-prog/promochecker/logging"
	"github.com/christianvidalwolf-prog/promochecker/models"
	"github.com/christianvidalwolf-prog/promochecker/renderer"
	"github.com/christianvidalwolf-prog/promochecker/sheet"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logging.Init(cfg.Log, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, cfg, os.Args[1:], os.Stderr, renderer.NewLauncher))
}

type launcherFactory func(engine string, cfg config.BrowserConfig) (renderer.Launcher, error)

type options struct {
	input       string
	output      string
	template    string
	headless    bool
	marketplace string
	engine      string
	retries     int
}

func parseFlags(cfg *config.Config, args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("promocheck", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.input, "input", "", "product list to check (.xlsx or .csv) with a URL or ASIN column")
	fs.StringVar(&o.output, "output", "", "report path (.xlsx or .csv); default <input>_report.<ext>")
	fs.StringVar(&o.template, "template", "", "write an input template to this .xlsx path and exit")
	fs.BoolVar(&o.headless, "headless", cfg.Browser.Headless, "run the browser without a window")
	fs.StringVar(&o.marketplace, "marketplace", cfg.Batch.Marketplace,
		"storefront for ASIN columns ("+strings.Join(sheet.MarketplaceCodes(), ", ")+")")
	fs.StringVar(&o.engine, "engine", cfg.Batch.Engine, "page renderer: browser or http")
	fs.IntVar(&o.retries, "retries", 0, "extra passes over rows that ended in an error")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.template == "" && o.input == "" {
		return o, errors.New("-input is required")
	}
	if o.retries < 0 {
		return o, errors.New("-retries must not be negative")
	}
	if o.output == "" && o.input != "" {
		ext := filepath.Ext(o.input)
		o.output = strings.TrimSuffix(o.input, ext) + "_report" + ext
	}
	return o, nil
}

func run(ctx context.Context, cfg *config.Config, args []string, stderr io.Writer, newLauncher launcherFactory) int {
	o, err := parseFlags(cfg, args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, "promocheck:", err)
		return 2
	}

	if o.template != "" {
		if err := writeTemplate(o.template); err != nil {
			fmt.Fprintln(stderr, "promocheck: writing template:", err)
			return 1
		}
		slog.Info("template written", "path", o.template)
		return 0
	}

	// Input problems are fatal before any page is opened.
	table, err := sheet.Read(o.input)
	if err != nil {
		fmt.Fprintf(stderr, "promocheck: [%s] %v\n", models.CodeOf(err), err)
		return 1
	}
	inputs, err := sheet.Inputs(table, o.marketplace)
	if err != nil {
		fmt.Fprintf(stderr, "promocheck: [%s] %v\n", models.CodeOf(err), err)
		return 1
	}
	launcher, err := newLauncher(o.engine, cfg.Browser)
	if err != nil {
		fmt.Fprintln(stderr, "promocheck:", err)
		return 1
	}

	slog.Info("checking products",
		"input", o.input,
		"rows", len(inputs),
		"engine", o.engine,
		"headless", o.headless,
		"pipeline", detector.PipelineVersion,
	)

	runner := batch.NewRunner(launcher, detector.New(cfg.Detector), cfg.Batch)
	start := time.Now()

	results, runErr := runner.ProcessAll(ctx, inputs, o.headless, progressLogger("check"))
	for pass := 1; pass <= o.retries && runErr == nil; pass++ {
		failed := batch.FailedRows(results)
		if len(failed) == 0 {
			break
		}
		slog.Info("retrying failed rows", "pass", pass, "rows", len(failed))
		results, runErr = runner.RetryFailed(ctx, inputs, results, o.headless, progressLogger(fmt.Sprintf("retry %d", pass)))
	}
	if runErr != nil {
		slog.Warn("batch ended early", "error", runErr)
	}

	// Partial results are still written when the run was interrupted.
	if err := sheet.Write(o.output, table, results); err != nil {
		fmt.Fprintln(stderr, "promocheck: writing report:", err)
		return 1
	}

	active, failed := summarize(results)
	slog.Info("report written",
		"output", o.output,
		"rows", len(results),
		"active", active,
		"failed", failed,
		"elapsed", time.Since(start).Round(time.Second),
	)
	if runErr != nil {
		return 1
	}
	return 0
}

// progressLogger logs whole-percent progress steps once each.
func progressLogger(phase string) batch.ProgressFunc {
	last := -1
	return func(f float64) {
		pct := int(f * 100)
		if pct == last {
			return
		}
		last = pct
		slog.Info("progress", "phase", phase, "percent", pct)
	}
}

func summarize(results []models.PromoCheckResult) (active, failed int) {
	for _, r := range results {
		switch {
		case r.Status == models.StatusActive:
			active++
		case r.Status.IsError():
			failed++
		}
	}
	return active, failed
}

func writeTemplate(path string) error {
	if !strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return fmt.Errorf("template must be an .xlsx file, got %q", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := sheet.Template(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
