package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/christianvidalwolf-prog/promochecker/api"
	"github.com/christianvidalwolf-prog/promochecker/batch"
	"github.com/christianvidalwolf-prog/promochecker/config"
	"github.com/christianvidalwolf-prog/promochecker/detector"
	"github.com/christianvidalwolf-prog/promochecker/jobs"
	"github.com/christianvidalwolf-prog/promochecker/logging"
	"github.com/christianvidalwolf-prog/promochecker/renderer"
	"github.com/christianvidalwolf-prog/promochecker/webhook"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	_ = godotenv.Load()
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	logging.Init(cfg.Log, nil)
	slog.Info("promocheck server starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"engine", cfg.Batch.Engine,
		"pipeline", detector.PipelineVersion,
	)

	if err := detector.ValidateSelectors(); err != nil {
		slog.Error("detector selector table is invalid", "error", err)
		os.Exit(1)
	}

	// ── 3. Renderer, detector and batch runner ──────────────────────
	launcher, err := renderer.NewLauncher(cfg.Batch.Engine, cfg.Browser)
	if err != nil {
		slog.Error("failed to initialise renderer", "error", err)
		os.Exit(1)
	}
	runner := batch.NewRunner(launcher, detector.New(cfg.Detector), cfg.Batch)

	// ── 4. Job store and the single worker ──────────────────────────
	store := jobs.NewStore(cfg.Jobs)
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := jobs.NewQueue(store, runner, webhook.NewNotifier(cfg.Auth.WebhookSecret), 0)
	queue.Start(ctx)

	// ── 5. Setup router ─────────────────────────────────────────────
	router := api.NewRouter(ctx, cfg, queue, store, time.Now())

	// ── 6. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 7. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// Stopping the queue cancels a running batch between items and closes
	// its browser session.
	queue.Stop()
	slog.Info("promocheck server stopped")
}
