package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/christianvidalwolf-prog/promochecker/api/handler"
	"github.com/christianvidalwolf-prog/promochecker/api/middleware"
	"github.com/christianvidalwolf-prog/promochecker/config"
	"github.com/christianvidalwolf-prog/promochecker/jobs"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health stays outside auth so monitoring probes always work.
// ctx bounds the rate limiter's background sweep.
func NewRouter(ctx context.Context, cfg *config.Config, q handler.JobQueue, store *jobs.Store, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	v1.GET("/health", handler.Health(q, startTime))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(ctx, cfg.RateLimit))

	// Single check
	protected.POST("/check", handler.Check(q, cfg))

	// Batch
	protected.POST("/batch/check", handler.PostBatch(q, store, cfg))
	protected.GET("/batch/:id", handler.GetBatch(store))
	protected.POST("/batch/:id/retry", handler.RetryBatch(q, store))
	protected.GET("/batch/:id/report", handler.BatchReport(store))

	return r
}
