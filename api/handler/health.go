package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/christianvidalwolf-prog/promochecker/detector"
	"github.com/christianvidalwolf-prog/promochecker/models"
)

// Health returns a handler for GET /api/v1/health.
//
// Status is "busy" while the worker drives the browser, "healthy" otherwise.
func Health(q JobQueue, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := q.Stats()

		status := "healthy"
		if stats.Running != "" {
			status = "busy"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:     status,
			Uptime:     time.Since(startTime).Round(time.Second).String(),
			QueueStats: stats,
			Version:    Version,
			Pipeline:   detector.PipelineVersion,
		})
	}
}
