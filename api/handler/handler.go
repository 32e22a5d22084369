package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/christianvidalwolf-prog/promochecker/models"
)

// Version is reported by the health endpoint.
var Version = "0.1.0"

// JobQueue is the part of the job worker the handlers drive.
// *jobs.Queue implements it.
type JobQueue interface {
	Check(ctx context.Context, in models.ProductCheckInput, headless bool) (models.PromoCheckResult, error)
	Submit(jobID string) error
	SubmitRetry(jobID string) error
	Stats() models.QueueStats
}

// abortWithError writes the shared error envelope used by every endpoint.
func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, models.CheckResponse{
		Success: false,
		Error:   &models.ErrorDetail{Code: code, Message: message},
	})
}
