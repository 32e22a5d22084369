package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/christianvidalwolf-prog/promochecker/config"
	"github.com/christianvidalwolf-prog/promochecker/jobs"
	"github.com/christianvidalwolf-prog/promochecker/models"
	"github.com/christianvidalwolf-prog/promochecker/sheet"
)

// Check returns a handler for POST /api/v1/check.
// The check runs on the job worker and the request waits for it.
func Check(q JobQueue, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.CheckRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, models.ErrCodeInvalidInput, "invalid request body: "+err.Error())
			return
		}

		in, err := resolveInput(0, req.URL, req.ASIN, req.Marketplace, cfg.Batch.Marketplace)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, models.ErrCodeInvalidInput, err.Error())
			return
		}

		res, err := q.Check(c.Request.Context(), in, cfg.Browser.Headless)
		if err != nil {
			writeQueueError(c, err)
			return
		}

		slog.Info("single check finished", "url", res.URL, "status", res.Status)
		c.JSON(http.StatusOK, models.CheckResponse{Success: true, Result: &res})
	}
}

// resolveInput builds one input from a URL or from an ASIN and marketplace.
func resolveInput(row int, rawURL, asin, marketplace, fallback string) (models.ProductCheckInput, error) {
	if u := strings.TrimSpace(rawURL); u != "" {
		return models.ProductCheckInput{Row: row, URL: models.NormalizeURL(u)}, nil
	}
	asin = strings.TrimSpace(asin)
	if asin == "" {
		return models.ProductCheckInput{}, errors.New("url or asin is required")
	}
	if marketplace == "" {
		marketplace = fallback
	}
	domain, ok := sheet.LookupMarketplace(marketplace)
	if !ok {
		return models.ProductCheckInput{}, fmt.Errorf("unknown marketplace %q", marketplace)
	}
	return models.ProductCheckInput{
		Row:         row,
		URL:         sheet.ASINURL(asin, domain),
		ASIN:        asin,
		Marketplace: domain,
	}, nil
}

func writeQueueError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, jobs.ErrQueueFull), errors.Is(err, jobs.ErrStopped), errors.Is(err, jobs.ErrStoreFull):
		abortWithError(c, http.StatusServiceUnavailable, models.ErrCodeInternal, err.Error())
	default:
		// The client went away or its deadline passed while waiting.
		abortWithError(c, http.StatusGatewayTimeout, models.ErrCodeTimeout, err.Error())
	}
}
