package handler

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/christianvidalwolf-prog/promochecker/batch"
	"github.com/christianvidalwolf-prog/promochecker/config"
	"github.com/christianvidalwolf-prog/promochecker/jobs"
	"github.com/christianvidalwolf-prog/promochecker/models"
	"github.com/christianvidalwolf-prog/promochecker/sheet"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var (
	errJobActive      = errors.New("batch job is still running")
	errNothingToRetry = errors.New("batch job has no failed rows")
)

// PostBatch returns a handler for POST /api/v1/batch/check.
// It validates the request, stores a queued job and hands it to the worker.
func PostBatch(q JobQueue, store *jobs.Store, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.BatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, models.ErrCodeInvalidInput, "invalid request body: "+err.Error())
			return
		}

		total := len(req.URLs) + len(req.ASINs)
		if total == 0 {
			abortWithError(c, http.StatusBadRequest, models.ErrCodeInvalidInput, "urls or asins is required")
			return
		}
		if cfg.Batch.MaxURLs > 0 && total > cfg.Batch.MaxURLs {
			abortWithError(c, http.StatusBadRequest, models.ErrCodeInvalidInput,
				fmt.Sprintf("maximum %d products per batch", cfg.Batch.MaxURLs))
			return
		}

		inputs := make([]models.ProductCheckInput, 0, total)
		for _, u := range req.URLs {
			in, err := resolveInput(len(inputs), u, "", "", "")
			if err != nil {
				abortWithError(c, http.StatusBadRequest, models.ErrCodeInvalidInput,
					fmt.Sprintf("urls[%d]: %v", len(inputs), err))
				return
			}
			inputs = append(inputs, in)
		}
		for i, asin := range req.ASINs {
			in, err := resolveInput(len(inputs), "", asin, req.Marketplace, cfg.Batch.Marketplace)
			if err != nil {
				abortWithError(c, http.StatusBadRequest, models.ErrCodeInvalidInput,
					fmt.Sprintf("asins[%d]: %v", i, err))
				return
			}
			inputs = append(inputs, in)
		}

		headless := cfg.Browser.Headless
		if req.Headless != nil {
			headless = *req.Headless
		}

		job, err := store.Create(inputs, headless, req.WebhookURL)
		if err != nil {
			slog.Warn("batch job refused", "rows", total, "error", err)
			writeQueueError(c, err)
			return
		}
		if err := q.Submit(job.ID); err != nil {
			store.Update(job.ID, func(j *models.BatchJob) {
				j.Status = models.JobFailed
				j.Err = err.Error()
			})
			writeQueueError(c, err)
			return
		}

		slog.Info("batch job queued", "id", job.ID, "rows", total, "headless", headless)
		c.JSON(http.StatusAccepted, models.BatchResponse{
			ID:     job.ID,
			Status: models.JobQueued,
			Total:  total,
		})
	}
}

// GetBatch returns a handler for GET /api/v1/batch/:id.
func GetBatch(store *jobs.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := store.Get(c.Param("id"))
		if !ok {
			abortWithError(c, http.StatusNotFound, models.ErrCodeNotFound, "batch job not found")
			return
		}

		completed, failed := job.Counts()
		var results []models.PromoCheckResult
		for _, r := range job.Results {
			if r.Status != "" {
				results = append(results, r)
			}
		}
		c.JSON(http.StatusOK, models.BatchStatusResponse{
			ID:        job.ID,
			Status:    job.Status,
			Completed: completed,
			Failed:    failed,
			Total:     len(job.Inputs),
			Progress:  job.Progress,
			Results:   results,
			Error:     job.Err,
		})
	}
}

// RetryBatch returns a handler for POST /api/v1/batch/:id/retry.
// Only rows whose previous status is an error are checked again.
func RetryBatch(q JobQueue, store *jobs.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var prevStatus string
		var failedRows []int
		job, err := store.Modify(c.Param("id"), func(j *models.BatchJob) error {
			if models.JobActive(j.Status) {
				return errJobActive
			}
			failedRows = batch.FailedRows(j.Results)
			if len(failedRows) == 0 {
				return errNothingToRetry
			}
			prevStatus = j.Status
			j.Status = models.JobQueued
			return nil
		})
		switch {
		case errors.Is(err, jobs.ErrJobNotFound):
			abortWithError(c, http.StatusNotFound, models.ErrCodeNotFound, "batch job not found")
			return
		case errors.Is(err, errJobActive):
			abortWithError(c, http.StatusConflict, models.ErrCodeInvalidInput, "batch job is still "+job.Status)
			return
		case errors.Is(err, errNothingToRetry):
			c.JSON(http.StatusOK, models.BatchResponse{ID: job.ID, Status: job.Status, Total: 0})
			return
		}

		if err := q.SubmitRetry(job.ID); err != nil {
			store.Update(job.ID, func(j *models.BatchJob) { j.Status = prevStatus })
			writeQueueError(c, err)
			return
		}

		slog.Info("batch retry queued", "id", job.ID, "rows", len(failedRows))
		c.JSON(http.StatusAccepted, models.BatchResponse{
			ID:     job.ID,
			Status: models.JobQueued,
			Total:  len(failedRows),
		})
	}
}

// BatchReport returns a handler for GET /api/v1/batch/:id/report.
// It streams the finished job as an XLSX workbook.
func BatchReport(store *jobs.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := store.Get(c.Param("id"))
		if !ok {
			abortWithError(c, http.StatusNotFound, models.ErrCodeNotFound, "batch job not found")
			return
		}
		if models.JobActive(job.Status) {
			abortWithError(c, http.StatusConflict, models.ErrCodeInvalidInput, "batch job is still "+job.Status)
			return
		}

		var buf bytes.Buffer
		if err := sheet.WriteXLSX(&buf, inputTable(job.Inputs), job.Results); err != nil {
			slog.Error("report rendering failed", "id", job.ID, "error", err)
			abortWithError(c, http.StatusInternalServerError, models.ErrCodeInternal, "cannot render report")
			return
		}

		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.xlsx"`, job.ID))
		c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
	}
}

// inputTable rebuilds the input columns of a job for the report.
func inputTable(inputs []models.ProductCheckInput) *sheet.Table {
	t := &sheet.Table{Header: []string{"URL", "ASIN"}}
	for _, in := range inputs {
		t.Rows = append(t.Rows, []string{in.URL, in.ASIN})
	}
	return t
}
