package models

// Batch job states.
const (
	JobQueued     = "queued"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobPartial    = "partial"
	JobFailed     = "failed"
)

// JobActive reports whether a job with status is waiting for or held by the worker.
func JobActive(status string) bool {
	return status == JobQueued || status == JobProcessing
}

// BatchResponse is the immediate response for POST /api/v1/batch/check.
type BatchResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Total  int    `json:"total"`
}

// BatchStatusResponse is the response for GET /api/v1/batch/:id.
type BatchStatusResponse struct {
	ID        string             `json:"id"`
	Status    string             `json:"status"`
	Completed int                `json:"completed"`
	Failed    int                `json:"failed"`
	Total     int                `json:"total"`
	Progress  float64            `json:"progress"`
	Results   []PromoCheckResult `json:"results,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// BatchJob tracks one batch check. Snapshot copies are handed out by the job
// store so handlers never observe a half-written job.
type BatchJob struct {
	ID         string
	Status     string
	Inputs     []ProductCheckInput
	Results    []PromoCheckResult
	Progress   float64
	Headless   bool
	WebhookURL string
	Err        string
	CreatedAt  int64 // unix timestamp
	UpdatedAt  int64
}

// Counts returns how many rows finished and how many of them failed.
func (j *BatchJob) Counts() (completed, failed int) {
	for _, r := range j.Results {
		if r.Status == "" {
			continue
		}
		completed++
		if r.Status.IsError() {
			failed++
		}
	}
	return completed, failed
}
