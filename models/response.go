package models

// CheckResponse is the response for POST /api/v1/check.
type CheckResponse struct {
	Success bool              `json:"success"`
	Result  *PromoCheckResult `json:"result,omitempty"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status     string     `json:"status"` // "healthy" or "busy"
	Uptime     string     `json:"uptime"`
	QueueStats QueueStats `json:"queue_stats"`
	Version    string     `json:"version"`
	Pipeline   string     `json:"pipeline_version"`
}

// QueueStats reports the state of the serial job queue.
type QueueStats struct {
	Pending int    `json:"pending"`
	Running string `json:"running,omitempty"`
	Stored  int    `json:"stored"`
}
