package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/christianvidalwolf-prog/promochecker/models"
)

// SignatureHeader carries "sha256=<hex>" of the body when a secret is configured.
const SignatureHeader = "X-Promocheck-Signature"

// EventBatchCompleted is sent when a batch job reaches a final state.
const EventBatchCompleted = "batch.completed"

// DefaultDelays are the pauses before each delivery attempt.
var DefaultDelays = []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second}

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string `json:"type"`
	JobID     string `json:"job_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// BatchSummary is the Data of a batch.completed event.
type BatchSummary struct {
	Status    string                    `json:"status"`
	Completed int                       `json:"completed"`
	Failed    int                       `json:"failed"`
	Total     int                       `json:"total"`
	Error     string                    `json:"error,omitempty"`
	Results   []models.PromoCheckResult `json:"results"`
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Deliver sends a webhook event synchronously.
// The request body is signed with HMAC-SHA256 if secret is non-empty.
func Deliver(ctx context.Context, client *http.Client, url, secret string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Promocheck-Webhook/1.0")
	if secret != "" {
		req.Header.Set(SignatureHeader, Sign(secret, body))
	}

	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Notifier posts batch.completed events for finished jobs.
type Notifier struct {
	Secret string
	Client *http.Client
	Delays []time.Duration

	// Done, when set, is called after the last delivery attempt.
	Done func(event *Event, err error)
}

// NewNotifier creates a Notifier with the default retry schedule.
func NewNotifier(secret string) *Notifier {
	return &Notifier{
		Secret: secret,
		Client: &http.Client{Timeout: 10 * time.Second},
		Delays: DefaultDelays,
	}
}

// JobFinished delivers the job summary in the background.
func (n *Notifier) JobFinished(job models.BatchJob) {
	completed, failed := job.Counts()
	event := &Event{
		Type:      EventBatchCompleted,
		JobID:     job.ID,
		Timestamp: time.Now().Unix(),
		Data: BatchSummary{
			Status:    job.Status,
			Completed: completed,
			Failed:    failed,
			Total:     len(job.Inputs),
			Error:     job.Err,
			Results:   job.Results,
		},
	}
	go n.deliverWithRetry(job.WebhookURL, event)
}

func (n *Notifier) deliverWithRetry(url string, event *Event) {
	delays := n.Delays
	if len(delays) == 0 {
		delays = []time.Duration{0}
	}
	var err error
	for attempt, delay := range delays {
		if delay > 0 {
			time.Sleep(delay)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = Deliver(ctx, n.Client, url, n.Secret, event)
		cancel()
		if err == nil {
			slog.Info("webhook delivered",
				"url", url,
				"event", event.Type,
				"job_id", event.JobID,
				"attempt", attempt+1,
			)
			break
		}
		slog.Warn("webhook delivery failed",
			"url", url,
			"event", event.Type,
			"job_id", event.JobID,
			"attempt", attempt+1,
			"error", err,
		)
	}
	if err != nil {
		slog.Error("webhook delivery exhausted all retries",
			"url", url,
			"event", event.Type,
			"job_id", event.JobID,
		)
	}
	if n.Done != nil {
		n.Done(event, err)
	}
}
