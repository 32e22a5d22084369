package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/christianvidalwolf-prog/promochecker/models"
)

// apiClient talks to a running promocheck server.
type apiClient struct {
	baseURL      string
	apiKey       string
	http         *http.Client
	pollInterval time.Duration
}

func newAPIClient(baseURL, apiKey string) *apiClient {
	return &apiClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		http:         &http.Client{Timeout: 5 * time.Minute},
		pollInterval: 2 * time.Second,
	}
}

// apiError is the error envelope of a non-2xx response.
type apiError struct {
	Status int
	Detail *models.ErrorDetail
}

func (e *apiError) Error() string {
	if e.Detail == nil {
		return fmt.Sprintf("API returned status %d", e.Status)
	}
	return fmt.Sprintf("[%s] %s", e.Detail.Code, e.Detail.Message)
}

func (c *apiClient) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var env models.CheckResponse
		_ = json.Unmarshal(raw, &env)
		return &apiError{Status: resp.StatusCode, Detail: env.Error}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// Check runs one synchronous check.
func (c *apiClient) Check(ctx context.Context, req models.CheckRequest) (*models.PromoCheckResult, error) {
	var resp models.CheckResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/check", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success || resp.Result == nil {
		return nil, &apiError{Status: http.StatusOK, Detail: resp.Error}
	}
	return resp.Result, nil
}

// Batch submits a batch job and polls it until it leaves the queued and
// processing states or ctx is done.
func (c *apiClient) Batch(ctx context.Context, req models.BatchRequest) (*models.BatchStatusResponse, error) {
	var created models.BatchResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/batch/check", req, &created); err != nil {
		return nil, err
	}
	if created.ID == "" {
		return nil, fmt.Errorf("batch job creation failed")
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			var status models.BatchStatusResponse
			if err := c.do(ctx, http.MethodGet, "/api/v1/batch/"+created.ID, nil, &status); err != nil {
				return nil, err
			}
			if status.Status != models.JobQueued && status.Status != models.JobProcessing {
				return &status, nil
			}
		}
	}
}

// formatResult renders one result as a short text block.
func formatResult(r models.PromoCheckResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n", r.URL)
	fmt.Fprintf(&sb, "  status:        %s\n", r.Status)
	fmt.Fprintf(&sb, "  current price: %s\n", r.CurrentPrice)
	fmt.Fprintf(&sb, "  normal price:  %s\n", r.NormalPrice)
	fmt.Fprintf(&sb, "  discount:      %s\n", r.DiscountLabel)
	if r.Details != "" {
		fmt.Fprintf(&sb, "  details:       %s\n", r.Details)
	}
	return sb.String()
}

func formatBatch(s *models.BatchStatusResponse) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Batch %s: %s (%d/%d checked, %d failed)\n", s.ID, s.Status, s.Completed, s.Total, s.Failed)
	if s.Error != "" {
		fmt.Fprintf(&sb, "error: %s\n", s.Error)
	}
	for i, r := range s.Results {
		fmt.Fprintf(&sb, "\n[%d] %s", i+1, formatResult(r))
	}
	return sb.String()
}
