package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/christianvidalwolf-prog/promochecker/config"
	"github.com/christianvidalwolf-prog/promochecker/detector"
	"github.com/christianvidalwolf-prog/promochecker/jobs"
	"github.com/christianvidalwolf-prog/promochecker/models"
	"github.com/christianvidalwolf-prog/promochecker/sheet"
)

const testKey = "test-key"

// fakeQueue answers single checks immediately and records submissions.
type fakeQueue struct {
	mu       sync.Mutex
	checked  []models.ProductCheckInput
	submits  []string
	retries  []string
	running  string
	rejected error
}

func (q *fakeQueue) Check(_ context.Context, in models.ProductCheckInput, _ bool) (models.PromoCheckResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.rejected != nil {
		return models.PromoCheckResult{}, q.rejected
	}
	q.checked = append(q.checked, in)
	return models.PromoCheckResult{Row: in.Row, URL: in.URL, Status: models.StatusNoPromo}, nil
}

func (q *fakeQueue) Submit(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.rejected != nil {
		return q.rejected
	}
	q.submits = append(q.submits, id)
	return nil
}

func (q *fakeQueue) SubmitRetry(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.retries = append(q.retries, id)
	return nil
}

func (q *fakeQueue) Stats() models.QueueStats {
	return models.QueueStats{Running: q.running}
}

func testConfig() *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{Mode: "test"},
		Browser:   config.BrowserConfig{Headless: true},
		Batch:     config.BatchConfig{Marketplace: "de", MaxURLs: 3},
		Auth:      config.AuthConfig{Enabled: true, APIKeys: []string{testKey}},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
		Jobs:      config.JobsConfig{MaxEntries: 10, TTL: time.Hour},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) (http.Handler, *fakeQueue, *jobs.Store) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	store := jobs.NewStore(cfg.Jobs)
	t.Cleanup(store.Close)
	q := &fakeQueue{}
	return NewRouter(ctx, cfg, q, store, time.Now()), q, store
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", testKey)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthNeedsNoKey(t *testing.T) {
	h, q, _ := newTestServer(t, testConfig())
	q.running = "batch-x"

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "busy", resp.Status)
	assert.Equal(t, detector.PipelineVersion, resp.Pipeline)
}

func TestAuthRejectsMissingAndWrongKey(t *testing.T) {
	h, _, _ := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/check", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/check", nil)
	req.Header.Set("Authorization", "Bearer nope")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var resp models.CheckResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, models.ErrCodeUnauthorized, resp.Error.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}
	h, _, _ := newTestServer(t, cfg)

	first := do(t, h, http.MethodPost, "/api/v1/check", models.CheckRequest{URL: "amazon.de/dp/B0TEST0001"})
	assert.Equal(t, http.StatusOK, first.Code)
	second := do(t, h, http.MethodPost, "/api/v1/check", models.CheckRequest{URL: "amazon.de/dp/B0TEST0001"})
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
}

func TestCheckByURLAndASIN(t *testing.T) {
	h, q, _ := newTestServer(t, testConfig())

	w := do(t, h, http.MethodPost, "/api/v1/check", models.CheckRequest{URL: "www.amazon.de/dp/B0TEST0001"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp models.CheckResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, models.StatusNoPromo, resp.Result.Status)
	assert.Equal(t, "https://www.amazon.de/dp/B0TEST0001", resp.Result.URL)

	w = do(t, h, http.MethodPost, "/api/v1/check", models.CheckRequest{ASIN: "B0TEST0002", Marketplace: "es"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://www.amazon.es/dp/B0TEST0002", q.checked[1].URL)

	w = do(t, h, http.MethodPost, "/api/v1/check", models.CheckRequest{ASIN: "B0TEST0003", Marketplace: "zz"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/api/v1/check", models.CheckRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckQueueFull(t *testing.T) {
	h, q, _ := newTestServer(t, testConfig())
	q.rejected = jobs.ErrQueueFull

	w := do(t, h, http.MethodPost, "/api/v1/check", models.CheckRequest{URL: "https://www.amazon.de/dp/B0TEST0001"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestBatchLifecycle(t *testing.T) {
	h, q, store := newTestServer(t, testConfig())

	w := do(t, h, http.MethodPost, "/api/v1/batch/check", models.BatchRequest{
		URLs:  []string{"https://www.amazon.de/dp/B0TEST0001"},
		ASINs: []string{"B0TEST0002"},
	})
	require.Equal(t, http.StatusAccepted, w.Code)
	var created models.BatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, 2, created.Total)
	assert.Equal(t, []string{created.ID}, q.submits)

	job, ok := store.Get(created.ID)
	require.True(t, ok)
	assert.Equal(t, "https://www.amazon.de/dp/B0TEST0002", job.Inputs[1].URL)
	assert.Equal(t, 1, job.Inputs[1].Row)

	// Still queued: retry and report are refused.
	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, "/api/v1/batch/"+created.ID+"/retry", nil).Code)
	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodGet, "/api/v1/batch/"+created.ID+"/report", nil).Code)

	store.Update(created.ID, func(j *models.BatchJob) {
		j.Status = models.JobPartial
		j.Progress = 1
		j.Results = []models.PromoCheckResult{
			{Row: 0, URL: j.Inputs[0].URL, Status: models.StatusActive, DiscountLabel: "-10%"},
			models.FailedResult(1, j.Inputs[1].URL, models.StatusErrorTimeout, "page did not load"),
		}
	})

	w = do(t, h, http.MethodGet, "/api/v1/batch/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status models.BatchStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, models.JobPartial, status.Status)
	assert.Equal(t, 2, status.Completed)
	assert.Equal(t, 1, status.Failed)
	assert.Len(t, status.Results, 2)

	w = do(t, h, http.MethodGet, "/api/v1/batch/"+created.ID+"/report", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), created.ID+".xlsx")
	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(sheet.ReportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "ACTIVE", rows[1][2])
	assert.Equal(t, "ERROR_TIMEOUT", rows[2][2])

	w = do(t, h, http.MethodPost, "/api/v1/batch/"+created.ID+"/retry", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	var retried models.BatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &retried))
	assert.Equal(t, 1, retried.Total)
	assert.Equal(t, []string{created.ID}, q.retries)
}

func TestBatchValidation(t *testing.T) {
	h, _, _ := newTestServer(t, testConfig())

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/v1/batch/check", models.BatchRequest{}).Code)

	tooMany := models.BatchRequest{URLs: []string{"a", "b", "c", "d"}}
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/v1/batch/check", tooMany).Code)

	badHook := models.BatchRequest{URLs: []string{"https://www.amazon.de/dp/B0TEST0001"}, WebhookURL: "not a url"}
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/v1/batch/check", badHook).Code)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/v1/batch/batch-missing", nil).Code)
}

func TestRetryWithNothingFailed(t *testing.T) {
	h, q, store := newTestServer(t, testConfig())
	job, err := store.Create([]models.ProductCheckInput{{Row: 0, URL: "https://www.amazon.de/dp/B0TEST0001"}}, true, "")
	require.NoError(t, err)
	store.Update(job.ID, func(j *models.BatchJob) {
		j.Status = models.JobCompleted
		j.Results = []models.PromoCheckResult{{Row: 0, Status: models.StatusNoPromo}}
	})

	w := do(t, h, http.MethodPost, "/api/v1/batch/"+job.ID+"/retry", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, q.retries)
}

func TestBatchRefusedWhileStoreHoldsOnlyActiveJobs(t *testing.T) {
	cfg := testConfig()
	cfg.Jobs.MaxEntries = 1
	h, q, store := newTestServer(t, cfg)
	req := models.BatchRequest{URLs: []string{"https://www.amazon.de/dp/B0TEST0001"}}

	w := do(t, h, http.MethodPost, "/api/v1/batch/check", req)
	require.Equal(t, http.StatusAccepted, w.Code)
	var first models.BatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	store.Update(first.ID, func(j *models.BatchJob) { j.Status = models.JobProcessing })

	w = do(t, h, http.MethodPost, "/api/v1/batch/check", req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Len(t, q.submits, 1)
	_, ok := store.Get(first.ID)
	assert.True(t, ok)
}

func TestRetryIsRefusedOnceQueued(t *testing.T) {
	h, q, store := newTestServer(t, testConfig())
	job, err := store.Create([]models.ProductCheckInput{{Row: 0, URL: "https://www.amazon.de/dp/B0TEST0001"}}, true, "")
	require.NoError(t, err)
	store.Update(job.ID, func(j *models.BatchJob) {
		j.Status = models.JobFailed
		j.Results = []models.PromoCheckResult{
			models.FailedResult(0, j.Inputs[0].URL, models.StatusErrorTimeout, "page did not load"),
		}
	})

	assert.Equal(t, http.StatusAccepted, do(t, h, http.MethodPost, "/api/v1/batch/"+job.ID+"/retry", nil).Code)
	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, "/api/v1/batch/"+job.ID+"/retry", nil).Code)
	assert.Equal(t, []string{job.ID}, q.retries)

	got, _ := store.Get(job.ID)
	assert.Equal(t, models.JobQueued, got.Status)
}
