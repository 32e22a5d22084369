package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/christianvidalwolf-prog/promochecker/config"
	"github.com/christianvidalwolf-prog/promochecker/models"
	"github.com/christianvidalwolf-prog/promochecker/renderer"
)

// fakeSession implements renderer.Session for testing
type fakeSession struct {
	mu     sync.Mutex
	closed int
}

var _ renderer.Session = (*fakeSession)(nil)

func (s *fakeSession) Page() renderer.Page { return nil }

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

// fakeLauncher implements renderer.Launcher for testing
type fakeLauncher struct {
	session  *fakeSession
	err      error
	launches int
	headless []bool
}

var _ renderer.Launcher = (*fakeLauncher)(nil)

func (l *fakeLauncher) Launch(_ context.Context, headless bool) (renderer.Session, error) {
	l.launches++
	l.headless = append(l.headless, headless)
	if l.err != nil {
		return nil, l.err
	}
	return l.session, nil
}

// fakeChecker returns a canned status per URL and records call order.
type fakeChecker struct {
	statuses map[string]models.Status
	calls    []string
	onCall   func(n int)
}

func (c *fakeChecker) Detect(_ context.Context, _ renderer.Page, url string) models.PromoCheckResult {
	c.calls = append(c.calls, url)
	if c.onCall != nil {
		c.onCall(len(c.calls))
	}
	status, ok := c.statuses[url]
	if !ok {
		status = models.StatusNoPromo
	}
	if status.IsError() {
		return models.FailedResult(0, url, status, "failed")
	}
	return models.PromoCheckResult{URL: url, Status: status}
}

func testInputs(urls ...string) []models.ProductCheckInput {
	in := make([]models.ProductCheckInput, len(urls))
	for i, u := range urls {
		in[i] = models.ProductCheckInput{Row: i, URL: u}
	}
	return in
}

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestRunner(l *fakeLauncher, c *fakeChecker, pauses *[]time.Duration) *Runner {
	return NewRunner(l, c, config.BatchConfig{PauseMin: 2 * time.Second, PauseMax: 5 * time.Second},
		WithSleep(func(_ context.Context, d time.Duration) error {
			if pauses != nil {
				*pauses = append(*pauses, d)
			}
			return nil
		}),
		WithJitter(func(_, max time.Duration) time.Duration { return max }),
		WithClock(func() time.Time { return fixedNow }),
	)
}

func TestProcessAll_OrderProgressAndPacing(t *testing.T) {
	launcher := &fakeLauncher{session: &fakeSession{}}
	checker := &fakeChecker{statuses: map[string]models.Status{
		"https://a.example/1": models.StatusActive,
		"https://a.example/2": models.StatusErrorTimeout,
		"https://a.example/3": models.StatusNoPromo,
	}}
	var pauses []time.Duration
	var progress []float64

	r := newTestRunner(launcher, checker, &pauses)
	results, err := r.ProcessAll(context.Background(),
		testInputs("https://a.example/1", "https://a.example/2", "https://a.example/3"),
		true, func(f float64) { progress = append(progress, f) })

	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, models.StatusActive, results[0].Status)
	assert.Equal(t, models.StatusErrorTimeout, results[1].Status, "failed row is still emitted")
	assert.Equal(t, models.StatusNoPromo, results[2].Status)
	for i, res := range results {
		assert.Equal(t, i, res.Row)
		assert.Equal(t, fixedNow, res.CheckedAt)
	}

	assert.InDeltaSlice(t, []float64{0, 1.0 / 3, 2.0 / 3, 1}, progress, 1e-9)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, pauses, "no pause after the last item")
	assert.Equal(t, 1, launcher.launches, "one session for the whole batch")
	assert.Equal(t, []bool{true}, launcher.headless)
	assert.Equal(t, 1, launcher.session.closed)
}

func TestProcessAll_Empty(t *testing.T) {
	launcher := &fakeLauncher{session: &fakeSession{}}
	var progress []float64

	results, err := newTestRunner(launcher, &fakeChecker{}, nil).
		ProcessAll(context.Background(), nil, true, func(f float64) { progress = append(progress, f) })

	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, []float64{1}, progress)
	assert.Zero(t, launcher.launches)
}

func TestProcessAll_LaunchFailure(t *testing.T) {
	launcher := &fakeLauncher{err: errors.New("chromium not found")}
	checker := &fakeChecker{}

	results, err := newTestRunner(launcher, checker, nil).
		ProcessAll(context.Background(), testInputs("a.example/1", "a.example/2"), false, nil)

	require.Error(t, err)
	require.Len(t, results, 2)
	for i, res := range results {
		assert.Equal(t, i, res.Row)
		assert.Equal(t, models.StatusErrorException, res.Status)
		assert.Contains(t, res.Details, "chromium not found")
		assert.Equal(t, models.PlaceholderError, res.CurrentPrice.String())
	}
	assert.Equal(t, "https://a.example/1", results[0].URL)
	assert.Empty(t, checker.calls)
}

func TestProcessAll_CancelledBetweenItems(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	launcher := &fakeLauncher{session: &fakeSession{}}
	checker := &fakeChecker{onCall: func(n int) {
		if n == 2 {
			cancel()
		}
	}}

	results, err := newTestRunner(launcher, checker, nil).
		ProcessAll(ctx, testInputs("u1", "u2", "u3", "u4"), true, nil)

	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 4)
	assert.Equal(t, models.StatusNoPromo, results[0].Status)
	assert.Equal(t, models.StatusNoPromo, results[1].Status, "the item in flight completes")
	assert.Equal(t, models.StatusErrorException, results[2].Status)
	assert.Equal(t, "batch cancelled", results[3].Details)
	assert.Equal(t, 3, results[3].Row)
	assert.Len(t, checker.calls, 2)
	assert.Equal(t, 1, launcher.session.closed, "session released on the cancel path")
}
