package jobs

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/christianvidalwolf-prog/promochecker/config"
	"github.com/christianvidalwolf-prog/promochecker/models"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore(max int, ttl time.Duration) (*Store, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	return newStore(config.JobsConfig{MaxEntries: max, TTL: ttl}, clock.now), clock
}

func sampleInputs(n int) []models.ProductCheckInput {
	inputs := make([]models.ProductCheckInput, n)
	for i := range inputs {
		inputs[i] = models.ProductCheckInput{Row: i, URL: "https://www.amazon.de/dp/B00000000" + string(rune('0'+i))}
	}
	return inputs
}

func mustCreate(t *testing.T, s *Store, inputs []models.ProductCheckInput, headless bool, webhookURL string) models.BatchJob {
	t.Helper()
	job, err := s.Create(inputs, headless, webhookURL)
	require.NoError(t, err)
	return job
}

func finish(s *Store, id string) {
	s.Update(id, func(j *models.BatchJob) { j.Status = models.JobCompleted })
}

func TestStoreCreateAndGet(t *testing.T) {
	s, _ := newTestStore(10, time.Hour)

	job := mustCreate(t, s, sampleInputs(2), true, "https://hooks.example.com/x")
	assert.Contains(t, job.ID, "batch-")
	assert.Equal(t, models.JobQueued, job.Status)
	assert.Len(t, job.Results, 2)

	got, ok := s.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, job.ID, got.ID)
	assert.True(t, got.Headless)
	assert.Equal(t, "https://hooks.example.com/x", got.WebhookURL)

	_, ok = s.Get("batch-missing")
	assert.False(t, ok)
}

func TestStoreSnapshotIsolation(t *testing.T) {
	s, _ := newTestStore(10, time.Hour)
	job := mustCreate(t, s, sampleInputs(1), false, "")

	job.Inputs[0].URL = "mutated"
	job.Results[0].Status = models.StatusActive

	got, _ := s.Get(job.ID)
	assert.NotEqual(t, "mutated", got.Inputs[0].URL)
	assert.Empty(t, got.Results[0].Status)
}

func TestStoreUpdate(t *testing.T) {
	s, clock := newTestStore(10, time.Hour)
	job := mustCreate(t, s, sampleInputs(1), false, "")

	clock.advance(time.Minute)
	ok := s.Update(job.ID, func(j *models.BatchJob) { j.Progress = 0.5 })
	require.True(t, ok)

	got, _ := s.Get(job.ID)
	assert.InDelta(t, 0.5, got.Progress, 1e-9)
	assert.Equal(t, job.CreatedAt+60, got.UpdatedAt)

	assert.False(t, s.Update("batch-missing", func(*models.BatchJob) {}))
}

func TestStoreEvictsOldestAtCapacity(t *testing.T) {
	s, clock := newTestStore(2, time.Hour)

	first := mustCreate(t, s, sampleInputs(1), false, "")
	finish(s, first.ID)
	clock.advance(time.Second)
	second := mustCreate(t, s, sampleInputs(1), false, "")
	finish(s, second.ID)
	clock.advance(time.Second)
	third := mustCreate(t, s, sampleInputs(1), false, "")

	assert.Equal(t, 2, s.Len())
	_, ok := s.Get(first.ID)
	assert.False(t, ok)
	_, ok = s.Get(second.ID)
	assert.True(t, ok)
	_, ok = s.Get(third.ID)
	assert.True(t, ok)
}

func TestStoreEvictionSkipsActiveJobs(t *testing.T) {
	s, clock := newTestStore(2, time.Hour)

	running := mustCreate(t, s, sampleInputs(1), false, "")
	s.Update(running.ID, func(j *models.BatchJob) { j.Status = models.JobProcessing })
	clock.advance(time.Second)
	done := mustCreate(t, s, sampleInputs(1), false, "")
	finish(s, done.ID)
	clock.advance(time.Second)
	latest := mustCreate(t, s, sampleInputs(1), false, "")

	_, ok := s.Get(running.ID)
	assert.True(t, ok, "the older running job must survive eviction")
	_, ok = s.Get(done.ID)
	assert.False(t, ok)
	_, ok = s.Get(latest.ID)
	assert.True(t, ok)
}

func TestStoreCreateRefusesWhenAllActive(t *testing.T) {
	s, _ := newTestStore(1, time.Hour)

	running := mustCreate(t, s, sampleInputs(2), false, "")
	s.Update(running.ID, func(j *models.BatchJob) { j.Status = models.JobProcessing })

	_, err := s.Create(sampleInputs(1), false, "")
	require.ErrorIs(t, err, ErrStoreFull)
	assert.Equal(t, 1, s.Len())

	ok := s.Update(running.ID, func(j *models.BatchJob) {
		j.Results[0].Status = models.StatusActive
		j.Status = models.JobPartial
	})
	require.True(t, ok, "the worker must still be able to write results")
	got, _ := s.Get(running.ID)
	assert.Equal(t, models.JobPartial, got.Status)
	assert.Equal(t, models.StatusActive, got.Results[0].Status)

	_, err = s.Create(sampleInputs(1), false, "")
	assert.NoError(t, err, "a finished job can be evicted again")
}

func TestStoreModify(t *testing.T) {
	s, clock := newTestStore(10, time.Hour)
	job := mustCreate(t, s, sampleInputs(1), false, "")
	errBusy := errors.New("busy")

	clock.advance(time.Minute)
	got, err := s.Modify(job.ID, func(j *models.BatchJob) error {
		if models.JobActive(j.Status) {
			return errBusy
		}
		j.Status = models.JobQueued
		return nil
	})
	require.ErrorIs(t, err, errBusy)
	assert.Equal(t, models.JobQueued, got.Status)
	assert.Equal(t, job.UpdatedAt, got.UpdatedAt)

	got, err = s.Modify(job.ID, func(j *models.BatchJob) error {
		j.Status = models.JobFailed
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, got.Status)
	assert.Equal(t, job.CreatedAt+60, got.UpdatedAt)

	_, err = s.Modify("batch-missing", func(*models.BatchJob) error { return nil })
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestStoreEvictExpiredKeepsRunningJobs(t *testing.T) {
	s, clock := newTestStore(10, time.Hour)

	idle := mustCreate(t, s, sampleInputs(1), false, "")
	finish(s, idle.ID)
	busy := mustCreate(t, s, sampleInputs(1), false, "")
	s.Update(busy.ID, func(j *models.BatchJob) { j.Status = models.JobProcessing })
	waiting := mustCreate(t, s, sampleInputs(1), false, "")

	clock.advance(2 * time.Hour)
	assert.Equal(t, 1, s.evictExpired())

	_, ok := s.Get(idle.ID)
	assert.False(t, ok)
	_, ok = s.Get(busy.ID)
	assert.True(t, ok)
	_, ok = s.Get(waiting.ID)
	assert.True(t, ok)
}

func TestStoreCloseIsIdempotent(t *testing.T) {
	s := NewStore(config.JobsConfig{MaxEntries: 1, TTL: time.Minute})
	s.Close()
	assert.NotPanics(t, s.Close)
}
