// Package jobs keeps batch jobs in memory and runs them one at a time.
package jobs

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/christianvidalwolf-prog/promochecker/config"
	"github.com/christianvidalwolf-prog/promochecker/models"
)

// ErrStoreFull is returned by Create when the store is at capacity and every
// stored job is still queued or running.
var ErrStoreFull = errors.New("jobs: store is full of active jobs")

// ErrJobNotFound is returned by Modify for an unknown or evicted job.
var ErrJobNotFound = errors.New("jobs: job not found")

// Store is an in-memory, TTL-bounded set of batch jobs.
// It is safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	jobs       map[string]*models.BatchJob
	maxEntries int
	ttl        time.Duration
	now        func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// NewStore creates a Store. A background goroutine evicts jobs older than
// the TTL every 5 minutes until Close is called.
func NewStore(cfg config.JobsConfig) *Store {
	s := newStore(cfg, time.Now)
	go s.cleanupLoop(5 * time.Minute)
	return s
}

func newStore(cfg config.JobsConfig, now func() time.Time) *Store {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 100
	}
	return &Store{
		jobs:       make(map[string]*models.BatchJob),
		maxEntries: cfg.MaxEntries,
		ttl:        cfg.TTL,
		now:        now,
		stop:       make(chan struct{}),
	}
}

// Create registers a queued job and returns a snapshot of it. At capacity the
// oldest finished job is evicted to make room; queued and running jobs are
// never evicted, and with no finished job to drop Create fails with
// ErrStoreFull.
func (s *Store) Create(inputs []models.ProductCheckInput, headless bool, webhookURL string) (models.BatchJob, error) {
	now := s.now().Unix()
	job := &models.BatchJob{
		ID:         "batch-" + uuid.NewString(),
		Status:     models.JobQueued,
		Inputs:     append([]models.ProductCheckInput(nil), inputs...),
		Results:    make([]models.PromoCheckResult, len(inputs)),
		Headless:   headless,
		WebhookURL: webhookURL,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.jobs) >= s.maxEntries && !s.evictOldestLocked() {
		return models.BatchJob{}, ErrStoreFull
	}
	s.jobs[job.ID] = job
	return snapshot(job), nil
}

// Get returns a snapshot of the job.
func (s *Store) Get(id string) (models.BatchJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return models.BatchJob{}, false
	}
	return snapshot(job), true
}

// Update applies fn to the stored job under the lock and stamps UpdatedAt.
// It reports false when the job no longer exists.
func (s *Store) Update(id string, fn func(job *models.BatchJob)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return false
	}
	fn(job)
	job.UpdatedAt = s.now().Unix()
	return true
}

// Modify runs fn on the stored job under the lock, so fn can check the
// job's state and change it in one step. When fn returns an error the job
// must be left untouched and UpdatedAt is not stamped. The returned snapshot
// reflects the job after fn, error or not.
func (s *Store) Modify(id string, fn func(job *models.BatchJob) error) (models.BatchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return models.BatchJob{}, ErrJobNotFound
	}
	if err := fn(job); err != nil {
		return snapshot(job), err
	}
	job.UpdatedAt = s.now().Unix()
	return snapshot(job), nil
}

// Len returns the number of stored jobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// Close stops the cleanup goroutine.
func (s *Store) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// evictOldestLocked drops the oldest finished job and reports whether one
// was dropped.
func (s *Store) evictOldestLocked() bool {
	var oldestID string
	var oldest int64
	for id, job := range s.jobs {
		if models.JobActive(job.Status) {
			continue
		}
		if oldestID == "" || job.CreatedAt < oldest {
			oldestID, oldest = id, job.CreatedAt
		}
	}
	if oldestID == "" {
		return false
	}
	delete(s.jobs, oldestID)
	return true
}

// evictExpired drops finished jobs older than the TTL.
func (s *Store) evictExpired() int {
	if s.ttl <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.ttl).Unix()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, job := range s.jobs {
		if job.CreatedAt < cutoff && !models.JobActive(job.Status) {
			delete(s.jobs, id)
			n++
		}
	}
	return n
}

func (s *Store) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.evictExpired()
		case <-s.stop:
			return
		}
	}
}

func snapshot(job *models.BatchJob) models.BatchJob {
	cp := *job
	cp.Inputs = append([]models.ProductCheckInput(nil), job.Inputs...)
	cp.Results = append([]models.PromoCheckResult(nil), job.Results...)
	return cp
}
