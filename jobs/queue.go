package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/christianvidalwolf-prog/promochecker/batch"
	"github.com/christianvidalwolf-prog/promochecker/models"
)

// ErrQueueFull is returned when the worker backlog is at capacity.
var ErrQueueFull = errors.New("jobs: queue is full")

// ErrStopped is returned for submissions after Stop.
var ErrStopped = errors.New("jobs: queue stopped")

// Processor runs batches. *batch.Runner implements it.
type Processor interface {
	ProcessAll(ctx context.Context, inputs []models.ProductCheckInput, headless bool, onProgress batch.ProgressFunc) ([]models.PromoCheckResult, error)
	RetryFailed(ctx context.Context, inputs []models.ProductCheckInput, previous []models.PromoCheckResult, headless bool, onProgress batch.ProgressFunc) ([]models.PromoCheckResult, error)
}

// Notifier is told about finished jobs that asked for a webhook.
type Notifier interface {
	JobFinished(job models.BatchJob)
}

type task struct {
	jobID string
	retry bool

	// single checks carry their input and a reply channel instead of a job.
	single   *models.ProductCheckInput
	headless bool
	reply    chan models.PromoCheckResult
}

// Queue feeds tasks to exactly one worker goroutine, so at most one browser
// session is alive at any time.
type Queue struct {
	store    *Store
	proc     Processor
	notifier Notifier

	tasks   chan task
	pending atomic.Int32

	mu      sync.Mutex
	running string
	stopped bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewQueue creates a queue with room for size waiting tasks.
// notifier may be nil.
func NewQueue(store *Store, proc Processor, notifier Notifier, size int) *Queue {
	if size <= 0 {
		size = 64
	}
	return &Queue{
		store:    store,
		proc:     proc,
		notifier: notifier,
		tasks:    make(chan task, size),
		done:     make(chan struct{}),
	}
}

// Start launches the worker. Cancelling ctx (or calling Stop) aborts the
// running batch between items.
func (q *Queue) Start(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(ctx)
	go q.loop(ctx)
}

// Stop cancels the worker and waits for it to exit.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()
	if q.cancel != nil {
		q.cancel()
		<-q.done
	}
}

// Submit queues a stored job for processing.
func (q *Queue) Submit(jobID string) error {
	return q.enqueue(task{jobID: jobID})
}

// SubmitRetry queues a re-run of the failed rows of a stored job.
func (q *Queue) SubmitRetry(jobID string) error {
	return q.enqueue(task{jobID: jobID, retry: true})
}

// Check runs a single product check on the worker and waits for its result.
func (q *Queue) Check(ctx context.Context, in models.ProductCheckInput, headless bool) (models.PromoCheckResult, error) {
	reply := make(chan models.PromoCheckResult, 1)
	if err := q.enqueue(task{single: &in, headless: headless, reply: reply}); err != nil {
		return models.PromoCheckResult{}, err
	}
	select {
	case res := <-reply:
		return res, nil
	case <-ctx.Done():
		return models.PromoCheckResult{}, ctx.Err()
	}
}

// Stats reports the backlog, the running job and the number of stored jobs.
func (q *Queue) Stats() models.QueueStats {
	q.mu.Lock()
	running := q.running
	q.mu.Unlock()
	return models.QueueStats{
		Pending: int(q.pending.Load()),
		Running: running,
		Stored:  q.store.Len(),
	}
}

func (q *Queue) enqueue(t task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return ErrStopped
	}
	select {
	case q.tasks <- t:
		q.pending.Add(1)
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *Queue) loop(ctx context.Context) {
	defer close(q.done)
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-q.tasks:
			q.pending.Add(-1)
			if t.single != nil {
				q.runSingle(ctx, t)
				continue
			}
			q.runJob(ctx, t)
		}
	}
}

func (q *Queue) setRunning(id string) {
	q.mu.Lock()
	q.running = id
	q.mu.Unlock()
}

func (q *Queue) runSingle(ctx context.Context, t task) {
	q.setRunning("single:" + t.single.URL)
	defer q.setRunning("")

	results, err := q.proc.ProcessAll(ctx, []models.ProductCheckInput{*t.single}, t.headless, nil)
	if err != nil {
		slog.Warn("single check ended with error", "url", t.single.URL, "error", err)
	}
	if len(results) == 1 {
		t.reply <- results[0]
		return
	}
	t.reply <- models.FailedResult(t.single.Row, t.single.NormalizedURL(), models.StatusErrorException, "no result produced")
}

func (q *Queue) runJob(ctx context.Context, t task) {
	job, ok := q.store.Get(t.jobID)
	if !ok {
		slog.Warn("queued job vanished before it ran", "id", t.jobID)
		return
	}

	q.setRunning(job.ID)
	defer q.setRunning("")

	q.store.Update(job.ID, func(j *models.BatchJob) {
		j.Status = models.JobProcessing
		j.Progress = 0
		j.Err = ""
	})
	slog.Info("batch job started", "id", job.ID, "rows", len(job.Inputs), "retry", t.retry)

	onProgress := func(f float64) {
		q.store.Update(job.ID, func(j *models.BatchJob) { j.Progress = f })
	}

	var results []models.PromoCheckResult
	var err error
	if t.retry {
		results, err = q.proc.RetryFailed(ctx, job.Inputs, job.Results, job.Headless, onProgress)
	} else {
		results, err = q.proc.ProcessAll(ctx, job.Inputs, job.Headless, onProgress)
	}

	q.store.Update(job.ID, func(j *models.BatchJob) {
		j.Results = results
		j.Status = FinalStatus(results)
		if err != nil {
			j.Err = err.Error()
		}
	})

	final, _ := q.store.Get(job.ID)
	completed, failed := final.Counts()
	slog.Info("batch job finished",
		"id", final.ID,
		"status", final.Status,
		"completed", completed,
		"failed", failed,
		"total", len(final.Inputs),
	)

	if q.notifier != nil && final.WebhookURL != "" {
		q.notifier.JobFinished(final)
	}
}

// FinalStatus classifies a finished job: failed when every row failed,
// partial when some did, completed otherwise.
func FinalStatus(results []models.PromoCheckResult) string {
	failed := len(batch.FailedRows(results))
	switch {
	case len(results) > 0 && failed == len(results):
		return models.JobFailed
	case failed > 0:
		return models.JobPartial
	default:
		return models.JobCompleted
	}
}
