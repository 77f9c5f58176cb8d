package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/knowandlove/classquiz-go/logger"
	"github.com/knowandlove/classquiz-go/models"
)

// Local runs jobs on in-process goroutines when no broker is configured.
// Dedup, the TTL cache, and bounded retries behave exactly as in the
// broker-backed queue.
type Local struct {
	executor *Executor

	mu   sync.Mutex
	jobs map[string]*models.Job
}

// NewLocal creates an in-process queue over the given executor
func NewLocal(executor *Executor) *Local {
	return &Local{
		executor: executor,
		jobs:     make(map[string]*models.Job),
	}
}

// Enqueue schedules a job for asynchronous execution and returns a
// handle without blocking on the computation
func (q *Local) Enqueue(ctx context.Context, kind, inputKey string) (*models.Job, error) {
	// Fresh cached result: no job needed
	if result, ok := q.executor.CachedResult(ctx, kind, inputKey); ok {
		return &models.Job{
			ID:       uuid.New().String(),
			Kind:     kind,
			InputKey: inputKey,
			Status:   models.JobCompleted,
			Result:   result,
		}, nil
	}

	key := logicalKey(kind, inputKey)

	q.mu.Lock()
	defer q.mu.Unlock()

	// A second request for the same input observes the in-flight job
	if existing, ok := q.jobs[key]; ok {
		if existing.Status == models.JobWaiting || existing.Status == models.JobActive {
			return snapshot(existing), nil
		}
	}

	job := &models.Job{
		ID:        uuid.New().String(),
		Kind:      kind,
		InputKey:  inputKey,
		Status:    models.JobWaiting,
		CreatedAt: time.Now().UTC(),
	}
	q.jobs[key] = job

	go q.run(job)

	return snapshot(job), nil
}

// snapshot copies a job so callers never share memory with the worker
// goroutine that keeps mutating the stored record
func snapshot(job *models.Job) *models.Job {
	copied := *job
	return &copied
}

// PollResult returns the cached result, the in-flight job, or not-found
func (q *Local) PollResult(ctx context.Context, kind, inputKey string) PollResult {
	if result, ok := q.executor.CachedResult(ctx, kind, inputKey); ok {
		return PollResult{State: PollCached, Result: result}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if job, ok := q.jobs[logicalKey(kind, inputKey)]; ok {
		if job.Status == models.JobWaiting || job.Status == models.JobActive {
			return PollResult{State: PollProcessing, Job: snapshot(job)}
		}
	}

	return PollResult{State: PollNotFound}
}

// run executes a job with bounded retries. It owns the job's state
// transitions; the connection path never blocks on it.
func (q *Local) run(job *models.Job) {
	ctx := context.Background()

	q.setStatus(job, models.JobActive)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		q.mu.Lock()
		job.Attempts = attempt
		q.mu.Unlock()

		result, err := q.executor.Run(ctx, job.Kind, job.InputKey)
		if err == nil {
			q.finish(job, models.JobCompleted, result, "")
			return
		}

		lastErr = err
		logger.L.Warn("job attempt failed",
			zap.String("job_id", job.ID),
			zap.String("kind", job.Kind),
			zap.String("input_key", job.InputKey),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		if attempt < maxAttempts {
			time.Sleep(retryDelay(attempt))
		}
	}

	q.finish(job, models.JobFailed, nil, lastErr.Error())
}

func (q *Local) setStatus(job *models.Job, status string) {
	q.mu.Lock()
	job.Status = status
	q.mu.Unlock()
}

func (q *Local) finish(job *models.Job, status string, result []byte, errDetail string) {
	q.mu.Lock()
	job.Status = status
	job.Result = result
	job.Error = errDetail
	job.FinishedAt = time.Now().UTC()
	q.mu.Unlock()

	// Keep the terminal job visible briefly, then purge it
	key := logicalKey(job.Kind, job.InputKey)
	time.AfterFunc(jobRetention, func() {
		q.mu.Lock()
		if current, ok := q.jobs[key]; ok && current.ID == job.ID {
			delete(q.jobs, key)
		}
		q.mu.Unlock()
	})
}
