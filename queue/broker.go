package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/knowandlove/classquiz-go/kv"
	"github.com/knowandlove/classquiz-go/logger"
	"github.com/knowandlove/classquiz-go/models"
)

// jobSubject is the NATS subject job envelopes are published to; workers
// join one queue group so each job is delivered to a single worker
const (
	jobSubject   = "compute.jobs"
	workerGroup  = "compute-workers"
	jobKeyPrefix = "job:"

	// A waiting or active record carries a short TTL, refreshed on every
	// attempt, so a claim held by a crashed worker evicts quickly and
	// the next enqueue starts fresh instead of deduping against a dead
	// job. Terminal records stay the full retention window.
	jobClaimTTL  = 2 * time.Minute
	jobRecordTTL = 15 * time.Minute
)

// Broker distributes jobs over NATS. Job state and the result cache live
// in the shared key-value backend, so any instance can poll a job
// enqueued by any other.
type Broker struct {
	executor *Executor
	backend  kv.Store
	conn     *nats.Conn
	sub      *nats.Subscription
}

type jobEnvelope struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	InputKey string `json:"inputKey"`
}

// NewBroker connects to NATS and starts consuming jobs
func NewBroker(url string, executor *Executor, backend kv.Store) (*Broker, error) {
	conn, err := nats.Connect(url,
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	b := &Broker{executor: executor, backend: backend, conn: conn}

	sub, err := conn.QueueSubscribe(jobSubject, workerGroup, b.handle)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe %s: %w", jobSubject, err)
	}
	b.sub = sub

	return b, nil
}

// Close drains the subscription and disconnects
func (b *Broker) Close() {
	if b.sub != nil {
		_ = b.sub.Drain()
	}
	b.conn.Close()
}

func jobRecordKey(kind, inputKey string) string {
	return jobKeyPrefix + logicalKey(kind, inputKey)
}

func (b *Broker) loadJob(ctx context.Context, kind, inputKey string) (*models.Job, bool) {
	data, ok := b.backend.Get(ctx, jobRecordKey(kind, inputKey))
	if !ok {
		return nil, false
	}

	var job models.Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		logger.L.Warn("corrupt job record",
			zap.String("kind", kind),
			zap.String("input_key", inputKey),
			zap.Error(err),
		)
		return nil, false
	}

	return &job, true
}

func (b *Broker) storeJob(ctx context.Context, job *models.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}

	ttl := jobRecordTTL
	if job.Status == models.JobWaiting || job.Status == models.JobActive {
		ttl = jobClaimTTL
	}

	return b.backend.SetEX(ctx, jobRecordKey(job.Kind, job.InputKey), string(data), ttl)
}

// Enqueue publishes a job envelope unless a cached result or an
// equivalent in-flight job short-circuits it.
//
// Cross-instance dedup is read-then-write against the shared backend: a
// narrow race can start two equivalent jobs, which is harmless because
// the computation is idempotent and both land in the same cache slot.
func (b *Broker) Enqueue(ctx context.Context, kind, inputKey string) (*models.Job, error) {
	if result, ok := b.executor.CachedResult(ctx, kind, inputKey); ok {
		return &models.Job{
			ID:       uuid.New().String(),
			Kind:     kind,
			InputKey: inputKey,
			Status:   models.JobCompleted,
			Result:   result,
		}, nil
	}

	if existing, ok := b.loadJob(ctx, kind, inputKey); ok {
		if existing.Status == models.JobWaiting || existing.Status == models.JobActive {
			return existing, nil
		}
	}

	job := &models.Job{
		ID:        uuid.New().String(),
		Kind:      kind,
		InputKey:  inputKey,
		Status:    models.JobWaiting,
		CreatedAt: time.Now().UTC(),
	}

	if err := b.storeJob(ctx, job); err != nil {
		return nil, err
	}

	envelope, err := json.Marshal(jobEnvelope{ID: job.ID, Kind: kind, InputKey: inputKey})
	if err != nil {
		return nil, fmt.Errorf("marshal job envelope: %w", err)
	}
	if err := b.conn.Publish(jobSubject, envelope); err != nil {
		return nil, fmt.Errorf("publish job %s: %w", job.ID, err)
	}

	return job, nil
}

// PollResult returns the cached result, the in-flight job, or not-found
func (b *Broker) PollResult(ctx context.Context, kind, inputKey string) PollResult {
	if result, ok := b.executor.CachedResult(ctx, kind, inputKey); ok {
		return PollResult{State: PollCached, Result: result}
	}

	if job, ok := b.loadJob(ctx, kind, inputKey); ok {
		if job.Status == models.JobWaiting || job.Status == models.JobActive {
			return PollResult{State: PollProcessing, Job: job}
		}
	}

	return PollResult{State: PollNotFound}
}

// handle executes one delivered job with the same bounded-retry policy
// as the in-process queue
func (b *Broker) handle(msg *nats.Msg) {
	var envelope jobEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		logger.L.Warn("discarding malformed job envelope", zap.Error(err))
		return
	}

	ctx := context.Background()

	job, ok := b.loadJob(ctx, envelope.Kind, envelope.InputKey)
	if !ok || job.ID != envelope.ID {
		// Record already evicted or superseded; nothing to run
		return
	}

	job.Status = models.JobActive
	if err := b.storeJob(ctx, job); err != nil {
		logger.L.Warn("claiming job failed", zap.String("job_id", job.ID), zap.Error(err))
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		job.Attempts = attempt

		result, err := b.executor.Run(ctx, job.Kind, job.InputKey)
		if err == nil {
			job.Status = models.JobCompleted
			job.Result = result
			job.FinishedAt = time.Now().UTC()
			if err := b.storeJob(ctx, job); err != nil {
				logger.L.Warn("recording completion failed", zap.String("job_id", job.ID), zap.Error(err))
			}
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

		// Refresh the claim so the record reflects progress and a live
		// retry loop never looks like a stale claim
		if err := b.storeJob(ctx, job); err != nil {
			logger.L.Warn("refreshing claim failed", zap.String("job_id", job.ID), zap.Error(err))
		}

		if attempt < maxAttempts {
			time.Sleep(retryDelay(attempt))
		}
	}

	job.Status = models.JobFailed
	job.Error = lastErr.Error()
	job.FinishedAt = time.Now().UTC()
	if err := b.storeJob(ctx, job); err != nil {
		logger.L.Warn("recording failure failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}
