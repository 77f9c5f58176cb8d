// Package queue runs CPU-bound pairing and insight jobs off the request
// path. Two implementations share one contract: a broker-backed queue for
// deployments with NATS available, and an in-process worker for local
// runs and tests. Callers cannot tell them apart.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/knowandlove/classquiz-go/db"
	"github.com/knowandlove/classquiz-go/kv"
	"github.com/knowandlove/classquiz-go/models"
	"github.com/knowandlove/classquiz-go/pairing"
)

// Retry policy: a job gets a bounded number of attempts with
// exponentially increasing delay, and each attempt carries its own
// deadline so a stuck computation ends in failed, not active-forever.
const (
	maxAttempts    = 3
	baseRetryDelay = time.Second
	attemptTimeout = 30 * time.Second
)

// Terminal jobs stick around briefly for observability, then get purged
const jobRetention = 5 * time.Minute

// Poll states
const (
	PollCached     = "cached"
	PollProcessing = "processing"
	PollNotFound   = "not-found"
)

// PollResult is the outcome of polling for a computed result
type PollResult struct {
	State  string      `json:"state"`
	Result []byte      `json:"result,omitempty"`
	Job    *models.Job `json:"job,omitempty"`
}

// Queue is the external contract shared by both implementations
type Queue interface {
	// Enqueue returns immediately with a job handle. A fresh cached
	// result short-circuits without creating a job; a waiting or active
	// job for the same (kind, inputKey) is returned instead of a
	// duplicate.
	Enqueue(ctx context.Context, kind, inputKey string) (*models.Job, error)

	// PollResult returns the cached result, a processing indicator with
	// the in-flight job, or not-found
	PollResult(ctx context.Context, kind, inputKey string) PollResult
}

func cacheKey(kind, inputKey string) string {
	return "jobresult:" + kind + ":" + inputKey
}

func logicalKey(kind, inputKey string) string {
	return kind + ":" + inputKey
}

// Executor fetches a job's input data, runs the computation for its
// kind, and writes the result into the TTL cache
type Executor struct {
	source   db.ParticipantSource
	cache    kv.Store
	cacheTTL time.Duration
}

// NewExecutor wires the executor to its collaborators
func NewExecutor(source db.ParticipantSource, cache kv.Store, cacheTTL time.Duration) *Executor {
	return &Executor{source: source, cache: cache, cacheTTL: cacheTTL}
}

// Run performs one attempt of a job and caches the result on success
func (e *Executor) Run(ctx context.Context, kind, inputKey string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, attemptTimeout)
	defer cancel()

	participants, err := e.source.ListByGroup(ctx, inputKey)
	if err != nil {
		return nil, fmt.Errorf("fetch participants: %w", err)
	}

	var payload interface{}
	switch kind {
	case models.JobKindPairing:
		payload = pairing.GeneratePairings(inputKey, participants)
	case models.JobKindInsight:
		payload = pairing.GenerateInsights(inputKey, participants)
	default:
		return nil, fmt.Errorf("unknown job kind %q", kind)
	}

	result, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}

	if err := e.cache.SetEX(ctx, cacheKey(kind, inputKey), string(result), e.cacheTTL); err != nil {
		return nil, fmt.Errorf("cache result: %w", err)
	}

	return result, nil
}

// CachedResult returns the unexpired cached result for a key, if any
func (e *Executor) CachedResult(ctx context.Context, kind, inputKey string) ([]byte, bool) {
	value, ok := e.cache.Get(ctx, cacheKey(kind, inputKey))
	if !ok {
		return nil, false
	}
	return []byte(value), true
}

func retryDelay(attempt int) time.Duration {
	return baseRetryDelay << (attempt - 1)
}
