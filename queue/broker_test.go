package queue

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/knowandlove/classquiz-go/kv"
	"github.com/knowandlove/classquiz-go/models"
)

// brokerFixture builds a Broker over the in-memory backend. The record
// helpers under test never touch the NATS connection.
func brokerFixture(backend *kv.Memory) *Broker {
	return &Broker{
		executor: NewExecutor(failingSource{}, backend, time.Minute),
		backend:  backend,
	}
}

func TestStaleClaimEvictsQuickly(t *testing.T) {
	backend := kv.NewMemory()
	b := brokerFixture(backend)
	ctx := context.Background()

	job := &models.Job{
		ID:        uuid.New().String(),
		Kind:      models.JobKindPairing,
		InputKey:  "class-42",
		Status:    models.JobActive,
		CreatedAt: time.Now().UTC(),
	}
	if err := b.storeJob(ctx, job); err != nil {
		t.Fatalf("store job: %v", err)
	}

	if got := b.PollResult(ctx, job.Kind, job.InputKey); got.State != PollProcessing {
		t.Fatalf("fresh claim must poll as processing, got %q", got.State)
	}

	// A worker that crashed mid-job stops refreshing its claim; once the
	// claim window passes the record must read as gone, not in-flight
	backend.SetClock(func() time.Time { return time.Now().Add(3 * time.Minute) })

	if got := b.PollResult(ctx, job.Kind, job.InputKey); got.State != PollNotFound {
		t.Fatalf("stale claim must evict, got %q", got.State)
	}
	if _, ok := b.loadJob(ctx, job.Kind, job.InputKey); ok {
		t.Fatal("stale record still loadable, would dedup against a dead job")
	}
}

func TestTerminalRecordOutlivesClaimWindow(t *testing.T) {
	backend := kv.NewMemory()
	b := brokerFixture(backend)
	ctx := context.Background()

	job := &models.Job{
		ID:         uuid.New().String(),
		Kind:       models.JobKindPairing,
		InputKey:   "class-42",
		Status:     models.JobFailed,
		Error:      "database offline",
		CreatedAt:  time.Now().UTC(),
		FinishedAt: time.Now().UTC(),
	}
	if err := b.storeJob(ctx, job); err != nil {
		t.Fatalf("store job: %v", err)
	}

	backend.SetClock(func() time.Time { return time.Now().Add(3 * time.Minute) })

	loaded, ok := b.loadJob(ctx, job.Kind, job.InputKey)
	if !ok {
		t.Fatal("terminal record must keep the full retention window")
	}
	if loaded.Status != models.JobFailed || loaded.Error != "database offline" {
		t.Fatalf("terminal record changed: %+v", loaded)
	}
}
