package cortexa_test

import (
	"context"
	"testing"
	"time"

	"github.com/equaltechbd/cortexa/pkg/cortexa"
	"github.com/equaltechbd/cortexa/storage/memory"
)

func waitForDepth(t *testing.T, r *cortexa.Reconciler, depth int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.Depth() == depth {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Queue depth did not reach %d (current %d)", depth, r.Depth())
}

func TestReconciler_AppliesQueuedIncrements(t *testing.T) {
	ledger := memory.New()
	reconciler, err := cortexa.NewReconciler(ledger, cortexa.ReconcilerConfig{})
	if err != nil {
		t.Fatalf("NewReconciler failed: %v", err)
	}

	day := cortexa.StartOfDayUTC(time.Now())
	req := &cortexa.IncrementRequest{
		UserID:   "user1",
		Day:      day,
		Resource: cortexa.ResourceMessage,
		Limit:    20,
		Tier:     cortexa.TierFree,
		TeamSize: 1,
	}

	for i := 0; i < 3; i++ {
		if !reconciler.Enqueue(req) {
			t.Fatalf("Enqueue %d rejected", i+1)
		}
	}

	// Close drains the queue before returning
	reconciler.Close()

	record, err := ledger.Read(context.Background(), "user1", day)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if record.MessageCount != 3 {
		t.Errorf("Expected 3 replayed increments, got %d", record.MessageCount)
	}
}

func TestReconciler_DropsWhenLimitRecoveredFull(t *testing.T) {
	ledger := memory.New()

	// Fill the day's budget directly
	day := cortexa.StartOfDayUTC(time.Now())
	fill := &cortexa.IncrementRequest{
		UserID: "user1", Day: day, Resource: cortexa.ResourceMessage,
		Limit: 2, Tier: cortexa.TierFree, TeamSize: 1,
	}
	for i := 0; i < 2; i++ {
		if _, err := ledger.ConditionalIncrement(context.Background(), fill); err != nil {
			t.Fatalf("Fill increment failed: %v", err)
		}
	}

	reconciler, err := cortexa.NewReconciler(ledger, cortexa.ReconcilerConfig{})
	if err != nil {
		t.Fatalf("NewReconciler failed: %v", err)
	}

	// The replay hits the limit and is dropped, not retried
	if !reconciler.Enqueue(fill) {
		t.Fatal("Enqueue rejected")
	}
	reconciler.Close()

	record, err := ledger.Read(context.Background(), "user1", day)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if record.MessageCount != 2 {
		t.Errorf("Expected counter to stay at 2, got %d", record.MessageCount)
	}
}

func TestReconciler_EnqueueNeverBlocks(t *testing.T) {
	// A ledger that never answers would wedge the worker; the queue must
	// still reject instead of blocking once full.
	ledger := memory.New()
	reconciler, err := cortexa.NewReconciler(ledger, cortexa.ReconcilerConfig{
		QueueSize: 1,
	})
	if err != nil {
		t.Fatalf("NewReconciler failed: %v", err)
	}
	defer reconciler.Close()

	req := &cortexa.IncrementRequest{
		UserID: "user1", Day: cortexa.StartOfDayUTC(time.Now()),
		Resource: cortexa.ResourceMessage, Limit: 1000, Tier: cortexa.TierFree, TeamSize: 1,
	}

	// Saturate: with a queue of 1, at least one of a burst must fail fast
	accepted := 0
	for i := 0; i < 100; i++ {
		if reconciler.Enqueue(req) {
			accepted++
		}
	}
	if accepted == 0 {
		t.Error("Expected some enqueues to be accepted")
	}

	waitForDepth(t, reconciler, 0)
}
