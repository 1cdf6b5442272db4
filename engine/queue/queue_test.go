package queue

import (
	"errors"
	"testing"
	"time"

	"github.com/lumenpipe/lumen/engine/pipelineerr"
)

func TestAdd_AssignsDefaults(t *testing.T) {
	q := New(10)
	item := &Item{Task: "summarize"}
	if err := q.Add(item); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if item.ID == "" {
		t.Error("expected ID to be assigned")
	}
	if item.Priority != DefaultPriority {
		t.Errorf("expected default priority %d, got %d", DefaultPriority, item.Priority)
	}
	if item.Status != StatusPending {
		t.Errorf("expected pending status, got %s", item.Status)
	}
}

func TestAdd_RejectsWhenFull(t *testing.T) {
	q := New(1)
	if err := q.Add(&Item{}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	err := q.Add(&Item{})
	if !pipelineerr.Is(err, pipelineerr.KindQueueFull) {
		t.Errorf("expected KindQueueFull, got %v", err)
	}
}

func TestAdd_StableInsertionOrder(t *testing.T) {
	q := New(10)
	a := &Item{ID: "a", Priority: 5}
	b := &Item{ID: "b", Priority: 5}
	c := &Item{ID: "c", Priority: 1}
	for _, it := range []*Item{a, b, c} {
		if err := q.Add(it); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	order := []string{}
	for {
		it, ok := q.Next()
		if !ok {
			break
		}
		order = append(order, it.ID)
	}
	want := []string{"c", "a", "b"}
	for i, id := range want {
		if order[i] != id {
			t.Errorf("order[%d] = %s, want %s (full order %v)", i, order[i], id, order)
		}
	}
}

func TestNext_MovesToProcessingAndStampsStartedAt(t *testing.T) {
	q := New(10)
	q.Add(&Item{ID: "a"})
	item, ok := q.Next()
	if !ok {
		t.Fatal("expected an item")
	}
	if item.Status != StatusProcessing {
		t.Errorf("expected processing, got %s", item.Status)
	}
	if item.StartedAt == nil {
		t.Error("expected StartedAt to be set")
	}
}

func TestComplete_MovesToCompletedAndIncrementsCounter(t *testing.T) {
	q := New(10)
	q.Add(&Item{ID: "a"})
	q.Next()
	if err := q.Complete("a", "result", map[string]any{"k": "v"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	snap := q.Status()
	if snap.Completed != 1 || snap.Counters.TotalProcessed != 1 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	got, ok := q.Get("a")
	if !ok || got.ResultContent != "result" {
		t.Errorf("expected completed item with result, got %+v", got)
	}
}

func TestFail_RetriesThenExhausts(t *testing.T) {
	q := New(10)
	q.Add(&Item{ID: "a", MaxRetries: 1})
	q.Next()
	cause := errors.New("provider_transport: boom")

	if err := q.Fail("a", cause); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	item, ok := q.Get("a")
	if !ok || item.Status != StatusPending || item.RetryCount != 1 {
		t.Fatalf("expected pending retry_count=1, got %+v", item)
	}

	q.Next()
	if err := q.Fail("a", cause); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	item, ok = q.Get("a")
	if !ok || item.Status != StatusFailed || item.RetryCount != 1 {
		t.Fatalf("expected failed retry_count=1, got %+v", item)
	}
}

func TestFail_ReinsertsAtHead(t *testing.T) {
	q := New(10)
	q.Add(&Item{ID: "a", Priority: 1, MaxRetries: 1})
	q.Next()
	q.Add(&Item{ID: "b", Priority: 1})
	q.Fail("a", errors.New("transient"))

	item, ok := q.Next()
	if !ok || item.ID != "a" {
		t.Errorf("expected retried item 'a' at head, got %+v", item)
	}
}

func TestCancel_Pending(t *testing.T) {
	q := New(10)
	q.Add(&Item{ID: "a"})
	if err := q.Cancel("a"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	item, ok := q.Get("a")
	if !ok || item.Status != StatusCancelled {
		t.Fatalf("expected item moved to the cancelled bucket, got %+v", item)
	}
	if _, ok := q.Next(); ok {
		t.Error("expected pending to be empty after cancellation")
	}
}

func TestCancel_ProcessingRequiresCheckpoint(t *testing.T) {
	q := New(10)
	q.Add(&Item{ID: "a"})
	q.Next()
	if err := q.Cancel("a"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	// Not yet cancelled: the worker hasn't reached a checkpoint.
	item, ok := q.Get("a")
	if !ok || item.Status != StatusProcessing {
		t.Fatalf("expected still processing before checkpoint, got %+v", item)
	}
	err := q.Checkpoint("a")
	if !pipelineerr.Is(err, pipelineerr.KindCancelled) {
		t.Errorf("expected KindCancelled from Checkpoint, got %v", err)
	}
	item, ok = q.Get("a")
	if !ok || item.Status != StatusCancelled {
		t.Fatalf("expected cancelled after checkpoint, got %+v", item)
	}
}

func TestClearCompletedAndFailed_RespectsMaxAge(t *testing.T) {
	q := New(10)
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return fixed }

	q.Add(&Item{ID: "a"})
	q.Next()
	q.Complete("a", "", nil)

	q.now = func() time.Time { return fixed.Add(2 * time.Hour) }
	if n := q.ClearCompleted(time.Hour); n != 1 {
		t.Errorf("expected 1 cleared, got %d", n)
	}
	if _, ok := q.Get("a"); ok {
		t.Error("expected completed item to be gone after clear")
	}
}

func TestInvariant_EveryItemInExactlyOneBucket(t *testing.T) {
	q := New(10)
	q.Add(&Item{ID: "a"})
	q.Add(&Item{ID: "b", MaxRetries: 0})

	if _, ok := q.Get("a"); !ok {
		t.Fatal("expected a in pending")
	}
	q.Next() // a -> processing
	item, _ := q.Next()
	if item.ID != "b" {
		t.Fatalf("expected b next, got %s", item.ID)
	}
	q.Fail("b", errors.New("x")) // b -> failed (no retries)
	q.Complete("a", "", nil)     // a -> completed

	snap := q.Status()
	total := snap.Pending + snap.Processing + snap.Completed + snap.Failed + snap.Cancelled
	if total != 2 {
		t.Errorf("expected exactly 2 items across buckets, got %d (%+v)", total, snap)
	}
}

func TestInvariant_CancelledItemCountsInSnapshot(t *testing.T) {
	q := New(10)
	q.Add(&Item{ID: "a"})
	q.Add(&Item{ID: "b"})
	q.Next() // b stays pending, a -> processing
	q.Cancel("b")
	q.Cancel("a") // processing: only flags, doesn't move yet
	if err := q.Checkpoint("a"); err == nil {
		t.Fatal("expected Checkpoint to report cancellation")
	}

	snap := q.Status()
	if snap.Cancelled != 2 {
		t.Errorf("expected 2 cancelled items, got %+v", snap)
	}
	total := snap.Pending + snap.Processing + snap.Completed + snap.Failed + snap.Cancelled
	if total != 2 {
		t.Errorf("expected exactly 2 items across buckets, got %d (%+v)", total, snap)
	}
}
