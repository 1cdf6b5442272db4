// Package queue implements the priority-ordered, size-capped in-memory
// processing queue: a single mutex-guarded structure with pending/processing/
// completed/failed buckets and a retry policy.
package queue

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lumenpipe/lumen/engine/pipelineerr"
)

// Queue is the processing queue described in §4.5. All operations are atomic
// with respect to a single mutex; no external code may alias the internal
// buckets.
type Queue struct {
	mu sync.Mutex

	maxSize    int
	pending    []*Item
	processing map[string]*Item
	completed  map[string]*Item
	failed     map[string]*Item
	cancelled  map[string]*Item

	counters Counters
	now      func() time.Time
}

// New creates an empty queue capped at maxSize pending items.
func New(maxSize int) *Queue {
	return &Queue{
		maxSize:    maxSize,
		processing: make(map[string]*Item),
		completed:  make(map[string]*Item),
		failed:     make(map[string]*Item),
		cancelled:  make(map[string]*Item),
		now:        time.Now,
	}
}

// Add inserts item into pending, rejecting it with KindQueueFull when the
// pending bucket is already at capacity. If item.ID is empty a UUID is
// assigned. Insertion preserves FIFO order among equal-priority items.
func (q *Queue) Add(item *Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.maxSize > 0 && len(q.pending) >= q.maxSize {
		return pipelineerr.New(pipelineerr.KindQueueFull, "pending queue at capacity")
	}

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Priority == 0 {
		item.Priority = DefaultPriority
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = q.now()
	}
	item.Status = StatusPending

	pos := len(q.pending)
	for i, other := range q.pending {
		if other.Priority > item.Priority {
			pos = i
			break
		}
	}
	q.pending = append(q.pending, nil)
	copy(q.pending[pos+1:], q.pending[pos:])
	q.pending[pos] = item

	q.counters.TotalAdded++
	return nil
}

// Next pops the highest-priority (lowest Priority value) item from pending,
// moves it to processing, and stamps StartedAt. Returns false if pending is
// empty.
func (q *Queue) Next() (*Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil, false
	}
	item := q.pending[0]
	q.pending = q.pending[1:]

	now := q.now()
	item.Status = StatusProcessing
	item.StartedAt = &now
	q.processing[item.ID] = item

	return item.clone(), true
}

// Complete moves item id from processing to completed.
func (q *Queue) Complete(id string, content string, meta map[string]any) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.processing[id]
	if !ok {
		return pipelineerr.New(pipelineerr.KindNotFound, id)
	}
	delete(q.processing, id)

	now := q.now()
	item.Status = StatusCompleted
	item.CompletedAt = &now
	item.ResultContent = content
	item.ResultMetadata = meta
	q.completed[id] = item

	q.counters.TotalProcessed++
	return nil
}

// Fail records a failure for item id. If RetryCount < MaxRetries and cause is
// retryable (a plain error, or a pipelineerr.Error whose kind Retryable
// accepts) the item is reset to Pending and reinserted at the head of the
// queue, preempting same-priority work already queued; otherwise it moves to
// failed.
func (q *Queue) Fail(id string, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.processing[id]
	if !ok {
		return pipelineerr.New(pipelineerr.KindNotFound, id)
	}
	delete(q.processing, id)

	errMsg := cause.Error()
	item.Error = errMsg

	retryable := pipelineerr.KindOf(cause) == "" || pipelineerr.Retryable(cause)
	if item.RetryCount < item.MaxRetries && retryable {
		item.RetryCount++
		item.Status = StatusPending
		item.StartedAt = nil
		q.pending = append([]*Item{item}, q.pending...)
		return nil
	}

	now := q.now()
	item.Status = StatusFailed
	item.CompletedAt = &now
	q.failed[id] = item
	q.counters.TotalFailed++
	return nil
}

// Cancel removes a pending item immediately, or marks a processing item's
// cancellation flag for the worker to observe at its next checkpoint. It has
// no effect on items already in a terminal bucket.
func (q *Queue) Cancel(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, item := range q.pending {
		if item.ID == id {
			now := q.now()
			item.Status = StatusCancelled
			item.CompletedAt = &now
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			q.cancelled[id] = item
			q.counters.TotalCancelled++
			return nil
		}
	}
	if item, ok := q.processing[id]; ok {
		item.cancelRequested = true
		return nil
	}
	return pipelineerr.New(pipelineerr.KindNotFound, id)
}

// Checkpoint is called by a worker at an I/O boundary while processing id. It
// returns a KindCancelled error if Cancel was called on this item, moving it
// to the cancelled terminal state; otherwise nil.
func (q *Queue) Checkpoint(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.processing[id]
	if !ok {
		return nil
	}
	if !item.cancelRequested {
		return nil
	}
	delete(q.processing, id)
	now := q.now()
	item.Status = StatusCancelled
	item.CompletedAt = &now
	q.cancelled[id] = item
	q.counters.TotalCancelled++
	return pipelineerr.New(pipelineerr.KindCancelled, id)
}

// ClearCompleted drops completed items older than now-maxAge, returning the
// number removed.
func (q *Queue) ClearCompleted(maxAge time.Duration) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return clearOlderThan(q.completed, q.now(), maxAge)
}

// ClearFailed drops failed items older than now-maxAge, returning the number
// removed.
func (q *Queue) ClearFailed(maxAge time.Duration) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return clearOlderThan(q.failed, q.now(), maxAge)
}

func clearOlderThan(bucket map[string]*Item, now time.Time, maxAge time.Duration) int {
	removed := 0
	cutoff := now.Add(-maxAge)
	for id, item := range bucket {
		ts := item.CreatedAt
		if item.CompletedAt != nil {
			ts = *item.CompletedAt
		}
		if ts.Before(cutoff) {
			delete(bucket, id)
			removed++
		}
	}
	return removed
}

// Status returns bucket sizes and the monotonic counters.
func (q *Queue) Status() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Snapshot{
		Pending:    len(q.pending),
		Processing: len(q.processing),
		Completed:  len(q.completed),
		Failed:     len(q.failed),
		Cancelled:  len(q.cancelled),
		Counters:   q.counters,
	}
}

// Get returns a copy of the item with the given id in any bucket.
func (q *Queue) Get(id string) (*Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, item := range q.pending {
		if item.ID == id {
			return item.clone(), true
		}
	}
	if item, ok := q.processing[id]; ok {
		return item.clone(), true
	}
	if item, ok := q.completed[id]; ok {
		return item.clone(), true
	}
	if item, ok := q.failed[id]; ok {
		return item.clone(), true
	}
	if item, ok := q.cancelled[id]; ok {
		return item.clone(), true
	}
	return nil, false
}

// ByStatus returns copies of every item currently in the given bucket.
func (q *Queue) ByStatus(status Status) []*Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []*Item
	switch status {
	case StatusPending:
		for _, item := range q.pending {
			out = append(out, item.clone())
		}
	case StatusProcessing:
		for _, item := range q.processing {
			out = append(out, item.clone())
		}
	case StatusCompleted:
		for _, item := range q.completed {
			out = append(out, item.clone())
		}
	case StatusFailed:
		for _, item := range q.failed {
			out = append(out, item.clone())
		}
	case StatusCancelled:
		for _, item := range q.cancelled {
			out = append(out, item.clone())
		}
	}
	return out
}
