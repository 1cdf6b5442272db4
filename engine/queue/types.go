package queue

import "time"

// Kind identifies the shape of work a QueueItem carries.
type Kind string

const (
	KindFileProcess Kind = "file_process"
	KindVectorStore Kind = "vector_store"
	KindBatch       Kind = "batch"
)

// Status is the lifecycle state of a QueueItem.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Source distinguishes watcher-originated work from API/CLI-originated work.
// It never affects priority ordering; it is carried for observability only.
type Source string

const (
	SourceWatch  Source = "watch"
	SourceManual Source = "manual"
)

// DefaultPriority is assigned to items that don't specify one.
const DefaultPriority = 5

// WatchPriority is fixed for items synthesised by the file watcher (§4.7).
const WatchPriority = 3

// Item is a unit of work flowing from the watcher through the queue to a worker.
type Item struct {
	ID             string
	Kind           Kind
	FilePath       string
	Content        string
	Task           string
	ProcessorKind  string
	Source         Source
	Metadata       map[string]any
	Priority       int
	RetryCount     int
	MaxRetries     int
	Status         Status
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
	ResultContent  string
	ResultMetadata map[string]any
	Error          string

	cancelRequested bool
}

// ProcessingTime returns completed_at - started_at, or zero if either is unset.
func (it *Item) ProcessingTime() time.Duration {
	if it.StartedAt == nil || it.CompletedAt == nil {
		return 0
	}
	return it.CompletedAt.Sub(*it.StartedAt)
}

func (it *Item) clone() *Item {
	cp := *it
	if it.Metadata != nil {
		cp.Metadata = make(map[string]any, len(it.Metadata))
		for k, v := range it.Metadata {
			cp.Metadata[k] = v
		}
	}
	if it.ResultMetadata != nil {
		cp.ResultMetadata = make(map[string]any, len(it.ResultMetadata))
		for k, v := range it.ResultMetadata {
			cp.ResultMetadata[k] = v
		}
	}
	if it.StartedAt != nil {
		t := *it.StartedAt
		cp.StartedAt = &t
	}
	if it.CompletedAt != nil {
		t := *it.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// Counters are the queue's monotonic aggregate statistics.
type Counters struct {
	TotalAdded     int64
	TotalProcessed int64
	TotalFailed    int64
	TotalCancelled int64
}

// Snapshot reports the current size of every bucket plus the monotonic counters.
type Snapshot struct {
	Pending    int
	Processing int
	Completed  int
	Failed     int
	Cancelled  int
	Counters   Counters
}
