// Package worker implements the N-goroutine pool that pulls items from
// engine/queue, dispatches them to the right Processor, and optionally
// pipes successful output into the vector store (§4.6).
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lumenpipe/lumen/engine/pipelineerr"
	"github.com/lumenpipe/lumen/engine/processor"
	"github.com/lumenpipe/lumen/engine/queue"
	"github.com/lumenpipe/lumen/pkg/fn"
	"github.com/lumenpipe/lumen/pkg/natsutil"
	"github.com/nats-io/nats.go"
)

// LifecycleEvent is published on the optional NATS subject after each
// processing attempt ends: completed, cancelled, or failed (a "failed" event
// is also sent when the queue requeues the item for another try).
type LifecycleEvent struct {
	ItemID    string `json:"item_id"`
	Task      string `json:"task"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Pool is a long-lived set of workers cooperating over a single queue.
type Pool struct {
	queue        *queue.Queue
	processors   map[string]processor.Processor
	vector       *processor.VectorProcessor
	workers      int
	pollInterval time.Duration

	nc      *nats.Conn
	subject string
	logger  *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	now func() time.Time
}

// New wires a pool of `workers` goroutines over q, dispatching by
// item.ProcessorKind into processors. vector may be nil to disable the
// store-in-vector-db sidecar step. nc may be nil to disable lifecycle
// events entirely.
func New(q *queue.Queue, processors map[string]processor.Processor, vector *processor.VectorProcessor, workers int, nc *nats.Conn, subject string, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if subject == "" {
		subject = "lumen.items"
	}
	return &Pool{
		queue:        q,
		processors:   processors,
		vector:       vector,
		workers:      workers,
		pollInterval: 50 * time.Millisecond,
		nc:           nc,
		subject:      subject,
		logger:       logger,
		now:          time.Now,
	}
}

// Start launches the worker goroutines. Call Stop to shut them down.
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
}

// Stop signals all workers to exit and waits for them to drain.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		item, ok := p.queue.Next()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.pollInterval):
			}
			continue
		}
		p.processItem(ctx, item)
	}
}

// loadContentStage reads the file backing a file-process item, traced as
// its own span since it's the one step here that touches disk.
var loadContentStage = fn.TracedStage("worker.load_content", func(_ context.Context, item *queue.Item) fn.Result[string] {
	if item.Kind == queue.KindFileProcess && item.FilePath != "" && item.Content == "" {
		data, err := os.ReadFile(item.FilePath)
		if err != nil {
			return fn.Err[string](pipelineerr.New(pipelineerr.KindFileNotFound, item.FilePath))
		}
		return fn.Ok(string(data))
	}
	return fn.Ok(item.Content)
})

type dispatchInput struct {
	proc    processor.Processor
	content string
	task    string
	opts    processor.CallOptions
}

// dispatchStage runs the matched processor, traced so a slow local/remote
// LLM round trip shows up as its own span distinct from load/sidecar time.
var dispatchStage = fn.TracedStage("worker.dispatch", func(ctx context.Context, in dispatchInput) fn.Result[processor.Result] {
	result := in.proc.Process(ctx, in.content, in.task, in.opts)
	if !result.OK {
		return fn.Err[processor.Result](result.Error)
	}
	return fn.Ok(result)
})

func (p *Pool) processItem(ctx context.Context, item *queue.Item) {
	content, err := loadContentStage(ctx, item).Unwrap()
	if err != nil {
		p.fail(item, err)
		return
	}

	if err := p.queue.Checkpoint(item.ID); err != nil {
		p.publish(item, "cancelled", err)
		return
	}

	proc, ok := p.processors[item.ProcessorKind]
	if !ok {
		p.fail(item, pipelineerr.New(pipelineerr.KindUnknownTask, item.ProcessorKind))
		return
	}

	result, err := dispatchStage(ctx, dispatchInput{
		proc:    proc,
		content: content,
		task:    item.Task,
		opts:    processor.CallOptions{Extra: item.Metadata},
	}).Unwrap()
	if err != nil {
		p.fail(item, err)
		return
	}

	resultMetadata := result.Metadata
	if resultMetadata == nil {
		resultMetadata = map[string]any{}
	}
	p.traceVectorSidecar(ctx, item, content, result, resultMetadata)

	if err := p.queue.Complete(item.ID, result.Content, resultMetadata); err != nil {
		p.logger.Error("complete failed", "item", item.ID, "error", err)
		return
	}
	p.publish(item, "completed", nil)
}

// traceVectorSidecar wraps storeInVectorDB in its own span so the
// sidecar's latency (and its never-fail-the-parent outcome) is visible
// separately from the processor dispatch it follows.
func (p *Pool) traceVectorSidecar(ctx context.Context, item *queue.Item, content string, result processor.Result, resultMetadata map[string]any) {
	stage := fn.TracedStage("worker.vector_sidecar", func(ctx context.Context, _ struct{}) fn.Result[struct{}] {
		p.storeInVectorDB(ctx, item, content, result, resultMetadata)
		return fn.Ok(struct{}{})
	})
	stage(ctx, struct{}{})
}

// storeInVectorDB implements step 5: when requested, synchronously store the
// processor's output in the vector store. Its failure never fails the
// parent item; only resultMetadata["vector_storage"] records the outcome.
func (p *Pool) storeInVectorDB(ctx context.Context, item *queue.Item, content string, result processor.Result, resultMetadata map[string]any) {
	if p.vector == nil || !truthy(item.Metadata["store_in_vector_db"]) {
		return
	}

	id := derivedID(item, p.now())
	extra := map[string]any{
		"id":             id,
		"original_task":  item.Task,
		"processor_kind": item.ProcessorKind,
		"processed_at":   p.now().Unix(),
		"auto_generated": true,
	}
	if item.FilePath != "" {
		extra["file_path"] = item.FilePath
		extra["source_file"] = item.FilePath
	}
	if wd, ok := item.Metadata["watched_directory"]; ok {
		extra["watched_directory"] = wd
	}
	if dm, ok := item.Metadata["directory_metadata"]; ok {
		extra["directory_metadata"] = dm
	}

	vres := p.vector.Process(ctx, result.Content, "store", processor.CallOptions{Extra: extra})
	if vres.OK {
		resultMetadata["vector_storage"] = map[string]any{"ok": true, "id": vres.Content}
	} else {
		resultMetadata["vector_storage"] = map[string]any{"ok": false, "error": vres.Error.Error()}
	}
}

func (p *Pool) fail(item *queue.Item, cause error) {
	if err := p.queue.Fail(item.ID, cause); err != nil {
		p.logger.Error("fail failed", "item", item.ID, "error", err)
	}
	p.publish(item, "failed", cause)
}

func (p *Pool) publish(item *queue.Item, status string, cause error) {
	if p.nc == nil {
		return
	}
	evt := LifecycleEvent{ItemID: item.ID, Task: item.Task, Status: status, Timestamp: p.now().Unix()}
	if cause != nil {
		evt.Error = cause.Error()
	}
	if err := natsutil.Publish(context.Background(), p.nc, p.subject, evt); err != nil {
		p.logger.Warn("lifecycle event publish failed", "item", item.ID, "error", err)
	}
}

// derivedID builds "{file_stem}_{task}_{epoch}" or "content_{task}_{epoch}"
// when the item carries no path (§4.6 step 5).
func derivedID(item *queue.Item, now time.Time) string {
	stem := "content"
	if item.FilePath != "" {
		base := filepath.Base(item.FilePath)
		stem = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return fmt.Sprintf("%s_%s_%d", stem, item.Task, now.Unix())
}

func truthy(v any) bool {
	switch tv := v.(type) {
	case bool:
		return tv
	case string:
		b, _ := strconv.ParseBool(tv)
		return b
	default:
		return false
	}
}
