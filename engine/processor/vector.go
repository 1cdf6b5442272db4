package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/lumenpipe/lumen/engine/pipelineerr"
	"github.com/lumenpipe/lumen/engine/vectorstore"
)

// VectorProcessor adapts task dispatch onto a vectorstore.Store: store,
// search, retrieve, delete, list, stats.
type VectorProcessor struct {
	store vectorstore.Store
}

func NewVectorProcessor(store vectorstore.Store) *VectorProcessor {
	return &VectorProcessor{store: store}
}

func (p *VectorProcessor) Kind() string { return "vector" }

func (p *VectorProcessor) Process(ctx context.Context, content, task string, opts CallOptions) Result {
	start := time.Now()
	switch task {
	case "store":
		return p.store_(ctx, start, content, opts)
	case "search":
		return p.search(ctx, start, content, opts)
	case "retrieve":
		return p.retrieve(ctx, start, opts)
	case "delete":
		return p.delete(ctx, start, opts)
	case "list":
		return p.list(ctx, start, opts)
	case "stats":
		return p.stats(ctx, start)
	default:
		return failResult(start, pipelineerr.New(pipelineerr.KindUnknownTask, task))
	}
}

func (p *VectorProcessor) store_(ctx context.Context, start time.Time, content string, opts CallOptions) Result {
	if content == "" {
		return failResult(start, pipelineerr.New(pipelineerr.KindInvalidInput, "content must not be empty"))
	}
	metadata := map[string]any{}
	for k, v := range opts.Extra {
		if k == "id" {
			continue
		}
		metadata[k] = v
	}
	if filePath, ok := opts.Extra["file_path"]; ok {
		metadata["file_path"] = filePath
	}

	id, _ := opts.Extra["id"].(string)
	doc, err := p.store.Add(ctx, content, metadata, id)
	if err != nil {
		return failResult(start, err)
	}
	return okResult(start, doc.ID, map[string]any{"id": doc.ID})
}

func (p *VectorProcessor) search(ctx context.Context, start time.Time, content string, opts CallOptions) Result {
	if content == "" {
		return failResult(start, pipelineerr.New(pipelineerr.KindInvalidInput, "query content must not be empty"))
	}
	k := 5
	if v, ok := opts.Extra["k"].(int); ok && v > 0 {
		k = v
	}
	var filter map[string]any
	if f, ok := opts.Extra["filter"].(map[string]any); ok {
		filter = f
	}
	results, err := p.store.Query(ctx, content, k, filter)
	if err != nil {
		return failResult(start, err)
	}
	return okResult(start, fmt.Sprintf("%d results", len(results)), map[string]any{"results": results})
}

func (p *VectorProcessor) retrieve(ctx context.Context, start time.Time, opts CallOptions) Result {
	id, _ := opts.Extra["id"].(string)
	if id == "" {
		return failResult(start, pipelineerr.New(pipelineerr.KindInvalidInput, "id required for retrieve"))
	}
	doc, err := p.store.Get(ctx, id)
	if err != nil {
		return failResult(start, err)
	}
	return okResult(start, doc.Content, map[string]any{"document": doc})
}

func (p *VectorProcessor) delete(ctx context.Context, start time.Time, opts CallOptions) Result {
	id, _ := opts.Extra["id"].(string)
	if id == "" {
		return failResult(start, pipelineerr.New(pipelineerr.KindInvalidInput, "id required for delete"))
	}
	if err := p.store.Delete(ctx, id); err != nil {
		return failResult(start, err)
	}
	return okResult(start, id, nil)
}

func (p *VectorProcessor) list(ctx context.Context, start time.Time, opts CallOptions) Result {
	limit := 0
	if v, ok := opts.Extra["limit"].(int); ok {
		limit = v
	}
	docs, err := p.store.List(ctx, limit)
	if err != nil {
		return failResult(start, err)
	}
	return okResult(start, fmt.Sprintf("%d documents", len(docs)), map[string]any{"documents": docs})
}

func (p *VectorProcessor) stats(ctx context.Context, start time.Time) Result {
	stats, err := p.store.Stats(ctx)
	if err != nil {
		return failResult(start, err)
	}
	return okResult(start, stats.Collection, map[string]any{"stats": stats})
}
