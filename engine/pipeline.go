// Package engine wires components C1-C8 into one running pipeline: config,
// embedding, vector store, prompt registry, processors, queue, worker pool,
// and file watcher (§2's data flow, C7 → C8 → C5 → C6 → C4 → C2).
package engine

import (
	"context"
	"log/slog"

	"github.com/lumenpipe/lumen/engine/config"
	"github.com/lumenpipe/lumen/engine/embedding"
	"github.com/lumenpipe/lumen/engine/pipelineerr"
	"github.com/lumenpipe/lumen/engine/processor"
	"github.com/lumenpipe/lumen/engine/prompt"
	"github.com/lumenpipe/lumen/engine/queue"
	"github.com/lumenpipe/lumen/engine/vectorstore"
	"github.com/lumenpipe/lumen/engine/watch"
	"github.com/lumenpipe/lumen/engine/worker"
	"github.com/nats-io/nats.go"
)

// Deps are the external resources and policy knobs a Pipeline is built
// from. Every backend choice is pre-constructed by the caller (cmd/lumen)
// so pipeline_test.go can substitute fakes without touching real network or
// disk backends.
type Deps struct {
	Config *config.MonitorConfig

	// VectorStore backs both the storage sidecar and the "vector" task
	// processor. May be nil to disable vector storage entirely.
	VectorStore vectorstore.Store

	// PromptRegistry renders the templates the LLM processors dispatch to.
	PromptRegistry *prompt.Registry

	// Processors maps ProcessorKind -> implementation. At minimum the
	// config's DefaultProcessor key must resolve.
	Processors map[string]processor.Processor

	Workers int

	// NATS is optional; nil disables lifecycle event publishing.
	NATS        *nats.Conn
	NATSSubject string

	Logger *slog.Logger
}

// Pipeline owns the queue, worker pool, and file watcher for the lifetime
// of a running process.
type Pipeline struct {
	Queue   *queue.Queue
	Worker  *worker.Pool
	Watcher *watch.Watcher
	logger  *slog.Logger
}

// New assembles a Pipeline from deps. It does not start anything; call
// Start to launch the worker pool and file watcher.
func New(deps Deps) (*Pipeline, error) {
	if deps.Config == nil {
		return nil, pipelineerr.New(pipelineerr.KindConfigInvalid, "config must not be nil")
	}
	if len(deps.Processors) == 0 {
		return nil, pipelineerr.New(pipelineerr.KindConfigInvalid, "at least one processor is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := deps.Workers
	if workers <= 0 {
		workers = deps.Config.MaxConcurrent
	}
	if workers <= 0 {
		workers = 1
	}

	q := queue.New(deps.Config.QueueMaxSize)

	var vecProc *processor.VectorProcessor
	if deps.VectorStore != nil {
		vecProc = processor.NewVectorProcessor(deps.VectorStore)
		deps.Processors["vector"] = vecProc
	}

	pool := worker.New(q, deps.Processors, vecProc, workers, deps.NATS, deps.NATSSubject, logger)

	w, err := watch.New(deps.Config, q, logger)
	if err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.KindConfigInvalid, "build file watcher", err)
	}

	return &Pipeline{Queue: q, Worker: pool, Watcher: w, logger: logger}, nil
}

// Start launches the worker pool and begins watching every configured
// directory. If processExisting is true, files already present are
// enqueued once before live events start flowing.
func (p *Pipeline) Start(ctx context.Context, processExisting bool) error {
	p.Worker.Start(ctx)
	if err := p.Watcher.Start(); err != nil {
		p.Worker.Stop()
		return pipelineerr.Wrap(pipelineerr.KindConfigInvalid, "start file watcher", err)
	}
	if processExisting {
		if err := p.Watcher.ProcessExistingFiles(""); err != nil {
			p.logger.Warn("initial scan failed", "error", err)
		}
	}
	return nil
}

// Stop halts the watcher and drains the worker pool.
func (p *Pipeline) Stop() {
	p.Watcher.Stop()
	p.Worker.Stop()
}

// BuildProcessors wires the default local/remote LLM processors into a map
// keyed by kind, given the components they depend on. remoteAPIKey may be
// empty to skip constructing the remote processor.
func BuildProcessors(localBaseURL, localModel, remoteAPIKey string, registry *prompt.Registry) (map[string]processor.Processor, error) {
	out := map[string]processor.Processor{}
	if localBaseURL != "" {
		out["local_llm"] = processor.NewLocalLLMProcessor(localBaseURL, localModel, registry)
	}
	if remoteAPIKey != "" {
		remote, err := processor.NewRemoteLLMProcessor(remoteAPIKey, registry)
		if err != nil {
			return nil, err
		}
		out["remote_llm"] = remote
	}
	return out, nil
}

// BuildEmbeddingProvider wires the router's local/remote preference policy
// (§4.1) from optional Ollama/Anthropic backends.
func BuildEmbeddingProvider(ollamaBaseURL, anthropicAPIKey string) (embedding.Provider, error) {
	var local embedding.Provider
	if ollamaBaseURL != "" {
		local = embedding.NewOllamaProvider(ollamaBaseURL)
	}
	var remote embedding.Provider
	if anthropicAPIKey != "" {
		r, err := embedding.NewAnthropicProvider(anthropicAPIKey, nil)
		if err != nil {
			return nil, err
		}
		remote = r
	}
	if local == nil && remote == nil {
		return nil, pipelineerr.New(pipelineerr.KindConfigInvalid, "no embedding backend configured")
	}
	return embedding.NewRouter(local, remote, nil), nil
}

// BuildVectorStore selects chromem (embedded) or qdrant (remote) per
// whether qdrantAddr is set.
func BuildVectorStore(qdrantAddr, chromemPath, collection string, provider embedding.Provider) (vectorstore.Store, error) {
	if qdrantAddr != "" {
		return vectorstore.NewQdrantStore(qdrantAddr, collection, provider)
	}
	return vectorstore.NewChromemStore(chromemPath, collection, provider)
}
