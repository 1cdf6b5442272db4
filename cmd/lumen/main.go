// Command lumen watches one or more directories for new and changed files,
// runs them through LLM processing tasks, and optionally indexes the
// results in a vector store.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/lumenpipe/lumen/engine"
	"github.com/lumenpipe/lumen/engine/config"
	"github.com/lumenpipe/lumen/engine/httpapi"
	"github.com/lumenpipe/lumen/engine/prompt"
	"github.com/lumenpipe/lumen/pkg/metrics"
	"github.com/nats-io/nats.go"
)

var met = metrics.New()

var (
	mFilesQueued    = met.Gauge("lumen_files_queued_total", "Total files enqueued for processing")
	mItemsCompleted = met.Gauge("lumen_items_completed_total", "Total queue items completed")
	mItemsFailed    = met.Gauge("lumen_items_failed_total", "Total queue items permanently failed")
	mPending        = met.Gauge("lumen_queue_pending", "Pending queue items")
	mProcessing     = met.Gauge("lumen_queue_processing", "In-flight queue items")
)

func main() {
	configPath := flag.String("config", ".lumen.yaml", "path to the monitor config YAML file")
	promptsDir := flag.String("prompts-dir", "./lumen_prompts", "directory backing the prompt template registry")
	ollamaURL := flag.String("ollama", "http://localhost:11434", "local Ollama daemon base URL (empty disables local_llm/embedding)")
	ollamaModel := flag.String("ollama-model", "llama3", "model name to request from the local daemon")
	anthropicKey := flag.String("anthropic-key", os.Getenv("ANTHROPIC_API_KEY"), "Anthropic API key (empty disables remote_llm/embedding fallback)")
	qdrantAddr := flag.String("qdrant", "", "Qdrant gRPC address (empty selects the embedded chromem-go store)")
	vectorCollection := flag.String("collection", "lumen", "vector store collection name")
	natsURL := flag.String("nats", "", "NATS server URL for lifecycle events (empty disables publishing)")
	processExisting := flag.Bool("process-existing", false, "enqueue files already present in watched directories on startup")
	metricsPort := flag.Int("metrics-port", 9091, "port to serve Prometheus metrics on")
	apiAddr := flag.String("api-addr", ":8080", "address for the status/control HTTP API (empty disables it)")
	corsOrigin := flag.String("cors-origin", "*", "Access-Control-Allow-Origin value for the status/control API")
	flag.Parse()

	met.ServeAsync(*metricsPort)

	log := slog.Default()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load monitor config", "path", *configPath, "error", err)
		os.Exit(1)
	}
	if issues := cfg.Validate(); len(issues) > 0 {
		log.Error("invalid monitor config", "issues", issues)
		os.Exit(1)
	}

	registry, err := prompt.Open(*promptsDir)
	if err != nil {
		log.Error("failed to open prompt registry", "dir", *promptsDir, "error", err)
		os.Exit(1)
	}

	processors, err := engine.BuildProcessors(*ollamaURL, *ollamaModel, *anthropicKey, registry)
	if err != nil {
		log.Error("failed to build processors", "error", err)
		os.Exit(1)
	}
	if _, ok := processors[cfg.DefaultProcessor]; !ok {
		log.Warn("default processor not configured", "default_processor", cfg.DefaultProcessor)
	}

	embedder, err := engine.BuildEmbeddingProvider(*ollamaURL, *anthropicKey)
	if err != nil {
		log.Error("failed to build embedding provider", "error", err)
		os.Exit(1)
	}
	store, err := engine.BuildVectorStore(*qdrantAddr, cfg.VectorDBPath, *vectorCollection, embedder)
	if err != nil {
		log.Error("failed to build vector store", "error", err)
		os.Exit(1)
	}

	var nc *nats.Conn
	if *natsURL != "" {
		nc, err = nats.Connect(*natsURL)
		if err != nil {
			log.Error("failed to connect to nats", "url", *natsURL, "error", err)
			os.Exit(1)
		}
		defer nc.Close()
	}

	pipeline, err := engine.New(engine.Deps{
		Config:         cfg,
		VectorStore:    store,
		PromptRegistry: registry,
		Processors:     processors,
		Workers:        cfg.MaxConcurrent,
		NATS:           nc,
		NATSSubject:    "lumen.items",
		Logger:         log,
	})
	if err != nil {
		log.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	if err := pipeline.Start(ctx, *processExisting); err != nil {
		log.Error("failed to start pipeline", "error", err)
		os.Exit(1)
	}
	log.Info("lumen pipeline started", "watched_directories", len(cfg.Watched), "workers", cfg.MaxConcurrent)

	go reportQueueDepth(ctx, pipeline)

	var apiSrv *http.Server
	if *apiAddr != "" {
		apiSrv = &http.Server{
			Addr:         *apiAddr,
			Handler:      httpapi.New(pipeline, cfg, registry, *corsOrigin, log),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		}
		go func() {
			log.Info("status api starting", "addr", *apiAddr)
			if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("status api exited", "error", err)
			}
		}()
	}

	<-ctx.Done()
	log.Info("shutting down")
	if apiSrv != nil {
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		apiSrv.Shutdown(shutCtx)
		cancel()
	}
	pipeline.Stop()
}

func reportQueueDepth(ctx context.Context, p *engine.Pipeline) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := p.Queue.Status()
			mPending.Set(int64(snap.Pending))
			mProcessing.Set(int64(snap.Processing))
			mItemsCompleted.Set(snap.Counters.TotalProcessed)
			mItemsFailed.Set(snap.Counters.TotalFailed)
			mFilesQueued.Set(snap.Counters.TotalAdded)
		}
	}
}
