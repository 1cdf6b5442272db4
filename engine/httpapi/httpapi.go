// Package httpapi exposes a small read/control HTTP surface over a running
// Pipeline: health, queue status, config summary, prompt template listing,
// and an on-demand directory rescan. Grounded on cmd/api/main.go's
// ServeMux/middleware-chain/graceful-shutdown shape, generalized from a
// single-domain REST API to this pipeline's status/control contract.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/lumenpipe/lumen/engine"
	"github.com/lumenpipe/lumen/engine/config"
	"github.com/lumenpipe/lumen/engine/prompt"
	"github.com/lumenpipe/lumen/pkg/mid"
)

// Server bundles the dependencies the handlers need.
type Server struct {
	pipeline *engine.Pipeline
	cfg      *config.MonitorConfig
	registry *prompt.Registry
	logger   *slog.Logger
}

// New builds the handler chain: recovery, request logging, CORS, and an
// OTel span per request wrap a ServeMux routing by method+path (Go 1.22
// pattern routing), matching cmd/api/main.go's
// mid.Chain(mux, mid.Recover, mid.Logger, mid.CORS, mid.OTel) order.
func New(pipeline *engine.Pipeline, cfg *config.MonitorConfig, registry *prompt.Registry, corsOrigin string, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{pipeline: pipeline, cfg: cfg, registry: registry, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/config", s.handleConfig)
	mux.HandleFunc("GET /api/v1/prompts", s.handlePrompts)
	mux.HandleFunc("POST /api/v1/scan", s.handleScan)

	return mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(corsOrigin),
		mid.OTel("lumen-api"),
	)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus reports the queue's current bucket sizes and monotonic
// counters, the same Snapshot engine/queue.Status returns.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pipeline.Queue.Status())
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Summary())
}

func (s *Server) handlePrompts(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "prompt registry not configured"})
		return
	}
	writeJSON(w, http.StatusOK, s.registry.List(prompt.ListFilter{}))
}

// handleScan triggers an out-of-band walk of every watched directory,
// enqueuing any file the filters would otherwise only catch on the next
// live fsnotify event (or that arrived while the watcher was down).
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if err := s.pipeline.Watcher.ProcessExistingFiles(""); err != nil {
		s.logger.Error("manual scan failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"triggered": true, "elapsed_ms": time.Since(start).Milliseconds()})
}
