package processor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lumenpipe/lumen/engine/pipelineerr"
	"github.com/lumenpipe/lumen/engine/prompt"
)

func newTestRegistry(t *testing.T) *prompt.Registry {
	t.Helper()
	reg, err := prompt.Open(t.TempDir())
	if err != nil {
		t.Fatalf("prompt.Open: %v", err)
	}
	return reg
}

func TestLocalLLMProcessor_UnknownTask(t *testing.T) {
	p := NewLocalLLMProcessor("http://unused", "llama3.2", newTestRegistry(t))
	res := p.Process(context.Background(), "hello", "not_a_task", CallOptions{})
	if res.OK || !pipelineerr.Is(res.Error, pipelineerr.KindUnknownTask) {
		t.Errorf("expected KindUnknownTask, got %+v", res)
	}
}

func TestLocalLLMProcessor_EmptyContent(t *testing.T) {
	p := NewLocalLLMProcessor("http://unused", "llama3.2", newTestRegistry(t))
	res := p.Process(context.Background(), "", "summarize", CallOptions{})
	if res.OK || !pipelineerr.Is(res.Error, pipelineerr.KindInvalidInput) {
		t.Errorf("expected KindInvalidInput, got %+v", res)
	}
}

func TestLocalLLMProcessor_SucceedsAndRecordsMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generateResp{Response: "a short summary", Done: true})
	}))
	defer srv.Close()

	p := NewLocalLLMProcessor(srv.URL, "llama3.2", newTestRegistry(t))
	res := p.Process(context.Background(), "long document text", "summarize", CallOptions{})
	if !res.OK {
		t.Fatalf("expected success, got error %v", res.Error)
	}
	if res.Content != "a short summary" {
		t.Errorf("Content = %q", res.Content)
	}
	if res.Metadata["model"] != "llama3.2" {
		t.Errorf("expected model metadata, got %+v", res.Metadata)
	}
}

func TestLocalLLMProcessor_RetriesThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(generateResp{Response: "ok", Done: true})
	}))
	defer srv.Close()

	p := NewLocalLLMProcessor(srv.URL, "llama3.2", newTestRegistry(t))
	p.retry.InitialWait = 1
	p.retry.MaxWait = 1
	res := p.Process(context.Background(), "text", "summarize", CallOptions{})
	if !res.OK {
		t.Fatalf("expected eventual success, got %v", res.Error)
	}
	if attempts < 2 {
		t.Errorf("expected at least 2 attempts, got %d", attempts)
	}
}

func TestLocalLLMProcessor_ModelNotFoundIsFatal(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewLocalLLMProcessor(srv.URL, "missing-model", newTestRegistry(t))
	p.retry.InitialWait = 1
	p.retry.MaxWait = 1
	res := p.Process(context.Background(), "text", "summarize", CallOptions{})
	if res.OK || !pipelineerr.Is(res.Error, pipelineerr.KindInvalidInput) {
		t.Errorf("expected fatal KindInvalidInput, got %+v", res)
	}
	if attempts != 1 {
		t.Errorf("expected no retries on model-not-found, got %d attempts", attempts)
	}
}
