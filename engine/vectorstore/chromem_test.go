package vectorstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/lumenpipe/lumen/engine/embedding"
	"github.com/lumenpipe/lumen/engine/pipelineerr"
)

// fakeEmbedder returns a deterministic vector per text so query ordering is
// predictable: a text listed in vectors gets that vector, any other text gets
// v[j] = (len(text)+j)/10, so texts of equal length embed identically.
type fakeEmbedder struct {
	dim     int
	vectors map[string][]float32
}

func (f *fakeEmbedder) Name() string                          { return "fake" }
func (f *fakeEmbedder) Healthy(ctx context.Context) bool       { return true }
func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) (embedding.Result, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if v, ok := f.vectors[text]; ok {
			vectors[i] = v
			continue
		}
		v := make([]float32, f.dim)
		for j := range v {
			v[j] = float32(len(text)+j) / 10
		}
		vectors[i] = v
	}
	return embedding.Result{Vectors: vectors, ModelName: "fake-model"}, nil
}

func newTestStore(t *testing.T) (*ChromemStore, *fakeEmbedder) {
	t.Helper()
	provider := &fakeEmbedder{dim: 4, vectors: map[string][]float32{}}
	store, err := NewChromemStore(filepath.Join(t.TempDir(), "vectors"), "notes", provider)
	if err != nil {
		t.Fatalf("NewChromemStore: %v", err)
	}
	return store, provider
}

func TestChromemStore_AddGetDelete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	doc, err := store.Add(ctx, "remember to water the plants", map[string]any{"source": "note"}, "")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if doc.ID == "" {
		t.Fatal("expected system-generated id")
	}

	got, err := store.Get(ctx, doc.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Content != doc.Content || got.Metadata["source"] != "note" {
		t.Errorf("Get returned mismatched document: %+v", got)
	}
	if got.Metadata["embedding_model"] != "fake-model" {
		t.Errorf("expected embedding_model system field, got %v", got.Metadata["embedding_model"])
	}

	if err := store.Delete(ctx, doc.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, doc.ID); !pipelineerr.Is(err, pipelineerr.KindNotFound) {
		t.Errorf("expected KindNotFound after delete, got %v", err)
	}
}

func TestChromemStore_Add_RejectsEmptyContent(t *testing.T) {
	store, _ := newTestStore(t)
	if _, err := store.Add(context.Background(), "", nil, ""); !pipelineerr.Is(err, pipelineerr.KindInvalidInput) {
		t.Errorf("expected KindInvalidInput, got %v", err)
	}
}

func TestChromemStore_DimensionLock(t *testing.T) {
	store, provider := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Add(ctx, "first document", nil, ""); err != nil {
		t.Fatalf("first Add: %v", err)
	}

	provider.dim = 8
	_, err := store.Add(ctx, "second document, different length", nil, "")
	if !pipelineerr.Is(err, pipelineerr.KindDimensionMismatch) {
		t.Errorf("expected KindDimensionMismatch, got %v", err)
	}
}

func TestChromemStore_Delete_NotFound(t *testing.T) {
	store, _ := newTestStore(t)
	if err := store.Delete(context.Background(), "missing"); !pipelineerr.Is(err, pipelineerr.KindNotFound) {
		t.Errorf("expected KindNotFound, got %v", err)
	}
}

func TestChromemStore_List_RespectsLimit(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := store.Add(ctx, "doc body", nil, ""); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	docs, err := store.List(ctx, 3)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(docs) != 3 {
		t.Errorf("List(3) returned %d docs, want 3", len(docs))
	}
}

func TestChromemStore_Stats(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	if _, err := store.Add(ctx, "first", nil, ""); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := store.Add(ctx, "second", nil, ""); err != nil {
		t.Fatalf("Add: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Count != 2 || stats.Collection != "notes" {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.EmbeddingInfo.Dimension != 4 {
		t.Errorf("expected dimension 4, got %d", stats.EmbeddingInfo.Dimension)
	}
}

func TestChromemStore_Query_FiltersByMetadata(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Add(ctx, "note about gardening", map[string]any{"topic": "garden"}, ""); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := store.Add(ctx, "note about cooking", map[string]any{"topic": "kitchen"}, ""); err != nil {
		t.Fatalf("Add: %v", err)
	}

	results, err := store.Query(ctx, "note", 5, map[string]any{"topic": "garden"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 1 || results[0].Doc.Metadata["topic"] != "garden" {
		t.Fatalf("expected exactly the garden note, got %+v", results)
	}
	if results[0].Rank != 1 {
		t.Errorf("expected rank 1, got %d", results[0].Rank)
	}
	if results[0].Similarity <= 0 || results[0].Similarity > 1 {
		t.Errorf("similarity out of (0,1]: %v", results[0].Similarity)
	}
}

func TestChromemStore_Query_UnknownFilterKeySelectsNone(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	if _, err := store.Add(ctx, "note", nil, ""); err != nil {
		t.Fatalf("Add: %v", err)
	}
	results, err := store.Query(ctx, "note", 5, map[string]any{"nonexistent": "x"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results for unknown filter key, got %d", len(results))
	}
}

func TestChromemStore_Query_ZeroKReturnsEmpty(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	if _, err := store.Add(ctx, "note", nil, ""); err != nil {
		t.Fatalf("Add: %v", err)
	}
	results, err := store.Query(ctx, "note", 0, nil)
	if err != nil {
		t.Fatalf("Query(k=0): %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected an empty slice for k=0, got %+v", results)
	}
}

func TestChromemStore_ReopensFromSidecar(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "vectors")
	provider := &fakeEmbedder{dim: 4, vectors: map[string][]float32{}}
	ctx := context.Background()

	store, err := NewChromemStore(dir, "notes", provider)
	if err != nil {
		t.Fatalf("NewChromemStore: %v", err)
	}
	doc, err := store.Add(ctx, "persisted note", nil, "")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	reopened, err := NewChromemStore(dir, "notes", provider)
	if err != nil {
		t.Fatalf("reopen NewChromemStore: %v", err)
	}
	got, err := reopened.Get(ctx, doc.ID)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got.Content != doc.Content {
		t.Errorf("expected persisted content across reopen, got %q", got.Content)
	}
}
