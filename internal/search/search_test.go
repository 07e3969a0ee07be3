package search

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kalambet/engram/internal/storage"
)

// axisProvider embeds known texts onto fixed axes so similarity is
// fully deterministic.
type axisProvider struct {
	embedFn func(ctx context.Context, text string) ([]float32, error)
}

func (p *axisProvider) Generate(ctx context.Context, prompt string) (string, error) {
	return "", errors.New("not used")
}

func (p *axisProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if p.embedFn != nil {
		return p.embedFn(ctx, text)
	}
	switch {
	case strings.Contains(text, "cooking"):
		return []float32{1, 0, 0}, nil
	case strings.Contains(text, "baking"):
		return []float32{0.9, 0.1, 0}, nil
	case strings.Contains(text, "kubernetes"):
		return []float32{0, 1, 0}, nil
	default:
		return []float32{0, 0, 1}, nil
	}
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func addEntity(t *testing.T, store *storage.Store, id, title string, vec []float32) {
	t.Helper()
	e := &storage.Entity{
		ID: id, Title: title, Content: title,
		Type: storage.EntityIdea, Status: "active", UserID: "u1",
		Embedding: vec,
	}
	if err := store.CreateEntity(e); err != nil {
		t.Fatalf("CreateEntity(%s): %v", id, err)
	}
}

func TestSearchRanksBySimilarity(t *testing.T) {
	store := openTestStore(t)
	addEntity(t, store, "e-cook", "cooking notes", []float32{1, 0, 0})
	addEntity(t, store, "e-bake", "baking experiments", []float32{0.9, 0.1, 0})
	addEntity(t, store, "e-k8s", "kubernetes cluster", []float32{0, 1, 0})

	s := NewSearcher(store, NewEmbedder(&axisProvider{}, nil))
	results, err := s.Search(context.Background(), "cooking", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].Entity.ID != "e-cook" {
		t.Errorf("best match = %s, want e-cook", results[0].Entity.ID)
	}
	if results[1].Entity.ID != "e-bake" {
		t.Errorf("second match = %s, want e-bake", results[1].Entity.ID)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not sorted best-first at %d: %v > %v", i, results[i].Score, results[i-1].Score)
		}
	}
}

func TestSearchTopKLimitsResults(t *testing.T) {
	store := openTestStore(t)
	addEntity(t, store, "e-cook", "cooking notes", []float32{1, 0, 0})
	addEntity(t, store, "e-bake", "baking experiments", []float32{0.9, 0.1, 0})
	addEntity(t, store, "e-k8s", "kubernetes cluster", []float32{0, 1, 0})

	s := NewSearcher(store, NewEmbedder(&axisProvider{}, nil))
	results, err := s.Search(context.Background(), "cooking", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Entity.ID != "e-cook" {
		t.Errorf("top-1 = %+v", results)
	}
}

func TestSearchSkipsEntitiesWithoutEmbedding(t *testing.T) {
	store := openTestStore(t)
	addEntity(t, store, "e-cook", "cooking notes", []float32{1, 0, 0})
	addEntity(t, store, "e-bare", "unembedded thought", nil)

	s := NewSearcher(store, NewEmbedder(&axisProvider{}, nil))
	results, err := s.Search(context.Background(), "cooking", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range results {
		if r.Entity.ID == "e-bare" {
			t.Error("entity without embedding should not be scored")
		}
	}
}

func TestSearchZeroQueryVector(t *testing.T) {
	store := openTestStore(t)
	addEntity(t, store, "e-cook", "cooking notes", []float32{1, 0, 0})

	p := &axisProvider{embedFn: func(_ context.Context, _ string) ([]float32, error) {
		return []float32{0, 0, 0}, nil
	}}
	s := NewSearcher(store, NewEmbedder(p, nil))
	results, err := s.Search(context.Background(), "anything", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results != nil {
		t.Errorf("zero-norm query should return nil, got %+v", results)
	}
}

func TestSearchEmbedError(t *testing.T) {
	store := openTestStore(t)
	p := &axisProvider{embedFn: func(_ context.Context, _ string) ([]float32, error) {
		return nil, errors.New("endpoint down")
	}}
	s := NewSearcher(store, NewEmbedder(p, nil))
	if _, err := s.Search(context.Background(), "anything", 5); err == nil {
		t.Fatal("expected error when query embedding fails")
	}
}

func TestEmbedBatch(t *testing.T) {
	e := NewEmbedder(&axisProvider{}, nil)

	vecs, err := e.EmbedBatch(context.Background(), []string{"cooking", "kubernetes"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vecs))
	}
	if vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Errorf("vectors out of order: %v", vecs)
	}

	vecs, err = e.EmbedBatch(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Errorf("empty input should yield nil, nil; got %v, %v", vecs, err)
	}
}

func TestBackfillFillsMissingEmbeddings(t *testing.T) {
	store := openTestStore(t)
	addEntity(t, store, "e-has", "cooking notes", []float32{1, 0, 0})
	addEntity(t, store, "e-miss", "kubernetes cluster", nil)

	e := NewEmbedder(&axisProvider{}, nil)
	if err := e.Backfill(context.Background(), store); err != nil {
		t.Fatalf("Backfill: %v", err)
	}

	missing, err := store.ListEntitiesMissingEmbedding(10)
	if err != nil {
		t.Fatalf("ListEntitiesMissingEmbedding: %v", err)
	}
	if len(missing) != 0 {
		t.Errorf("%d entities still missing embeddings", len(missing))
	}

	ent, err := store.GetEntity("e-miss")
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if len(ent.Embedding) != 3 || ent.Embedding[1] != 1 {
		t.Errorf("backfilled vector = %v", ent.Embedding)
	}
}

func TestBackfillSkipsFailingEntity(t *testing.T) {
	store := openTestStore(t)
	addEntity(t, store, "e-bad", "cursed entry", nil)
	addEntity(t, store, "e-good", "kubernetes cluster", nil)

	p := &axisProvider{embedFn: func(_ context.Context, text string) ([]float32, error) {
		if strings.Contains(text, "cursed") {
			return nil, errors.New("provider choked")
		}
		return []float32{0, 1, 0}, nil
	}}
	e := NewEmbedder(p, nil)
	if err := e.Backfill(context.Background(), store); err != nil {
		t.Fatalf("one bad entity must not fail the sweep: %v", err)
	}

	good, err := store.GetEntity("e-good")
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if len(good.Embedding) == 0 {
		t.Error("good entity not backfilled")
	}
}

func TestCosine(t *testing.T) {
	a := []float32{1, 0}
	if got := cosine(a, []float32{1, 0}, norm(a)); got < 0.999 {
		t.Errorf("identical vectors cosine = %v", got)
	}
	if got := cosine(a, []float32{0, 1}, norm(a)); got != 0 {
		t.Errorf("orthogonal vectors cosine = %v", got)
	}
	if got := cosine(a, []float32{1, 0, 0}, norm(a)); got != 0 {
		t.Errorf("dimension mismatch should score 0, got %v", got)
	}
	if got := cosine(a, []float32{0, 0}, norm(a)); got != 0 {
		t.Errorf("zero vector should score 0, got %v", got)
	}
}
