package search

import (
	"container/heap"
	"context"
	"fmt"
	"math"

	"github.com/kalambet/engram/internal/storage"
)

// ScoredEntity pairs an entity with its cosine similarity to the query.
type ScoredEntity struct {
	Entity storage.Entity
	Score  float32
}

// Searcher runs semantic recall over stored entities.
type Searcher struct {
	store    *storage.Store
	embedder *Embedder
}

// NewSearcher wires a Searcher over the store and embedder.
func NewSearcher(store *storage.Store, embedder *Embedder) *Searcher {
	return &Searcher{store: store, embedder: embedder}
}

// Search embeds the query and scans every stored vector, returning the
// top-K most similar entities best-first. Brute force is fine at the
// scale of a personal store.
func (s *Searcher) Search(ctx context.Context, query string, topK int) ([]ScoredEntity, error) {
	if topK <= 0 {
		topK = 5
	}

	qVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	qNorm := norm(qVec)
	if qNorm == 0 {
		return nil, nil
	}

	vectors, err := s.store.ListEntityVectors()
	if err != nil {
		return nil, fmt.Errorf("listing entity vectors: %w", err)
	}

	h := &idScoreHeap{}
	heap.Init(h)
	for _, v := range vectors {
		score := cosine(qVec, v.Embedding, qNorm)
		if h.Len() < topK {
			heap.Push(h, idScore{ID: v.ID, Score: score})
		} else if score > (*h)[0].Score {
			(*h)[0] = idScore{ID: v.ID, Score: score}
			heap.Fix(h, 0)
		}
	}
	if h.Len() == 0 {
		return nil, nil
	}

	// Pop yields worst-first; fill the result from the back.
	results := make([]ScoredEntity, h.Len())
	for i := len(results) - 1; i >= 0; i-- {
		item := heap.Pop(h).(idScore)
		ent, err := s.store.GetEntity(item.ID)
		if err != nil {
			return nil, fmt.Errorf("loading entity %s: %w", item.ID, err)
		}
		results[i] = ScoredEntity{Entity: ent, Score: item.Score}
	}
	return results, nil
}

type idScore struct {
	ID    string
	Score float32
}

// idScoreHeap is a min-heap of idScore ordered by Score, used to track
// top-K candidates during the scan.
type idScoreHeap []idScore

func (h idScoreHeap) Len() int           { return len(h) }
func (h idScoreHeap) Less(i, j int) bool { return h[i].Score < h[j].Score }
func (h idScoreHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *idScoreHeap) Push(x any)        { *h = append(*h, x.(idScore)) }
func (h *idScoreHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return float32(math.Sqrt(sum))
}

// cosine computes dot(a,b) / (aNorm * bNorm) with aNorm precomputed.
func cosine(a, b []float32, aNorm float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	bNorm := math.Sqrt(bNormSq)
	if bNorm == 0 {
		return 0
	}
	return float32(dot / (float64(aNorm) * bNorm))
}
