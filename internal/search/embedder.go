// Package search provides embedding generation and brute-force cosine
// similarity search over stored entities.
package search

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/engram/internal/provider"
	"github.com/kalambet/engram/internal/storage"
)

const backfillBatch = 50

// Embedder wraps a provider to generate entity embeddings.
type Embedder struct {
	provider provider.Provider
	logger   *slog.Logger
}

// NewEmbedder creates an Embedder over the given provider.
func NewEmbedder(p provider.Provider, logger *slog.Logger) *Embedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Embedder{provider: p, logger: logger}
}

// Embed returns the embedding vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.provider.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	return vec, nil
}

// EmbedBatch returns embedding vectors for multiple texts concurrently.
// Returns nil (not error) for empty/nil input.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4) // Bound concurrency to avoid overwhelming the provider.

	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			vec, err := e.provider.Embed(gCtx, text)
			if err != nil {
				return fmt.Errorf("embedding text %d: %w", i, err)
			}
			results[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Backfill embeds entities that were filed without a vector, one batch
// per call. Individual failures are logged and skipped so one bad
// entity does not stall the sweep.
func (e *Embedder) Backfill(ctx context.Context, store *storage.Store) error {
	entities, err := store.ListEntitiesMissingEmbedding(backfillBatch)
	if err != nil {
		return fmt.Errorf("listing entities without embeddings: %w", err)
	}

	for _, ent := range entities {
		vec, err := e.Embed(ctx, ent.Title+"\n"+ent.Content)
		if err != nil {
			e.logger.Warn("backfill: embedding entity", "entity", ent.ID, "error", err)
			continue
		}
		if err := store.UpdateEntityEmbedding(ent.ID, vec); err != nil {
			e.logger.Warn("backfill: storing embedding", "entity", ent.ID, "error", err)
		}
	}
	return nil
}
