package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/kalambet/secureguard/internal/engine"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"
)

const (
	queryCacheTTL     = 30 * time.Minute
	queryCacheCleanup = 10 * time.Minute
)

// Embedder wraps an Engine to generate text embeddings.
type Embedder struct {
	engine engine.Engine
	model  string
	// queries caches query embeddings by text. Chunk embeddings are not
	// cached; they are written once to the store.
	queries *cache.Cache
}

// NewEmbedder creates an Embedder using the given Engine and model name.
func NewEmbedder(e engine.Engine, model string) *Embedder {
	return &Embedder{
		engine:  e,
		model:   model,
		queries: cache.New(queryCacheTTL, queryCacheCleanup),
	}
}

// Model returns the embedding model name.
func (e *Embedder) Model() string { return e.model }

// Embed returns the embedding vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.engine.Embed(ctx, e.model, text)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	return vec, nil
}

// EmbedQuery is Embed with a short-lived cache in front of it. Users often
// repeat a question or pick the same suggestion twice.
func (e *Embedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if v, ok := e.queries.Get(query); ok {
		return v.([]float32), nil
	}
	vec, err := e.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	e.queries.SetDefault(query, vec)
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
	g.SetLimit(4)

	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.engine.Embed(gCtx, e.model, text)
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
