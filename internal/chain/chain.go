// Package chain implements the retrieval-augmented answering service:
// retrieve the closest knowledge-base chunks, keep the ones within the
// similarity threshold, and ask the chat model with them as context.
package chain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kalambet/secureguard/internal/collab"
	"github.com/kalambet/secureguard/internal/diag"
	"github.com/kalambet/secureguard/internal/engine"
	"github.com/kalambet/secureguard/internal/retrieval"
	"github.com/kalambet/secureguard/internal/similarity"
)

// PreviewRunes is how much of a chunk is shown in diagnostics.
const PreviewRunes = 100

// Retriever finds context chunks for a query, nearest first.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]retrieval.ContextChunk, error)
}

// Options configure a Chain.
type Options struct {
	Model            string
	TopK             int
	Threshold        float64
	MaxContextTokens int
	// Echo, when set, receives one "Score: ... | Content Preview: ..." line
	// per retrieved chunk.
	Echo *diag.Channel
}

// Chain answers questions against the knowledge base.
type Chain struct {
	retriever Retriever
	engine    engine.Engine
	composer  *Composer
	opts      Options
	log       *zap.Logger
}

var _ collab.Collaborator = (*Chain)(nil)

// New builds a Chain. A nil logger discards output.
func New(r Retriever, e engine.Engine, opts Options, log *zap.Logger) *Chain {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	return &Chain{
		retriever: r,
		engine:    e,
		composer:  NewComposer(opts.MaxContextTokens),
		opts:      opts,
		log:       log,
	}
}

// Threshold returns the inclusion threshold the chain filters context with.
func (c *Chain) Threshold() float64 { return c.opts.Threshold }

// Answer runs one retrieval-augmented query. The returned diagnostics list
// every retrieved chunk, included or not, in retrieval order.
func (c *Chain) Answer(ctx context.Context, query string) (collab.Result, error) {
	start := time.Now()

	chunks, err := c.retriever.Retrieve(ctx, query, c.opts.TopK)
	if err != nil {
		return collab.Result{}, fmt.Errorf("retrieving context: %w", err)
	}

	records := make([]similarity.Record, len(chunks))
	var included []retrieval.ContextChunk
	for i, ch := range chunks {
		records[i] = similarity.Record{Score: float64(ch.Distance), Preview: Preview(ch.Text)}
		if c.opts.Echo != nil {
			c.opts.Echo.Printf("Score: %.4f | Content Preview: %s", records[i].Score, records[i].Preview)
		}
		if similarity.Included(records[i].Score, c.opts.Threshold) {
			included = append(included, ch)
		}
	}

	answer, err := c.engine.Chat(ctx, c.opts.Model, c.composer.Compose(query, included))
	if err != nil {
		return collab.Result{}, fmt.Errorf("generating answer: %w", err)
	}

	c.log.Debug("answered",
		zap.Int("retrieved", len(chunks)),
		zap.Int("included", len(included)),
		zap.Duration("latency", time.Since(start)))

	return collab.Result{Text: strings.TrimSpace(answer), Diagnostics: records}, nil
}

// Invoke is the mapping entry point: it reads the question from
// input["query"] and returns {"query", "result"}. Diagnostics only reach the
// caller through the Echo channel.
func (c *Chain) Invoke(ctx context.Context, input map[string]any) (map[string]any, error) {
	q, _ := input[collab.QueryKey].(string)
	res, err := c.Answer(ctx, q)
	if err != nil {
		return nil, err
	}
	return map[string]any{collab.QueryKey: q, "result": res.Text}, nil
}

// Preview returns the first PreviewRunes runes of text on a single line.
func Preview(text string) string {
	flat := strings.Join(strings.Fields(text), " ")
	r := []rune(flat)
	if len(r) > PreviewRunes {
		return string(r[:PreviewRunes])
	}
	return flat
}
