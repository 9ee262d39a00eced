package retrieval

import (
	"context"
	"time"
)

// VectorStore stores embedded chunks and answers nearest-neighbour queries.
// Results carry a cosine distance: 0 for identical direction, 1 for
// orthogonal, up to 2 for opposite. Lower is closer.
type VectorStore interface {
	// Insert adds records.
	Insert(ctx context.Context, records []Record) error

	// Search returns up to topK records closest to vector, nearest first.
	Search(ctx context.Context, vector []float32, topK int) ([]ScoredRecord, error)

	// DeleteBySource removes every record belonging to sourceID and returns
	// how many were removed.
	DeleteBySource(ctx context.Context, sourceID string) (int, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)
}

// Record represents a row in the vector store.
type Record struct {
	ID         string
	SourceID   string
	SourceType string
	TextChunk  string
	Embedding  []float32
	CreatedAt  time.Time
	Tags       string // JSON array stored as text
}

// ScoredRecord is a Record with its distance to the query attached.
type ScoredRecord struct {
	Record
	Distance float32
}
