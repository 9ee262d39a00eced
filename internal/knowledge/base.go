package knowledge

import (
	"github.com/kalambet/secureguard/internal/retrieval"
	"github.com/kalambet/secureguard/internal/storage"
)

// Base is an opened knowledge base ready for retrieval.
type Base struct {
	Store    *storage.Store
	Vectors  *retrieval.SQLiteStore
	Embedder *retrieval.Embedder
	Stats    storage.Stats
	// Built reports whether this session created the knowledge base rather
	// than loading an existing one.
	Built bool
}

// Retriever returns a retriever over the base.
func (b *Base) Retriever() *retrieval.Retriever {
	return retrieval.NewRetriever(b.Embedder, b.Vectors)
}

// Close releases the underlying database.
func (b *Base) Close() error {
	return b.Store.Close()
}
