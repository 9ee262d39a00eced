package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Document is one source file ingested into the knowledge base.
type Document struct {
	ID          string
	SourcePath  string
	Title       string
	Kind        string // "pdf", "html", "text"
	ContentHash string
	ChunkCount  int
	CreatedAt   time.Time
}

// Meta keys recorded when the knowledge base is built.
const (
	MetaEmbedModel = "embed_model"
	MetaBuiltAt    = "built_at"
	MetaSourceDir  = "source_dir"
)

// Stats summarises the knowledge base.
type Stats struct {
	Documents  int
	Chunks     int
	EmbedModel string
	BuiltAt    time.Time
}
