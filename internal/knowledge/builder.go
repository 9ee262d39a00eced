package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kalambet/secureguard/internal/retrieval"
	"github.com/kalambet/secureguard/internal/storage"
	"go.uber.org/zap"
)

// ChunkEmbedder embeds chunk text in bulk.
type ChunkEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// DocumentStore persists document rows and build metadata.
type DocumentStore interface {
	SaveDocument(doc storage.Document) error
	GetDocumentByPath(path string) (storage.Document, error)
	ListDocuments(limit int) ([]storage.Document, error)
	DeleteDocument(id string) error
	SetMeta(key, value string) error
	GetMeta(key string) (string, error)
	Stats() (storage.Stats, error)
	Reset() error
}

// ErrNoDocuments is returned when the source directory holds nothing loadable.
var ErrNoDocuments = errors.New("no loadable documents in source directory")

// Result summarises one build or sync.
type Result struct {
	Added     int
	Updated   int
	Unchanged int
	Removed   int
	Chunks    int
	Skipped   map[string]error
}

// Builder loads, splits and embeds documents into the knowledge base.
type Builder struct {
	docs     DocumentStore
	vectors  retrieval.VectorStore
	embedder ChunkEmbedder
	splitter Splitter
	log      *zap.Logger
	now      func() time.Time

	// OnDocument, when set, is called after each document is processed.
	OnDocument func(src Source, chunks int)
}

// NewBuilder wires a Builder. A nil logger discards output.
func NewBuilder(docs DocumentStore, vectors retrieval.VectorStore, embedder ChunkEmbedder, splitter Splitter, log *zap.Logger) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Builder{
		docs:     docs,
		vectors:  vectors,
		embedder: embedder,
		splitter: splitter,
		log:      log,
		now:      time.Now,
	}
}

// LoadOrBuild opens the existing knowledge base, building it from sourceDir
// when it is empty or rebuild is set. It reports whether a build ran.
func (b *Builder) LoadOrBuild(ctx context.Context, sourceDir string, rebuild bool) (storage.Stats, bool, error) {
	st, err := b.docs.Stats()
	if err != nil {
		return storage.Stats{}, false, fmt.Errorf("reading knowledge base: %w", err)
	}

	if !rebuild && st.Chunks > 0 {
		if st.EmbedModel != "" && st.EmbedModel != b.embedder.Model() {
			b.log.Warn("knowledge base was built with a different embedding model; run ingest --rebuild",
				zap.String("stored", st.EmbedModel),
				zap.String("configured", b.embedder.Model()))
		}
		b.log.Info("knowledge base loaded", zap.Int("documents", st.Documents), zap.Int("chunks", st.Chunks))
		return st, false, nil
	}

	res, err := b.Build(ctx, sourceDir)
	if err != nil {
		return storage.Stats{}, false, err
	}
	b.log.Info("knowledge base built", zap.Int("documents", res.Added), zap.Int("chunks", res.Chunks))

	st, err = b.docs.Stats()
	if err != nil {
		return storage.Stats{}, true, fmt.Errorf("reading knowledge base: %w", err)
	}
	return st, true, nil
}

// Build discards the current knowledge base and ingests sourceDir from scratch.
func (b *Builder) Build(ctx context.Context, sourceDir string) (Result, error) {
	sources, skipped, err := LoadDir(sourceDir)
	if err != nil {
		return Result{}, err
	}
	b.logSkipped(skipped)
	if len(sources) == 0 {
		return Result{Skipped: skipped}, fmt.Errorf("%s: %w", sourceDir, ErrNoDocuments)
	}

	if err := b.docs.Reset(); err != nil {
		return Result{}, fmt.Errorf("clearing knowledge base: %w", err)
	}

	res := Result{Skipped: skipped}
	for _, src := range sources {
		n, err := b.ingest(ctx, src, contentHash(src.Text))
		if err != nil {
			return res, err
		}
		res.Added++
		res.Chunks += n
	}

	if err := b.writeMeta(sourceDir); err != nil {
		return res, err
	}
	return res, nil
}

// Sync brings the knowledge base in line with sourceDir without a full
// rebuild: new files are added, changed files re-embedded and files that
// disappeared removed.
func (b *Builder) Sync(ctx context.Context, sourceDir string) (Result, error) {
	sources, skipped, err := LoadDir(sourceDir)
	if err != nil {
		return Result{}, err
	}
	b.logSkipped(skipped)

	res := Result{Skipped: skipped}
	seen := make(map[string]bool, len(sources))
	for _, src := range sources {
		seen[src.Path] = true
		hash := contentHash(src.Text)

		existing, err := b.docs.GetDocumentByPath(src.Path)
		switch {
		case err == nil && existing.ContentHash == hash:
			res.Unchanged++
			continue
		case err == nil:
			if _, err := b.vectors.DeleteBySource(ctx, existing.ID); err != nil {
				return res, fmt.Errorf("dropping stale chunks of %s: %w", src.Path, err)
			}
			res.Updated++
		case errors.Is(err, storage.ErrNotFound):
			res.Added++
		default:
			return res, fmt.Errorf("looking up %s: %w", src.Path, err)
		}

		n, err := b.ingest(ctx, src, hash)
		if err != nil {
			return res, err
		}
		res.Chunks += n
	}

	docs, err := b.docs.ListDocuments(-1)
	if err != nil {
		return res, fmt.Errorf("listing documents: %w", err)
	}
	for _, d := range docs {
		if seen[d.SourcePath] {
			continue
		}
		if _, err := b.vectors.DeleteBySource(ctx, d.ID); err != nil {
			return res, fmt.Errorf("dropping chunks of %s: %w", d.SourcePath, err)
		}
		if err := b.docs.DeleteDocument(d.ID); err != nil {
			return res, fmt.Errorf("removing %s: %w", d.SourcePath, err)
		}
		res.Removed++
	}

	if err := b.writeMeta(sourceDir); err != nil {
		return res, err
	}
	return res, nil
}

// ingest splits, embeds and stores one source and returns its chunk count.
func (b *Builder) ingest(ctx context.Context, src Source, hash string) (int, error) {
	chunks := b.splitter.Split(src.Text)
	vecs, err := b.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embedding %s: %w", src.Path, err)
	}

	docID := uuid.NewString()
	now := b.now().UTC()
	records := make([]retrieval.Record, len(chunks))
	for i, c := range chunks {
		records[i] = retrieval.Record{
			ID:         uuid.NewString(),
			SourceID:   docID,
			SourceType: src.Kind,
			TextChunk:  c,
			Embedding:  vecs[i],
			CreatedAt:  now,
		}
	}
	if len(records) > 0 {
		if err := b.vectors.Insert(ctx, records); err != nil {
			return 0, fmt.Errorf("storing chunks of %s: %w", src.Path, err)
		}
	}

	if err := b.docs.SaveDocument(storage.Document{
		ID:          docID,
		SourcePath:  src.Path,
		Title:       src.Title,
		Kind:        src.Kind,
		ContentHash: hash,
		ChunkCount:  len(chunks),
		CreatedAt:   now,
	}); err != nil {
		return 0, fmt.Errorf("saving document %s: %w", src.Path, err)
	}

	b.log.Debug("document ingested", zap.String("path", src.Path), zap.String("kind", src.Kind), zap.Int("chunks", len(chunks)))
	if b.OnDocument != nil {
		b.OnDocument(src, len(chunks))
	}
	return len(chunks), nil
}

func (b *Builder) writeMeta(sourceDir string) error {
	meta := map[string]string{
		storage.MetaEmbedModel: b.embedder.Model(),
		storage.MetaBuiltAt:    b.now().UTC().Format(time.RFC3339),
		storage.MetaSourceDir:  sourceDir,
	}
	for k, v := range meta {
		if err := b.docs.SetMeta(k, v); err != nil {
			return fmt.Errorf("writing %s: %w", k, err)
		}
	}
	return nil
}

func (b *Builder) logSkipped(skipped map[string]error) {
	for path, err := range skipped {
		b.log.Warn("skipping document", zap.String("path", path), zap.Error(err))
	}
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
