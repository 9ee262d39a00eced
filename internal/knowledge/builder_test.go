package knowledge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/secureguard/internal/retrieval"
	"github.com/kalambet/secureguard/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// fakeEmbedder maps text to a tiny deterministic vector.
type fakeEmbedder struct {
	model string
	calls int
	err   error
}

func (f *fakeEmbedder) Model() string { return f.model }

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), float32(strings.Count(t, " ") + 1), 1}
	}
	return out, nil
}

type fixture struct {
	store   *storage.Store
	vectors *retrieval.SQLiteStore
	emb     *fakeEmbedder
	builder *Builder
	logs    *observer.ObservedLogs
	dir     string
}

func newFixture(t *testing.T, model string) *fixture {
	t.Helper()
	st, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	core, logs := observer.New(zap.DebugLevel)
	f := &fixture{
		store:   st,
		vectors: retrieval.NewSQLiteStore(st.DB()),
		emb:     &fakeEmbedder{model: model},
		logs:    logs,
		dir:     t.TempDir(),
	}
	f.builder = NewBuilder(st, f.vectors, f.emb, NewSplitter(60, 10), zap.New(core))
	f.builder.now = func() time.Time { return time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC) }
	return f
}

func (f *fixture) write(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, name), []byte(content), 0o644))
}

func TestBuild(t *testing.T) {
	f := newFixture(t, "all-minilm")
	f.write(t, "mfa.txt", strings.Repeat("Turn on multi-factor authentication everywhere. ", 5))
	f.write(t, "wifi.md", "Avoid public wifi for banking.")

	var seen []string
	f.builder.OnDocument = func(src Source, chunks int) {
		seen = append(seen, filepath.Base(src.Path))
		assert.Positive(t, chunks)
	}

	res, err := f.builder.Build(context.Background(), f.dir)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Added)
	assert.Equal(t, []string{"mfa.txt", "wifi.md"}, seen)

	st, err := f.store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, st.Documents)
	assert.Equal(t, res.Chunks, st.Chunks)
	assert.Equal(t, "all-minilm", st.EmbedModel)
	assert.Equal(t, time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC), st.BuiltAt)

	doc, err := f.store.GetDocumentByPath(filepath.Join(f.dir, "wifi.md"))
	require.NoError(t, err)
	assert.Equal(t, 1, doc.ChunkCount)
	assert.Equal(t, "wifi", doc.Title)
	assert.Len(t, doc.ContentHash, 64)

	src, err := f.store.GetMeta(storage.MetaSourceDir)
	require.NoError(t, err)
	assert.Equal(t, f.dir, src)
}

func TestBuild_ReplacesPreviousContents(t *testing.T) {
	f := newFixture(t, "all-minilm")
	f.write(t, "a.txt", "first version")
	_, err := f.builder.Build(context.Background(), f.dir)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(f.dir, "a.txt")))
	f.write(t, "b.txt", "replacement")
	_, err = f.builder.Build(context.Background(), f.dir)
	require.NoError(t, err)

	docs, err := f.store.ListDocuments(10)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, filepath.Join(f.dir, "b.txt"), docs[0].SourcePath)
	n, err := f.vectors.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBuild_NoDocuments(t *testing.T) {
	f := newFixture(t, "all-minilm")
	f.write(t, "image.png", "binary")

	_, err := f.builder.Build(context.Background(), f.dir)
	assert.True(t, errors.Is(err, ErrNoDocuments))
}

func TestBuild_EmbedError(t *testing.T) {
	f := newFixture(t, "all-minilm")
	f.write(t, "a.txt", "text")
	f.emb.err = errors.New("engine offline")

	_, err := f.builder.Build(context.Background(), f.dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine offline")
}

func TestLoadOrBuild_BuildsWhenEmpty(t *testing.T) {
	f := newFixture(t, "all-minilm")
	f.write(t, "a.txt", "Lock your screen when you walk away.")

	st, built, err := f.builder.LoadOrBuild(context.Background(), f.dir, false)
	require.NoError(t, err)
	assert.True(t, built)
	assert.Equal(t, 1, st.Documents)
}

func TestLoadOrBuild_LoadsExisting(t *testing.T) {
	f := newFixture(t, "all-minilm")
	f.write(t, "a.txt", "Lock your screen when you walk away.")
	_, _, err := f.builder.LoadOrBuild(context.Background(), f.dir, false)
	require.NoError(t, err)
	calls := f.emb.calls

	st, built, err := f.builder.LoadOrBuild(context.Background(), f.dir, false)
	require.NoError(t, err)
	assert.False(t, built)
	assert.Equal(t, 1, st.Documents)
	assert.Equal(t, calls, f.emb.calls, "loading must not re-embed")

	_, built, err = f.builder.LoadOrBuild(context.Background(), f.dir, true)
	require.NoError(t, err)
	assert.True(t, built)
}

func TestLoadOrBuild_WarnsOnModelMismatch(t *testing.T) {
	f := newFixture(t, "all-minilm")
	f.write(t, "a.txt", "Back up your files.")
	_, err := f.builder.Build(context.Background(), f.dir)
	require.NoError(t, err)

	f.emb.model = "nomic-embed-text"
	_, built, err := f.builder.LoadOrBuild(context.Background(), f.dir, false)
	require.NoError(t, err)
	assert.False(t, built)

	warnings := f.logs.FilterLevelExact(zap.WarnLevel).All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "all-minilm", warnings[0].ContextMap()["stored"])
	assert.Equal(t, "nomic-embed-text", warnings[0].ContextMap()["configured"])
}

func TestSync(t *testing.T) {
	f := newFixture(t, "all-minilm")
	ctx := context.Background()
	f.write(t, "keep.txt", "unchanged content")
	f.write(t, "edit.txt", "old content")
	f.write(t, "drop.txt", "soon gone")
	_, err := f.builder.Build(ctx, f.dir)
	require.NoError(t, err)

	f.write(t, "edit.txt", "new content that is different")
	require.NoError(t, os.Remove(filepath.Join(f.dir, "drop.txt")))
	f.write(t, "new.txt", "brand new")

	res, err := f.builder.Sync(ctx, f.dir)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.Unchanged)
	assert.Equal(t, 1, res.Removed)

	docs, err := f.store.ListDocuments(10)
	require.NoError(t, err)
	var names []string
	for _, d := range docs {
		names = append(names, filepath.Base(d.SourcePath))
	}
	assert.Equal(t, []string{"edit.txt", "keep.txt", "new.txt"}, names)

	n, err := f.vectors.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
