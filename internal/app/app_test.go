package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kalambet/secureguard/internal/config"
	"github.com/kalambet/secureguard/internal/knowledge"
	"github.com/kalambet/secureguard/internal/storage"
	"github.com/kalambet/secureguard/internal/turn"
)

// fakeOllama serves /api/embed and /api/chat. Texts mentioning passwords
// embed close to each other; everything else is orthogonal.
func fakeOllama(t *testing.T, embedCalls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/embed":
			embedCalls.Add(1)
			var req struct {
				Input string `json:"input"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			vec := []float32{0, 1, 0}
			if strings.Contains(strings.ToLower(req.Input), "password") {
				vec = []float32{1, 0.05, 0}
			}
			json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{vec}})
		case "/api/chat":
			json.NewEncoder(w).Encode(map[string]any{
				"message": map[string]string{"role": "assistant", "content": "Use a password manager."},
				"done":    true,
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, ollamaURL string) config.Config {
	t.Helper()
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "passwords.txt"), []byte("Strong passwords are long and unique."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "updates.md"), []byte("Install updates promptly."), 0o644))

	return config.Config{
		Engine:    config.EngineConfig{Backend: config.BackendOllama},
		Ollama:    config.OllamaConfig{BaseURL: ollamaURL, ChatModel: "llama3.2", EmbedModel: "all-minilm"},
		Storage:   config.StorageConfig{DataDir: t.TempDir()},
		Knowledge: config.KnowledgeConfig{SourceDir: src, ChunkSize: 500, ChunkOverlap: 50},
		Retrieval: config.RetrievalConfig{TopK: 2, Threshold: 0.65},
		Chain:     config.ChainConfig{Diagnostics: config.DiagnosticsTyped, Temperature: 0.3},
	}
}

func TestBootstrap_BuildsThenLoads(t *testing.T) {
	var embeds atomic.Int32
	srv := fakeOllama(t, &embeds)
	cfg := testConfig(t, srv.URL)
	ctx := context.Background()

	var ingested []string
	a, err := Bootstrap(ctx, cfg, zap.NewNop(), Options{
		SkipModelCheck: true,
		OnDocument: func(src knowledge.Source, _ int) {
			ingested = append(ingested, filepath.Base(src.Path))
		},
	})
	require.NoError(t, err)
	assert.True(t, a.Base.Built)
	assert.Equal(t, 2, a.Base.Stats.Documents)
	assert.Equal(t, []string{"passwords.txt", "updates.md"}, ingested)
	assert.True(t, storage.Exists(cfg.Storage.DataDir))
	require.NoError(t, a.Close())

	buildEmbeds := embeds.Load()
	a, err = Bootstrap(ctx, cfg, zap.NewNop(), Options{SkipModelCheck: true})
	require.NoError(t, err)
	defer a.Close()
	assert.False(t, a.Base.Built)
	assert.Equal(t, buildEmbeds, embeds.Load(), "loading must not re-embed documents")
}

func TestBootstrap_TurnEndToEnd(t *testing.T) {
	for _, mode := range []string{config.DiagnosticsTyped, config.DiagnosticsChannel} {
		t.Run(mode, func(t *testing.T) {
			var embeds atomic.Int32
			cfg := testConfig(t, fakeOllama(t, &embeds).URL)
			cfg.Chain.Diagnostics = mode

			a, err := Bootstrap(context.Background(), cfg, zap.NewNop(), Options{SkipModelCheck: true})
			require.NoError(t, err)
			defer a.Close()

			d := a.NewSession()
			out, err := d.Dispatch(context.Background(), "How do I pick a good password?")
			require.NoError(t, err)

			assert.Equal(t, turn.ProcessFlow, out.Flow)
			assert.Equal(t, "Use a password manager.", out.Answer)
			require.Len(t, out.Report.Entries, 2)
			assert.True(t, out.Report.Entries[0].Included)
			assert.Contains(t, out.Report.Entries[0].Preview, "Strong passwords")
			assert.False(t, out.Report.Entries[1].Included)
			assert.Equal(t, 2, d.Session().Len())
		})
	}
}

func TestBootstrap_EngineStageError(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Engine.Backend = "mlx"

	_, err := Bootstrap(context.Background(), cfg, nil, Options{SkipModelCheck: true})
	var se *StartupError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StageEngine, se.Stage)
	assert.Contains(t, err.Error(), "initializing engine")
}

func TestBootstrap_KnowledgeStageError(t *testing.T) {
	var embeds atomic.Int32
	cfg := testConfig(t, fakeOllama(t, &embeds).URL)
	cfg.Knowledge.SourceDir = filepath.Join(t.TempDir(), "missing")

	_, err := Bootstrap(context.Background(), cfg, nil, Options{SkipModelCheck: true})
	var se *StartupError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StageKnowledge, se.Stage)
}

func TestBuildChain_RejectsUnknownMode(t *testing.T) {
	var embeds atomic.Int32
	cfg := testConfig(t, fakeOllama(t, &embeds).URL)
	a, err := Bootstrap(context.Background(), cfg, nil, Options{SkipModelCheck: true})
	require.NoError(t, err)
	defer a.Close()

	cfg.Chain.Diagnostics = "stdout"
	_, _, err = BuildChain(a.Base, a.Engine, cfg, a.Diag, zap.NewNop())
	assert.Error(t, err)

	_, _, err = BuildChain(nil, a.Engine, cfg, a.Diag, zap.NewNop())
	assert.Error(t, err)
}
