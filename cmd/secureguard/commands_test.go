package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns stdout and the
// status stream.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, status bytes.Buffer

	oldErrOut, oldNoColor := errOut, color.NoColor
	errOut = &status
	color.NoColor = true
	t.Cleanup(func() {
		errOut = oldErrOut
		color.NoColor = oldNoColor
		noColor = false
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
	})

	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), status.String(), err
}

// isolate points every config and data location at temp dirs.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "share"))
	t.Setenv("SECUREGUARD_STORAGE_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("SECUREGUARD_LOG_FILE", filepath.Join(dir, "secureguard.log"))
	return dir
}

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "secureguard version dev\n", out)
}

func TestNoColorFlag(t *testing.T) {
	_, _, err := execute(t, "--no-color", "version")
	require.NoError(t, err)
	assert.True(t, color.NoColor)
}

func TestOutputHelpers(t *testing.T) {
	var buf bytes.Buffer
	old := errOut
	errOut = &buf
	defer func() { errOut = old }()
	color.NoColor = true

	printSuccess("saved %d", 2)
	printError("failed")
	printWarning("careful")
	printStep("next")
	printStatus("Engine", "%s", "ollama")

	assert.Equal(t, "✓ saved 2\n✗ failed\n⚠ careful\n→ next\n  Engine: ollama\n", buf.String())
}

func TestConfigSetAndShow(t *testing.T) {
	isolate(t)

	_, status, err := execute(t, "config", "set", "retrieval.threshold", "0.5")
	require.NoError(t, err)
	assert.Contains(t, status, "Set retrieval.threshold = 0.5")

	out, _, err := execute(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "retrieval.threshold = 0.5")
	assert.NotContains(t, out, "openai.api_key")
}

func TestConfigSetRejectsBadInput(t *testing.T) {
	isolate(t)

	_, _, err := execute(t, "config", "set", "no.such.key", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "valid keys")

	_, _, err = execute(t, "config", "set", "retrieval.top_k", "three")
	assert.Error(t, err)

	_, _, err = execute(t, "config", "set", "server.token", "abc")
	assert.Error(t, err, "secrets need --secret")
}

func TestRecallRequiresQuery(t *testing.T) {
	_, _, err := execute(t, "recall")
	assert.Error(t, err)
}

// fakeOllama embeds texts mentioning passwords along one axis and
// everything else along another.
func fakeOllama(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Input string `json:"input"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		vec := []float32{0, 1, 0}
		if strings.Contains(strings.ToLower(req.Input), "password") {
			vec = []float32{1, 0.05, 0}
		}
		json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{vec}})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestIngestSyncAndRecall(t *testing.T) {
	dir := isolate(t)
	src := filepath.Join(dir, "docs")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "passwords.txt"), []byte("Strong passwords are long and unique."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "updates.md"), []byte("Install updates promptly."), 0o644))
	t.Setenv("SECUREGUARD_OLLAMA_BASE_URL", fakeOllama(t).URL)
	t.Setenv("SECUREGUARD_KNOWLEDGE_SOURCE_DIR", src)

	_, status, err := execute(t, "--skip-model-check", "ingest")
	require.NoError(t, err)
	assert.Contains(t, status, "Building knowledge base")
	assert.Contains(t, status, "2 added, 0 updated, 0 unchanged, 0 removed")

	_, status, err = execute(t, "--skip-model-check", "ingest")
	require.NoError(t, err)
	assert.Contains(t, status, "Syncing knowledge base")
	assert.Contains(t, status, "0 added, 0 updated, 2 unchanged, 0 removed")

	out, _, err := execute(t, "--skip-model-check", "recall", "password", "advice")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.GreaterOrEqual(t, len(lines), 4)
	assert.Contains(t, lines[0], "Excellent Match")
	assert.Contains(t, lines[0], "WILL USE")
	assert.Contains(t, lines[0], "passwords.txt")
	assert.Contains(t, lines[1], "Strong passwords")
	assert.Contains(t, lines[2], "FILTERED OUT")
}
