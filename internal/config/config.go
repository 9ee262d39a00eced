package config

import (
	"fmt"
	"math"
	"strings"
)

// Backend names accepted by engine.backend.
const (
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
)

// Diagnostics modes accepted by chain.diagnostics.
const (
	DiagnosticsTyped   = "typed"
	DiagnosticsChannel = "channel"
)

type Config struct {
	Engine    EngineConfig
	Ollama    OllamaConfig
	OpenAI    OpenAIConfig
	Storage   StorageConfig
	Knowledge KnowledgeConfig
	Retrieval RetrievalConfig
	Chain     ChainConfig
	Chat      ChatConfig
	Server    ServerConfig
	Log       LogConfig
}

type EngineConfig struct {
	Backend string
}

type OllamaConfig struct {
	BaseURL    string
	ChatModel  string
	EmbedModel string
}

type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	ChatModel  string
	EmbedModel string
}

type StorageConfig struct {
	DataDir string
}

type KnowledgeConfig struct {
	SourceDir    string
	ChunkSize    int
	ChunkOverlap int
}

type RetrievalConfig struct {
	TopK      int
	Threshold float64
}

type ChainConfig struct {
	Diagnostics string
	Temperature float64
}

type ChatConfig struct {
	ExportDir string
	// Plain selects the line-mode chat loop instead of the full-screen UI.
	Plain bool
}

type ServerConfig struct {
	Port  int
	Token string
}

type LogConfig struct {
	Level string
	File  string
}

func defaults() Config {
	return Config{
		Engine: EngineConfig{Backend: BackendOllama},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			ChatModel:  "llama3.2",
			EmbedModel: "all-minilm",
		},
		OpenAI: OpenAIConfig{
			BaseURL:    "https://api.openai.com/v1",
			ChatModel:  "gpt-4o-mini",
			EmbedModel: "text-embedding-3-small",
		},
		Storage: StorageConfig{DataDir: defaultDataDir()},
		Knowledge: KnowledgeConfig{
			SourceDir:    "./data",
			ChunkSize:    500,
			ChunkOverlap: 50,
		},
		Retrieval: RetrievalConfig{
			TopK:      3,
			Threshold: 0.65,
		},
		Chain: ChainConfig{
			Diagnostics: DiagnosticsTyped,
			Temperature: 0.3,
		},
		Chat:   ChatConfig{ExportDir: "."},
		Server: ServerConfig{Port: 4100},
		Log: LogConfig{
			Level: "info",
			File:  defaultLogFile(),
		},
	}
}

// Load reads configuration from the TOML file at
// $XDG_CONFIG_HOME/secureguard/config.toml, then applies SECUREGUARD_*
// environment overrides, then falls back to the secrets file for the
// OpenAI API key and the server token.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), secretsReader{})
}

// secretStore abstracts secret lookup for testing.
type secretStore interface {
	Get(service, account string) (string, error)
}

func loadFromPath(path string, ss secretStore) (Config, error) {
	return loadWith(newFileBackend(path), ss)
}

func loadWith(b ConfigBackend, ss secretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	cfg.Engine.Backend = strings.ToLower(strings.TrimSpace(cfg.Engine.Backend))

	if cfg.OpenAI.APIKey == "" {
		if key, err := ss.Get("secureguard", "openai_api_key"); err == nil && key != "" {
			cfg.OpenAI.APIKey = key
		}
	}
	if cfg.Server.Token == "" {
		if tok, err := ss.Get("secureguard", "server_token"); err == nil {
			cfg.Server.Token = tok
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Engine.Backend {
	case BackendOllama:
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("missing required config: OpenAI API key. " +
				"Set it via environment variable SECUREGUARD_OPENAI_API_KEY or openai.api_key in the secrets file")
		}
	default:
		return fmt.Errorf("invalid engine.backend %q: want %q or %q", c.Engine.Backend, BackendOllama, BackendOpenAI)
	}

	switch c.Chain.Diagnostics {
	case DiagnosticsTyped, DiagnosticsChannel:
	default:
		return fmt.Errorf("invalid chain.diagnostics %q: want %q or %q", c.Chain.Diagnostics, DiagnosticsTyped, DiagnosticsChannel)
	}

	if math.IsNaN(c.Retrieval.Threshold) || math.IsInf(c.Retrieval.Threshold, 0) {
		return fmt.Errorf("invalid retrieval.threshold %v", c.Retrieval.Threshold)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("invalid retrieval.top_k %d: must be positive", c.Retrieval.TopK)
	}
	if c.Knowledge.ChunkSize <= 0 || c.Knowledge.ChunkOverlap < 0 || c.Knowledge.ChunkOverlap >= c.Knowledge.ChunkSize {
		return fmt.Errorf("invalid knowledge chunking: size %d, overlap %d", c.Knowledge.ChunkSize, c.Knowledge.ChunkOverlap)
	}
	return nil
}

// ChatModel returns the chat model of the selected backend.
func (c Config) ChatModel() string {
	if c.Engine.Backend == BackendOpenAI {
		return c.OpenAI.ChatModel
	}
	return c.Ollama.ChatModel
}

// EmbedModel returns the embedding model of the selected backend.
func (c Config) EmbedModel() string {
	if c.Engine.Backend == BackendOpenAI {
		return c.OpenAI.EmbedModel
	}
	return c.Ollama.EmbedModel
}
