package engine

import (
	"fmt"
	"strings"
)

// DetectConfig holds parameters for backend selection.
type DetectConfig struct {
	Backend       string
	OllamaBaseURL string
	OpenAIBaseURL string
	OpenAIAPIKey  string
	Temperature   float64
}

// Detect returns the engine named by cfg.Backend. An empty backend means
// Ollama.
func Detect(cfg DetectConfig) (Engine, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "ollama":
		return NewOllamaEngine(cfg.OllamaBaseURL, cfg.Temperature)
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai backend requires an API key")
		}
		return NewOpenAIEngine(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.Temperature), nil
	default:
		return nil, fmt.Errorf("unknown engine backend %q", cfg.Backend)
	}
}
