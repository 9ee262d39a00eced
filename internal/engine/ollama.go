package engine

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"
)

// OllamaEngine talks to an Ollama server through its Go API client.
type OllamaEngine struct {
	client  *ollama.Client
	options map[string]any
}

// NewOllamaEngine creates an OllamaEngine backed by an Ollama server at
// baseURL. Chat calls use the given sampling temperature.
func NewOllamaEngine(baseURL string, temperature float64) (*OllamaEngine, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base URL %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid ollama base URL %q: want scheme://host[:port]", baseURL)
	}
	httpClient := &http.Client{Timeout: 5 * time.Minute}
	return &OllamaEngine{
		client:  ollama.NewClient(u, httpClient),
		options: map[string]any{"temperature": temperature},
	}, nil
}

func (e *OllamaEngine) Name() string { return "ollama" }

func (e *OllamaEngine) Chat(ctx context.Context, model string, messages []Message) (string, error) {
	msgs := make([]ollama.Message, len(messages))
	for i, m := range messages {
		msgs[i] = ollama.Message{Role: m.Role, Content: m.Content}
	}

	stream := false
	req := &ollama.ChatRequest{
		Model:    model,
		Messages: msgs,
		Stream:   &stream,
		Options:  e.options,
	}

	var sb strings.Builder
	err := e.client.Chat(ctx, req, func(resp ollama.ChatResponse) error {
		sb.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	return sb.String(), nil
}

func (e *OllamaEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	resp, err := e.client.Embed(ctx, &ollama.EmbedRequest{Model: model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("ollama embed: empty embedding for model %s", model)
	}
	return resp.Embeddings[0], nil
}

func (e *OllamaEngine) IsRunning(ctx context.Context) bool {
	return e.client.Heartbeat(ctx) == nil
}

func (e *OllamaEngine) ListModels(ctx context.Context) ([]string, error) {
	resp, err := e.client.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing ollama models: %w", err)
	}
	names := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

func (e *OllamaEngine) HasModel(ctx context.Context, name string) bool {
	models, err := e.ListModels(ctx)
	if err != nil {
		return false
	}
	return containsModel(models, name)
}

func (e *OllamaEngine) PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error {
	return e.client.Pull(ctx, &ollama.PullRequest{Model: name}, func(p ollama.ProgressResponse) error {
		if onProgress != nil {
			onProgress(PullProgress{
				Status:    p.Status,
				Total:     p.Total,
				Completed: p.Completed,
			})
		}
		return nil
	})
}

// containsModel matches name against listed models, ignoring a ":tag"
// suffix on the listed side ("llama3.2" matches "llama3.2:latest").
func containsModel(models []string, name string) bool {
	for _, m := range models {
		if m == name || strings.HasPrefix(m, name+":") {
			return true
		}
	}
	return false
}
