package engine

import "testing"

func TestDetect_DefaultsToOllama(t *testing.T) {
	e, err := Detect(DetectConfig{OllamaBaseURL: "http://localhost:11434"})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if _, ok := e.(*OllamaEngine); !ok {
		t.Errorf("Detect returned %T, want *OllamaEngine", e)
	}
}

func TestDetect_OpenAI(t *testing.T) {
	e, err := Detect(DetectConfig{Backend: "OpenAI", OpenAIBaseURL: "https://api.groq.com/openai/v1", OpenAIAPIKey: "k"})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if _, ok := e.(*OpenAIEngine); !ok {
		t.Errorf("Detect returned %T, want *OpenAIEngine", e)
	}
}

func TestDetect_Errors(t *testing.T) {
	if _, err := Detect(DetectConfig{Backend: "openai"}); err == nil {
		t.Error("expected error for missing API key")
	}
	if _, err := Detect(DetectConfig{Backend: "mlx"}); err == nil {
		t.Error("expected error for unknown backend")
	}
	if _, err := Detect(DetectConfig{Backend: "ollama", OllamaBaseURL: "::bad"}); err == nil {
		t.Error("expected error for bad URL")
	}
}
