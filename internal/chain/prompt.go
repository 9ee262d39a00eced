package chain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kalambet/secureguard/internal/engine"
	"github.com/kalambet/secureguard/internal/retrieval"
)

const defaultMaxContextTokens = 4000

// Persona is the system instruction every answer is generated under.
const Persona = `You are SecureGuard AI, a friendly cybersecurity assistant.
Answer questions about staying safe online clearly and practically.
Base your answer on the reference material below when it is relevant.
If the material does not cover the question, say so and give general,
well-established security advice. Never invent product names, CVEs or statistics.`

// Composer assembles the chat messages for one question from the persona,
// the retrieved context and the question itself.
type Composer struct {
	MaxContextTokens int
}

// NewComposer creates a Composer with the given token budget for injected
// context. If maxContextTokens <= 0, the default (4000) is used.
func NewComposer(maxContextTokens int) *Composer {
	if maxContextTokens <= 0 {
		maxContextTokens = defaultMaxContextTokens
	}
	return &Composer{MaxContextTokens: maxContextTokens}
}

// Compose returns a system message and a user message. Chunks are added
// closest first until the token budget is spent; chunks that do not fit are
// skipped.
func (c *Composer) Compose(query string, chunks []retrieval.ContextChunk) []engine.Message {
	return []engine.Message{
		{Role: "system", Content: c.buildSystem(chunks)},
		{Role: "user", Content: query},
	}
}

func (c *Composer) buildSystem(chunks []retrieval.ContextChunk) string {
	var sb strings.Builder
	sb.WriteString(Persona)

	if len(chunks) == 0 {
		return sb.String()
	}

	sorted := make([]retrieval.ContextChunk, len(chunks))
	copy(sorted, chunks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Distance < sorted[j].Distance
	})

	contextHeader := "\n\n[Reference Material]\n"
	remaining := c.MaxContextTokens - EstimateTokens(contextHeader)

	var selected []string
	for _, ch := range sorted {
		entry := formatChunk(ch)
		tokens := EstimateTokens(entry)
		if tokens > remaining {
			continue
		}
		selected = append(selected, entry)
		remaining -= tokens
	}

	if len(selected) > 0 {
		sb.WriteString(contextHeader)
		for _, entry := range selected {
			sb.WriteString(entry)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatChunk(ch retrieval.ContextChunk) string {
	return fmt.Sprintf("(Distance: %.2f, Source: %s)\n%s\n\n", ch.Distance, ch.SourceType, ch.Text)
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
