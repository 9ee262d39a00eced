package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/secureguard/internal/turn"
)

// NewMCPServer creates an MCP server exposing the assistant's tools and
// knowledge-base resources.
func NewMCPServer(deps Deps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"secureguard",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("SecureGuard: cybersecurity assistant answering from a local knowledge base, with similarity diagnostics for every answer."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Ask the cybersecurity assistant a question. Returns the answer and the similarity analysis of the context it used."),
			mcp.WithString("query", mcp.Description("The question"), mcp.Required()),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("recall",
			mcp.WithDescription("Semantically search the knowledge base and return the nearest chunks with their distance."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpRecall(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"kb://stats",
			"Knowledge Base Stats",
			mcp.WithResourceDescription("Document and chunk counts, embedding model and build time"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStats(deps),
	)

	return s
}

func mcpAsk(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		out, sess, err := Ask(ctx, deps, query)
		if errors.Is(err, turn.ErrNoInput) {
			return mcpError("query is required"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("ask failed: %v", err)), nil
		}
		if out.Err != nil {
			return mcpError(fmt.Sprintf("answering failed: %v", out.Err)), nil
		}

		b, err := json.Marshal(newAskResponse(out, sess, deps.Threshold))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal answer: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpRecall(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 50 {
			limit = 50
		}

		views, err := Recall(ctx, deps, query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("recall failed: %v", err)), nil
		}
		if len(views) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(views)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceStats(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		st, err := deps.Docs.Stats()
		if err != nil {
			return nil, fmt.Errorf("failed to get stats: %w", err)
		}

		body := struct {
			Documents  int     `json:"documents"`
			Chunks     int     `json:"chunks"`
			EmbedModel string  `json:"embed_model,omitempty"`
			BuiltAt    string  `json:"built_at,omitempty"`
			Threshold  float64 `json:"threshold"`
		}{
			Documents:  st.Documents,
			Chunks:     st.Chunks,
			EmbedModel: st.EmbedModel,
			Threshold:  deps.Threshold,
		}
		if !st.BuiltAt.IsZero() {
			body.BuiltAt = st.BuiltAt.UTC().Format(time.RFC3339)
		}

		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal stats: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
