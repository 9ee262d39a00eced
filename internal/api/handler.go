// Package api exposes the assistant over HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kalambet/secureguard/internal/collab"
	"github.com/kalambet/secureguard/internal/retrieval"
	"github.com/kalambet/secureguard/internal/session"
	"github.com/kalambet/secureguard/internal/similarity"
	"github.com/kalambet/secureguard/internal/storage"
	"github.com/kalambet/secureguard/internal/turn"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Recaller runs semantic search over the knowledge base.
type Recaller interface {
	Retrieve(ctx context.Context, query string, topK int) ([]retrieval.ContextChunk, error)
}

// DocumentStore is the document catalogue the API reads and prunes.
type DocumentStore interface {
	ListDocuments(limit int) ([]storage.Document, error)
	DeleteDocument(id string) error
	Stats() (storage.Stats, error)
}

// VectorDeleter removes the chunks of a deleted document.
type VectorDeleter interface {
	DeleteBySource(ctx context.Context, sourceID string) (int, error)
}

// Deps holds what the HTTP and MCP surfaces need.
type Deps struct {
	Service   collab.Collaborator
	Threshold float64
	TopK      int
	Retriever Recaller
	Docs      DocumentStore
	Vectors   VectorDeleter // optional; chunks are left in place when nil
	// Token enables bearer auth on /v1 routes when non-empty.
	Token string
	Log   *zap.Logger
}

func (d Deps) logger() *zap.Logger {
	if d.Log == nil {
		return zap.NewNop()
	}
	return d.Log
}

// AskRequest is the body of POST /v1/ask.
type AskRequest struct {
	Query string `json:"query"`
}

// AskResponse is one completed turn.
type AskResponse struct {
	Query     string         `json:"query"`
	Answer    string         `json:"answer"`
	Exit      bool           `json:"exit,omitempty"`
	Threshold float64        `json:"threshold"`
	Records   []RecordView   `json:"records"`
	Used      int            `json:"used"`
	Filtered  int            `json:"filtered"`
	History   []session.Turn `json:"history"`
}

// RecordView is a graded similarity record.
type RecordView struct {
	Score    float64 `json:"score"`
	Band     string  `json:"band"`
	Label    string  `json:"label"`
	Included bool    `json:"included"`
	Preview  string  `json:"preview"`
}

// ChunkView is a recalled chunk.
type ChunkView struct {
	ID         string  `json:"id"`
	SourceID   string  `json:"source_id"`
	SourceType string  `json:"source_type"`
	Text       string  `json:"text"`
	Distance   float32 `json:"distance"`
	Label      string  `json:"label"`
	Included   bool    `json:"included"`
}

// DocumentView is a catalogue entry.
type DocumentView struct {
	ID         string    `json:"id"`
	SourcePath string    `json:"source_path"`
	Title      string    `json:"title"`
	Kind       string    `json:"kind"`
	Chunks     int       `json:"chunks"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewHandler returns the HTTP API. /health is always public.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(accessLog(deps.logger()))

	r.Get("/health", handleHealth)
	r.Route("/v1", func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Post("/ask", handleAsk(deps))
		r.Get("/recall", handleRecall(deps))
		r.Get("/documents", handleListDocuments(deps))
		r.Delete("/documents/{id}", handleDeleteDocument(deps))
	})
	return r
}

func accessLog(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// Ask runs query as a fresh one-turn session.
func Ask(ctx context.Context, deps Deps, query string) (turn.Outcome, *session.State, error) {
	sess := session.New(deps.Service)
	d := turn.NewDispatcher(sess, deps.Service, deps.Threshold, deps.logger().Named("turn"))
	out, err := d.Dispatch(ctx, query)
	if err != nil {
		return turn.Outcome{}, nil, err
	}
	d.Ready()
	return out, sess, nil
}

func handleAsk(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req AskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		out, sess, err := Ask(r.Context(), deps, req.Query)
		if errors.Is(err, turn.ErrNoInput) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		if out.Err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "answering failed: %v", out.Err)
			return
		}

		writeJSON(w, newAskResponse(out, sess, deps.Threshold))
	}
}

func newAskResponse(out turn.Outcome, sess *session.State, threshold float64) AskResponse {
	used, filtered := out.Report.Counts()
	return AskResponse{
		Query:     out.Input,
		Answer:    out.Answer,
		Exit:      out.Flow == turn.ExitFlow,
		Threshold: threshold,
		Records:   recordViews(out.Report),
		Used:      used,
		Filtered:  filtered,
		History:   sess.History(),
	}
}

func recordViews(r similarity.Report) []RecordView {
	views := make([]RecordView, len(r.Entries))
	for i, e := range r.Entries {
		views[i] = RecordView{
			Score:    e.Score,
			Band:     e.Band.String(),
			Label:    e.Band.Label(),
			Included: e.Included,
			Preview:  e.Preview,
		}
	}
	return views
}

// Recall returns the topK nearest chunks graded against deps.Threshold.
func Recall(ctx context.Context, deps Deps, query string, topK int) ([]ChunkView, error) {
	chunks, err := deps.Retriever.Retrieve(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	views := make([]ChunkView, len(chunks))
	for i, c := range chunks {
		score := float64(c.Distance)
		views[i] = ChunkView{
			ID:         c.ID,
			SourceID:   c.SourceID,
			SourceType: c.SourceType,
			Text:       c.Text,
			Distance:   c.Distance,
			Label:      similarity.Classify(score).Label(),
			Included:   similarity.Included(score, deps.Threshold),
		}
	}
	return views, nil
}

func handleRecall(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		if q == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "q is required")
			return
		}
		def := deps.TopK
		if def <= 0 {
			def = 5
		}
		limit := parseIntParam(r, "limit", def, 50)
		if limit == 0 {
			limit = def
		}

		views, err := Recall(r.Context(), deps, q, limit)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "recall failed: %v", err)
			return
		}
		writeJSON(w, views)
	}
}

func handleListDocuments(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 100, 1000)

		docs, err := deps.Docs.ListDocuments(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list documents: %v", err)
			return
		}
		views := make([]DocumentView, len(docs))
		for i, d := range docs {
			views[i] = DocumentView{
				ID:         d.ID,
				SourcePath: d.SourcePath,
				Title:      d.Title,
				Kind:       d.Kind,
				Chunks:     d.ChunkCount,
				CreatedAt:  d.CreatedAt,
			}
		}
		writeJSON(w, views)
	}
}

func handleDeleteDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Docs.DeleteDocument(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete document: %v", err)
			return
		}

		removed := 0
		if deps.Vectors != nil {
			removed, err = deps.Vectors.DeleteBySource(r.Context(), id)
			if err != nil {
				deps.logger().Warn("removing document chunks", zap.String("id", id), zap.Error(err))
			}
		}
		writeJSON(w, map[string]any{"status": "deleted", "chunks_removed": removed})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}
