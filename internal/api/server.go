// Package api exposes the HTTP surface: the WhatsApp webhook that
// feeds the pipeline, the authenticated search/preview/sweep endpoints,
// and the MCP server for agent access to the knowledge base.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nadavhl/secondbrain/internal/reminder"
	"github.com/nadavhl/secondbrain/internal/retrieval"
	"github.com/nadavhl/secondbrain/internal/storage"
)

// QueryEmbedder turns a search query into a vector.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher runs nearest-neighbor retrieval.
type VectorSearcher interface {
	Search(ownerID string, vector []float32, topK int) ([]retrieval.Scored, error)
}

// Previewer runs the analyze-without-saving flow.
type Previewer interface {
	Preview(ctx context.Context, ownerID, url, caption string) storage.Item
}

// SweepRunner executes one reminder sweep.
type SweepRunner interface {
	Run(ctx context.Context) reminder.Report
}

type AppDeps struct {
	Store    *storage.Store
	Embedder QueryEmbedder
	Vectors  VectorSearcher
	Preview  Previewer
	Sweeper  SweepRunner
	Token    string
	Log      *slog.Logger
}

// NewAppHandler builds the router. The webhook authenticates by sender
// allowlist, not by bearer token; everything else is operator surface
// behind the token.
func NewAppHandler(deps AppDeps) http.Handler {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}

	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Post("/webhook/whatsapp", handleWebhook(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Get("/search", handleSearch(deps))
		r.Post("/preview", handlePreview(deps))
		r.Post("/reminders/sweep", handleSweep(deps))
		r.Get("/items/{id}", handleGetItem(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleGetItem(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, err := deps.Store.GetItem(chi.URLParam(r, "id"))
		if err == storage.ErrNotFound {
			httpError(w, http.StatusNotFound, "not_found_error", "no such item")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading item: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

func handleSweep(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := deps.Sweeper.Run(r.Context())
		writeJSON(w, http.StatusOK, report)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response failed", "error", err)
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
