// Package api exposes the HTTP surface: capture, inbox and review
// queues, entities, semantic search, workflows, calendar events, audit
// trail and stats. Everything except /health requires bearer auth.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/engram/internal/search"
	"github.com/kalambet/engram/internal/storage"
)

const maxRequestBodySize = 1 << 20  // 1MB
const maxCaptureBodySize = 10 << 20 // 10MB, PDFs arrive base64-encoded
const maxURLFetchSize = 5 << 20     // 5MB

// AppDeps holds the handler dependencies.
type AppDeps struct {
	Store      *storage.Store
	Searcher   *search.Searcher // optional; search returns 503 when nil
	Token      string
	HTTPClient *http.Client
}

// NewAppHandler builds the authenticated application router.
func NewAppHandler(deps AppDeps) http.Handler {
	if deps.HTTPClient == nil {
		deps.HTTPClient = http.DefaultClient
	}

	r := chi.NewRouter()
	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/capture", handleCapture(deps))
		r.Get("/inbox", handleListInbox(deps))
		r.Get("/inbox/{id}", handleGetInbox(deps))
		r.Get("/review", handleListReview(deps))
		r.Post("/review/{id}/resolve", handleResolveReview(deps))
		r.Get("/entities", handleListEntities(deps))
		r.Get("/entities/{id}", handleGetEntity(deps))
		r.Get("/entities/{id}/links", handleEntityLinks(deps))
		r.Get("/search", handleSearch(deps))
		r.Get("/workflows", handleListWorkflows(deps))
		r.Post("/workflows", handleCreateWorkflow(deps))
		r.Get("/audit", handleListAudit(deps))
		r.Get("/calendar", handleListCalendar(deps))
		r.Post("/calendar", handleCreateCalendar(deps))
		r.Get("/stats", handleStats(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
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
