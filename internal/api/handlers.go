package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kalambet/engram/internal/storage"
	"github.com/kalambet/engram/internal/workflow"
)

func handleListInbox(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)
		status := storage.InboxStatus(r.URL.Query().Get("status"))

		items, err := deps.Store.ListInboxItems(status, limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list inbox: %v", err)
			return
		}
		if items == nil {
			items = []storage.InboxItem{}
		}
		writeJSON(w, items)
	}
}

func handleGetInbox(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, err := deps.Store.GetInboxItem(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "inbox item not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get inbox item: %v", err)
			return
		}
		writeJSON(w, item)
	}
}

func handleListReview(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		items, err := deps.Store.ListInboxItems(storage.InboxNeedsReview, limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list review queue: %v", err)
			return
		}
		if items == nil {
			items = []storage.InboxItem{}
		}
		writeJSON(w, items)
	}
}

// ResolveRequest settles a review-queue item: "retry" sends it back for
// another classification pass (optionally with rewritten content),
// "dismiss" closes it untouched.
type ResolveRequest struct {
	Action  string `json:"action"`
	Content string `json:"content"`
}

func handleResolveReview(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req ResolveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		var err error
		switch req.Action {
		case "retry":
			if req.Content != "" {
				// The rewritten thought re-enters as a fresh capture;
				// the ambiguous original is closed.
				item := storage.InboxItem{
					ID:      uuid.New().String(),
					Content: req.Content,
					Source:  "review",
					Status:  storage.InboxPending,
				}
				if err := deps.Store.CreateInboxItem(item); err != nil {
					httpError(w, http.StatusInternalServerError, "api_error", "failed to recapture: %v", err)
					return
				}
				err = deps.Store.DismissInboxItem(id)
			} else {
				err = deps.Store.ReopenInboxItem(id)
			}
		case "dismiss":
			err = deps.Store.DismissInboxItem(id)
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "action must be retry or dismiss")
			return
		}

		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "no reviewable item with that id")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to resolve item: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "resolved"})
	}
}

func handleListEntities(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		entities, err := deps.Store.ListEntities(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list entities: %v", err)
			return
		}
		if entities == nil {
			entities = []storage.Entity{}
		}
		writeJSON(w, entities)
	}
}

func handleGetEntity(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entity, err := deps.Store.GetEntity(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "entity not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get entity: %v", err)
			return
		}
		writeJSON(w, entity)
	}
}

func handleEntityLinks(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		links, err := deps.Store.ListLinksFrom(chi.URLParam(r, "id"))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list links: %v", err)
			return
		}
		if links == nil {
			links = []storage.Link{}
		}
		writeJSON(w, links)
	}
}

func handleSearch(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Searcher == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "semantic search is not available")
			return
		}
		query := r.URL.Query().Get("q")
		if query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "q is required")
			return
		}
		topK := parseIntParam(r, "top_k", 5, 50)

		results, err := deps.Searcher.Search(r.Context(), query, topK)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "search failed: %v", err)
			return
		}

		type scored struct {
			Entity storage.Entity `json:"entity"`
			Score  float32        `json:"score"`
		}
		out := make([]scored, len(results))
		for i, res := range results {
			out[i] = scored{Entity: res.Entity, Score: res.Score}
		}
		writeJSON(w, out)
	}
}

// WorkflowRequest creates an automation rule. Conditions and actions
// are validated by decoding them before anything is stored.
type WorkflowRequest struct {
	Name       string          `json:"name"`
	Trigger    string          `json:"trigger"`
	Conditions json.RawMessage `json:"conditions"`
	Actions    json.RawMessage `json:"actions"`
	Interval   string          `json:"interval"`
	IsActive   *bool           `json:"is_active"`
	UserID     string          `json:"user_id"`
}

func handleCreateWorkflow(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req WorkflowRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if req.Name == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "name is required")
			return
		}
		trigger := storage.TriggerKind(req.Trigger)
		if trigger != storage.TriggerOnClassify && trigger != storage.TriggerSchedule {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "trigger must be ON_CLASSIFY or SCHEDULE")
			return
		}
		if _, err := workflow.DecodePredicate(string(req.Conditions)); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid conditions: %v", err)
			return
		}
		if _, err := workflow.DecodeActions(string(req.Actions)); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid actions: %v", err)
			return
		}

		active := true
		if req.IsActive != nil {
			active = *req.IsActive
		}

		wf := storage.Workflow{
			ID:             uuid.New().String(),
			Name:           req.Name,
			Trigger:        trigger,
			ConditionsJSON: string(req.Conditions),
			ActionsJSON:    string(req.Actions),
			Interval:       req.Interval,
			IsActive:       active,
			UserID:         req.UserID,
		}
		if err := deps.Store.CreateWorkflow(wf); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create workflow: %v", err)
			return
		}
		writeJSON(w, map[string]string{"id": wf.ID})
	}
}

func handleListWorkflows(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workflows, err := deps.Store.ListWorkflows()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list workflows: %v", err)
			return
		}
		if workflows == nil {
			workflows = []storage.Workflow{}
		}
		writeJSON(w, workflows)
	}
}

func handleListAudit(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 50, 200)
		offset := parseIntParam(r, "offset", 0, 0)

		entries, err := deps.Store.ListAudit(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list audit log: %v", err)
			return
		}
		if entries == nil {
			entries = []storage.AuditEntry{}
		}
		writeJSON(w, entries)
	}
}

// CalendarRequest schedules a one-shot trigger.
type CalendarRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Type        string    `json:"type"`
	ScheduledAt time.Time `json:"scheduled_at"`
	UserID      string    `json:"user_id"`
}

func handleCreateCalendar(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req CalendarRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Title == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "title is required")
			return
		}
		if req.ScheduledAt.IsZero() {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "scheduled_at is required")
			return
		}

		ev := storage.CalendarEvent{
			ID:          uuid.New().String(),
			Title:       req.Title,
			Description: req.Description,
			Type:        req.Type,
			ScheduledAt: req.ScheduledAt,
			Status:      storage.CalendarPending,
			UserID:      req.UserID,
		}
		if err := deps.Store.CreateCalendarEvent(ev); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create event: %v", err)
			return
		}
		writeJSON(w, map[string]string{"id": ev.ID})
	}
}

func handleListCalendar(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		events, err := deps.Store.ListCalendarEvents(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list events: %v", err)
			return
		}
		if events == nil {
			events = []storage.CalendarEvent{}
		}
		writeJSON(w, events)
	}
}

func handleStats(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inbox, err := deps.Store.CountInboxByStatus()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to count inbox: %v", err)
			return
		}
		audit, err := deps.Store.CountAuditByAction()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to count audit log: %v", err)
			return
		}
		writeJSON(w, map[string]any{
			"inbox": inbox,
			"audit": audit,
		})
	}
}
