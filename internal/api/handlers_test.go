package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/engram/internal/storage"
)

const testToken = "test-token"

func newTestHandler(t *testing.T) (http.Handler, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewAppHandler(AppDeps{Store: store, Token: testToken}), store
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
}

func TestHealthIsOpen(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/inbox", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing token status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/inbox", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token status = %d, want 401", rec.Code)
	}
}

func TestCaptureText(t *testing.T) {
	h, store := newTestHandler(t)

	rec := doRequest(t, h, http.MethodPost, "/capture", map[string]string{
		"content": "remember to water the plants",
		"source":  "test",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("capture status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]string
	decodeBody(t, rec, &resp)
	if resp["status"] != "PENDING" || resp["id"] == "" {
		t.Errorf("capture response = %v", resp)
	}

	item, err := store.GetInboxItem(resp["id"])
	if err != nil {
		t.Fatalf("GetInboxItem: %v", err)
	}
	if item.Content != "remember to water the plants" || item.Source != "test" {
		t.Errorf("stored item = %+v", item)
	}

	counts, _ := store.CountAuditByAction()
	if counts[storage.AuditInboxCapture] != 1 {
		t.Errorf("capture audit count = %d", counts[storage.AuditInboxCapture])
	}
}

func TestCaptureEmptyContent(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doRequest(t, h, http.MethodPost, "/capture", map[string]string{"content": "   "})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty content status = %d, want 400", rec.Code)
	}

	var resp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	decodeBody(t, rec, &resp)
	if resp.Error.Type != "invalid_request_error" {
		t.Errorf("error type = %q", resp.Error.Type)
	}
}

func TestCaptureURL(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><script>ignored()</script></head><body><p>Readable article text.</p></body></html>`)
	}))
	defer page.Close()

	h, store := newTestHandler(t)
	rec := doRequest(t, h, http.MethodPost, "/capture", map[string]string{
		"type": "url",
		"url":  page.URL,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("url capture status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]string
	decodeBody(t, rec, &resp)
	item, err := store.GetInboxItem(resp["id"])
	if err != nil {
		t.Fatalf("GetInboxItem: %v", err)
	}
	if !strings.HasPrefix(item.Content, page.URL) {
		t.Errorf("content should start with the url: %q", item.Content)
	}
	if !strings.Contains(item.Content, "Readable article text.") {
		t.Errorf("extracted text missing: %q", item.Content)
	}
	if strings.Contains(item.Content, "ignored()") {
		t.Errorf("script content leaked into extraction: %q", item.Content)
	}
}

func TestCaptureURLFetchFailure(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer page.Close()

	h, _ := newTestHandler(t)
	rec := doRequest(t, h, http.MethodPost, "/capture", map[string]string{
		"type": "url",
		"url":  page.URL,
	})
	if rec.Code != http.StatusBadGateway {
		t.Errorf("failed fetch status = %d, want 502", rec.Code)
	}
}

func TestCaptureInvalidPDFBase64(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := doRequest(t, h, http.MethodPost, "/capture", map[string]string{
		"type":    "pdf",
		"content": "!!!not base64!!!",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad base64 status = %d, want 400", rec.Code)
	}
}

func TestReviewListAndResolve(t *testing.T) {
	h, store := newTestHandler(t)

	item := storage.InboxItem{
		ID: "r1", Content: "ambiguous", Source: "cli",
		Status: storage.InboxNeedsReview, ProcessingError: "confidence 0.40 below review threshold",
	}
	if err := store.CreateInboxItem(item); err != nil {
		t.Fatalf("CreateInboxItem: %v", err)
	}

	rec := doRequest(t, h, http.MethodGet, "/review", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("review list status = %d", rec.Code)
	}
	var listed []storage.InboxItem
	decodeBody(t, rec, &listed)
	if len(listed) != 1 || listed[0].ID != "r1" {
		t.Fatalf("review queue = %+v", listed)
	}

	rec = doRequest(t, h, http.MethodPost, "/review/r1/resolve", map[string]string{"action": "retry"})
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve status = %d: %s", rec.Code, rec.Body.String())
	}

	got, err := store.GetInboxItem("r1")
	if err != nil {
		t.Fatalf("GetInboxItem: %v", err)
	}
	if got.Status != storage.InboxPending {
		t.Errorf("retried item status = %s, want PENDING", got.Status)
	}
	if got.ProcessingError != "" {
		t.Errorf("review reason not cleared: %q", got.ProcessingError)
	}
}

func TestReviewResolveWithRewrittenContent(t *testing.T) {
	h, store := newTestHandler(t)

	item := storage.InboxItem{ID: "r1", Content: "ok", Source: "cli", Status: storage.InboxNeedsReview}
	if err := store.CreateInboxItem(item); err != nil {
		t.Fatalf("CreateInboxItem: %v", err)
	}

	rec := doRequest(t, h, http.MethodPost, "/review/r1/resolve", map[string]string{
		"action":  "retry",
		"content": "ok means approve the vendor contract",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve status = %d: %s", rec.Code, rec.Body.String())
	}

	original, _ := store.GetInboxItem("r1")
	if original.Status != storage.InboxCompleted {
		t.Errorf("original should be closed, got %s", original.Status)
	}

	pending, err := store.ListInboxItems(storage.InboxPending, 10, 0)
	if err != nil {
		t.Fatalf("ListInboxItems: %v", err)
	}
	if len(pending) != 1 || pending[0].Content != "ok means approve the vendor contract" {
		t.Errorf("recaptured item = %+v", pending)
	}
	if pending[0].Source != "review" {
		t.Errorf("recaptured source = %q", pending[0].Source)
	}
}

func TestReviewResolveDismiss(t *testing.T) {
	h, store := newTestHandler(t)

	item := storage.InboxItem{ID: "r1", Content: "noise", Source: "cli", Status: storage.InboxNeedsReview}
	if err := store.CreateInboxItem(item); err != nil {
		t.Fatalf("CreateInboxItem: %v", err)
	}

	rec := doRequest(t, h, http.MethodPost, "/review/r1/resolve", map[string]string{"action": "dismiss"})
	if rec.Code != http.StatusOK {
		t.Fatalf("dismiss status = %d", rec.Code)
	}

	got, _ := store.GetInboxItem("r1")
	if got.Status != storage.InboxCompleted {
		t.Errorf("dismissed status = %s, want COMPLETED", got.Status)
	}
}

func TestReviewResolveErrors(t *testing.T) {
	h, store := newTestHandler(t)

	rec := doRequest(t, h, http.MethodPost, "/review/missing/resolve", map[string]string{"action": "dismiss"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing item status = %d, want 404", rec.Code)
	}

	item := storage.InboxItem{ID: "done", Content: "x", Source: "cli", Status: storage.InboxCompleted}
	if err := store.CreateInboxItem(item); err != nil {
		t.Fatalf("CreateInboxItem: %v", err)
	}
	rec = doRequest(t, h, http.MethodPost, "/review/done/resolve", map[string]string{"action": "retry"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("non-reviewable item status = %d, want 404", rec.Code)
	}

	rec = doRequest(t, h, http.MethodPost, "/review/done/resolve", map[string]string{"action": "explode"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad action status = %d, want 400", rec.Code)
	}
}

func TestCreateWorkflowValidation(t *testing.T) {
	h, store := newTestHandler(t)

	rec := doRequest(t, h, http.MethodPost, "/workflows", map[string]any{
		"name":       "file projects",
		"trigger":    "ON_CLASSIFY",
		"conditions": map[string]string{"type_is": "PROJECT"},
		"actions":    []map[string]any{{"type": "notify", "params": map[string]string{"message": "filed"}}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}

	workflows, err := store.ListWorkflows()
	if err != nil {
		t.Fatalf("ListWorkflows: %v", err)
	}
	if len(workflows) != 1 || !workflows[0].IsActive {
		t.Errorf("stored workflows = %+v", workflows)
	}

	rec = doRequest(t, h, http.MethodPost, "/workflows", map[string]any{
		"name":    "bad trigger",
		"trigger": "ON_SNEEZE",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad trigger status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, h, http.MethodPost, "/workflows", map[string]any{
		"trigger": "SCHEDULE",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing name status = %d, want 400", rec.Code)
	}
}

func TestCreateAndListCalendar(t *testing.T) {
	h, _ := newTestHandler(t)

	at := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	rec := doRequest(t, h, http.MethodPost, "/calendar", map[string]any{
		"title":        "Quarterly review",
		"description":  "prep slides",
		"scheduled_at": at.Format(time.RFC3339),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("create event status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodGet, "/calendar", nil)
	var events []storage.CalendarEvent
	decodeBody(t, rec, &events)
	if len(events) != 1 || events[0].Title != "Quarterly review" {
		t.Fatalf("events = %+v", events)
	}
	if !events[0].ScheduledAt.Equal(at) {
		t.Errorf("scheduled_at = %v, want %v", events[0].ScheduledAt, at)
	}

	rec = doRequest(t, h, http.MethodPost, "/calendar", map[string]any{"title": "no time"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing scheduled_at status = %d, want 400", rec.Code)
	}
}

func TestSearchRequiresQueryAndSearcher(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doRequest(t, h, http.MethodGet, "/search?q=anything", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("no searcher status = %d, want 503", rec.Code)
	}
}

func TestEntityEndpoints(t *testing.T) {
	h, store := newTestHandler(t)

	e := &storage.Entity{
		ID: "e1", Title: "Launch newsletter", Content: "weekly letter",
		Type: storage.EntityProject, Status: "active", UserID: "u1",
		Project: &storage.ProjectMetadata{Goal: "1000 subscribers"},
	}
	if err := store.CreateEntity(e); err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}

	rec := doRequest(t, h, http.MethodGet, "/entities", nil)
	var listed []storage.Entity
	decodeBody(t, rec, &listed)
	if len(listed) != 1 || listed[0].ID != "e1" {
		t.Fatalf("entities = %+v", listed)
	}

	rec = doRequest(t, h, http.MethodGet, "/entities/e1", nil)
	var got storage.Entity
	decodeBody(t, rec, &got)
	if got.Project == nil || got.Project.Goal != "1000 subscribers" {
		t.Errorf("metadata lost over the wire: %+v", got)
	}

	rec = doRequest(t, h, http.MethodGet, "/entities/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing entity status = %d, want 404", rec.Code)
	}

	rec = doRequest(t, h, http.MethodGet, "/entities/e1/links", nil)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("links response = %q", rec.Body.String())
	}
}

func TestStats(t *testing.T) {
	h, store := newTestHandler(t)

	if err := store.CreateInboxItem(storage.InboxItem{ID: "i1", Content: "x", Source: "cli", Status: storage.InboxPending}); err != nil {
		t.Fatalf("CreateInboxItem: %v", err)
	}

	rec := doRequest(t, h, http.MethodGet, "/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}

	var stats struct {
		Inbox map[string]int `json:"inbox"`
		Audit map[string]int `json:"audit"`
	}
	decodeBody(t, rec, &stats)
	if stats.Inbox["PENDING"] != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestExtractHTMLText(t *testing.T) {
	html := `<html><head><title>T</title><style>.a{}</style></head>
		<body><h1>Heading</h1><p>First para.</p><noscript>nope</noscript></body></html>`
	text, err := ExtractHTMLText(strings.NewReader(html))
	if err != nil {
		t.Fatalf("ExtractHTMLText: %v", err)
	}
	if !strings.Contains(text, "Heading") || !strings.Contains(text, "First para.") {
		t.Errorf("text = %q", text)
	}
	if strings.Contains(text, ".a{}") || strings.Contains(text, "nope") {
		t.Errorf("style or noscript leaked: %q", text)
	}
}
