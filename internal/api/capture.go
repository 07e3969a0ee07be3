package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/engram/internal/storage"
)

// CaptureRequest is one raw thought entering the system. Type selects
// how content is resolved: "text" (default) stores it verbatim, "url"
// fetches the page and extracts readable text, "pdf" decodes base64
// content and extracts the document text.
type CaptureRequest struct {
	Content string `json:"content"`
	Type    string `json:"type"`
	URL     string `json:"url"`
	Source  string `json:"source"`
	UserID  string `json:"user_id"`
}

func handleCapture(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxCaptureBodySize)
		defer r.Body.Close()

		var req CaptureRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Type == "" {
			req.Type = "text"
		}
		if req.Source == "" {
			req.Source = "api"
		}

		var content string
		switch req.Type {
		case "url":
			if req.URL == "" {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "url is required for type url")
				return
			}
			text, err := fetchURLText(r.Context(), deps.HTTPClient, req.URL)
			if err != nil {
				httpError(w, http.StatusBadGateway, "api_error", "failed to fetch url: %v", err)
				return
			}
			content = req.URL + "\n\n" + text

		case "pdf":
			decoded, err := base64.StdEncoding.DecodeString(req.Content)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid base64 content")
				return
			}
			text, err := ExtractPDFText(decoded)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "failed to extract pdf text: %v", err)
				return
			}
			content = text

		default:
			content = req.Content
		}

		if strings.TrimSpace(content) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "content is required")
			return
		}

		item := storage.InboxItem{
			ID:      uuid.New().String(),
			Content: content,
			Source:  req.Source,
			Status:  storage.InboxPending,
			UserID:  req.UserID,
		}
		if err := deps.Store.CreateInboxItem(item); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save item: %v", err)
			return
		}

		audit := storage.AuditEntry{
			ID:      uuid.New().String(),
			Action:  storage.AuditInboxCapture,
			Details: "captured via " + req.Source,
		}
		if err := deps.Store.AppendAudit(audit); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to record capture: %v", err)
			return
		}

		writeJSON(w, map[string]string{
			"id":     item.ID,
			"status": string(storage.InboxPending),
		})
	}
}

func fetchURLText(ctx context.Context, client *http.Client, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &urlStatusError{status: resp.StatusCode}
	}

	body := io.LimitReader(resp.Body, maxURLFetchSize)
	return ExtractHTMLText(body)
}

type urlStatusError struct {
	status int
}

func (e *urlStatusError) Error() string {
	return fmt.Sprintf("url returned status %d", e.status)
}
