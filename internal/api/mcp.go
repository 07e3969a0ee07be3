package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/engram/internal/search"
	"github.com/kalambet/engram/internal/storage"
)

// MCPSearcher abstracts semantic search for the MCP layer.
type MCPSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]search.ScoredEntity, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store    *storage.Store
	Searcher MCPSearcher // optional; recall errors when nil
}

// NewMCPServer creates an MCP server with the capture and recall tools
// registered, so assistants can drop thoughts in and pull context out.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"engram",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("engram is a local second brain: capture raw thoughts, recall related memories, review ambiguous items."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("capture_thought",
			mcp.WithDescription("Capture a raw thought into the inbox for automatic classification."),
			mcp.WithString("content", mcp.Description("The thought text"), mcp.Required()),
		),
		mcpCaptureThought(deps),
	)

	s.AddTool(
		mcp.NewTool("recall",
			mcp.WithDescription("Semantically search stored memories and return the most similar entities."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpRecall(deps),
	)

	s.AddTool(
		mcp.NewTool("list_review_queue",
			mcp.WithDescription("List inbox items waiting for user clarification."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of items (default 10)")),
		),
		mcpListReviewQueue(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"engram://stats",
			"Inbox Statistics",
			mcp.WithResourceDescription("Inbox item counts by status as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStats(deps),
	)

	return s
}

func mcpCaptureThought(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil || content == "" {
			return mcpError("content is required"), nil
		}

		item := storage.InboxItem{
			ID:      uuid.New().String(),
			Content: content,
			Source:  "mcp",
			Status:  storage.InboxPending,
		}
		if err := deps.Store.CreateInboxItem(item); err != nil {
			return mcpError(fmt.Sprintf("failed to save: %v", err)), nil
		}

		audit := storage.AuditEntry{
			ID:      uuid.New().String(),
			Action:  storage.AuditInboxCapture,
			Details: "captured via mcp",
		}
		if err := deps.Store.AppendAudit(audit); err != nil {
			return mcpError(fmt.Sprintf("saved item but failed to record capture: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Captured thought %s", item.ID)), nil
	}
}

func mcpRecall(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Searcher == nil {
			return mcpError("recall not available: no search configured"), nil
		}

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

		results, err := deps.Searcher.Search(ctx, query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("recall failed: %v", err)), nil
		}
		if len(results) == 0 {
			return mcpText("[]"), nil
		}

		type entityResult struct {
			ID      string  `json:"id"`
			Title   string  `json:"title"`
			Type    string  `json:"type"`
			Summary string  `json:"summary,omitempty"`
			Score   float32 `json:"score"`
		}

		out := make([]entityResult, len(results))
		for i, res := range results {
			out[i] = entityResult{
				ID:      res.Entity.ID,
				Title:   res.Entity.Title,
				Type:    string(res.Entity.Type),
				Summary: res.Entity.Summary,
				Score:   res.Score,
			}
		}

		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListReviewQueue(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 50 {
			limit = 50
		}

		items, err := deps.Store.ListInboxItems(storage.InboxNeedsReview, limit, 0)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list review queue: %v", err)), nil
		}
		if len(items) == 0 {
			return mcpText("[]"), nil
		}

		type reviewItem struct {
			ID        string `json:"id"`
			Content   string `json:"content"`
			Question  string `json:"question"`
			CreatedAt string `json:"created_at"`
		}

		out := make([]reviewItem, len(items))
		for i, item := range items {
			out[i] = reviewItem{
				ID:        item.ID,
				Content:   item.Content,
				Question:  item.ProcessingError,
				CreatedAt: item.CreatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal items: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceStats(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		counts, err := deps.Store.CountInboxByStatus()
		if err != nil {
			return nil, fmt.Errorf("failed to count inbox: %w", err)
		}

		b, err := json.Marshal(counts)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal counts: %w", err)
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
