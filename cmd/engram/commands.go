package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/engram/internal/config"
)

// --- capture ---

var captureCmd = &cobra.Command{
	Use:   "capture [thought...]",
	Short: "Capture a raw thought into the inbox",
	Long: `Capture a raw thought into the inbox for automatic classification.

Examples:
  engram capture "Met Sarah from Acme about the partnership"
  engram capture --url https://example.com/article
  engram capture --pdf ./paper.pdf`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pageURL, _ := cmd.Flags().GetString("url")
		pdfPath, _ := cmd.Flags().GetString("pdf")
		text := strings.Join(args, " ")

		if text == "" && pageURL == "" && pdfPath == "" {
			return fmt.Errorf("provide a thought, --url, or --pdf")
		}

		req := map[string]any{"source": "cli"}
		switch {
		case pageURL != "":
			req["type"] = "url"
			req["url"] = pageURL
		case pdfPath != "":
			data, err := os.ReadFile(pdfPath)
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			req["type"] = "pdf"
			req["content"] = base64.StdEncoding.EncodeToString(data)
		default:
			req["type"] = "text"
			req["content"] = text
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/capture", req)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Captured %s", result["id"])
		return nil
	},
}

func init() {
	captureCmd.Flags().String("url", "", "URL to fetch and capture")
	captureCmd.Flags().String("pdf", "", "PDF file to extract and capture")
}

// --- inbox ---

var inboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "List inbox items",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		status, _ := cmd.Flags().GetString("status")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/inbox?limit=%d", limit)
		if status != "" {
			path += "&status=" + url.QueryEscape(status)
		}
		resp, err := client.get(path)
		if err != nil {
			return err
		}

		var items []struct {
			ID        string `json:"ID"`
			Content   string `json:"Content"`
			Source    string `json:"Source"`
			Status    string `json:"Status"`
			CreatedAt string `json:"CreatedAt"`
		}
		if err := decodeJSON(resp, &items); err != nil {
			return err
		}

		if len(items) == 0 {
			fmt.Println("Inbox is empty.")
			return nil
		}

		for _, item := range items {
			content := item.Content
			if len(content) > 80 {
				content = content[:80] + "..."
			}
			fmt.Printf("%s  %-18s %-12s %s\n",
				colorize(colorCyan, item.ID[:8]),
				item.Status,
				item.Source,
				content,
			)
		}
		return nil
	},
}

func init() {
	inboxCmd.Flags().Int("limit", 20, "maximum number of items to list")
	inboxCmd.Flags().String("status", "", "filter by status (PENDING, COMPLETED, ...)")
}

// --- review ---

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Work the review queue",
}

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List items waiting for clarification",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/review")
		if err != nil {
			return err
		}

		var items []struct {
			ID              string `json:"ID"`
			Content         string `json:"Content"`
			ProcessingError string `json:"ProcessingError"`
		}
		if err := decodeJSON(resp, &items); err != nil {
			return err
		}

		if len(items) == 0 {
			fmt.Println("Review queue is empty.")
			return nil
		}

		for _, item := range items {
			fmt.Printf("%s  %s\n", colorize(colorCyan, item.ID[:8]), item.Content)
			if item.ProcessingError != "" {
				fmt.Printf("          %s\n", colorize(colorYellow, item.ProcessingError))
			}
		}
		return nil
	},
}

var reviewResolveCmd = &cobra.Command{
	Use:   "resolve <id>",
	Short: "Resolve a review item (retry or dismiss)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dismiss, _ := cmd.Flags().GetBool("dismiss")
		content, _ := cmd.Flags().GetString("content")

		action := "retry"
		if dismiss {
			action = "dismiss"
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/review/"+args[0]+"/resolve", map[string]string{
			"action":  action,
			"content": content,
		})
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Resolved (%s)", action)
		return nil
	},
}

func init() {
	reviewResolveCmd.Flags().Bool("dismiss", false, "close the item without classifying")
	reviewResolveCmd.Flags().String("content", "", "rewritten thought to capture instead")
	reviewCmd.AddCommand(reviewListCmd)
	reviewCmd.AddCommand(reviewResolveCmd)
}

// --- recall ---

var recallCmd = &cobra.Command{
	Use:   "recall <query>",
	Short: "Semantic search over stored memories",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/search?q=%s&top_k=%d", url.QueryEscape(query), limit)
		resp, err := client.get(path)
		if err != nil {
			return err
		}

		var results []struct {
			Entity struct {
				ID      string `json:"ID"`
				Title   string `json:"Title"`
				Type    string `json:"Type"`
				Summary string `json:"Summary"`
			} `json:"entity"`
			Score float32 `json:"score"`
		}
		if err := decodeJSON(resp, &results); err != nil {
			return err
		}

		if len(results) == 0 {
			fmt.Println("No results found.")
			return nil
		}

		for i, r := range results {
			fmt.Printf("\n%s [%s, score: %.3f]\n",
				colorize(colorBold, fmt.Sprintf("%d. %s", i+1, r.Entity.Title)),
				r.Entity.Type, r.Score)
			if r.Entity.Summary != "" {
				fmt.Printf("   %s\n", r.Entity.Summary)
			}
		}
		return nil
	},
}

func init() {
	recallCmd.Flags().Int("limit", 5, "maximum number of results")
}

// --- workflows ---

var workflowsCmd = &cobra.Command{
	Use:   "workflows",
	Short: "Manage automation workflows",
}

var workflowsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workflows",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/workflows")
		if err != nil {
			return err
		}

		var workflows []struct {
			ID       string `json:"ID"`
			Name     string `json:"Name"`
			Trigger  string `json:"Trigger"`
			Interval string `json:"Interval"`
			IsActive bool   `json:"IsActive"`
		}
		if err := decodeJSON(resp, &workflows); err != nil {
			return err
		}

		if len(workflows) == 0 {
			fmt.Println("No workflows defined.")
			return nil
		}

		for _, wf := range workflows {
			state := "active"
			if !wf.IsActive {
				state = "inactive"
			}
			detail := wf.Trigger
			if wf.Trigger == "SCHEDULE" {
				detail += "/" + wf.Interval
			}
			fmt.Printf("%s  %-10s %-16s %s\n",
				colorize(colorCyan, wf.ID[:8]), state, detail, wf.Name)
		}
		return nil
	},
}

var workflowsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a workflow from a JSON definition file",
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		if file == "" {
			return fmt.Errorf("--file is required")
		}

		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		var def map[string]any
		if err := json.Unmarshal(data, &def); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/workflows", def)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Created workflow %s", result["id"])
		return nil
	},
}

func init() {
	workflowsCreateCmd.Flags().String("file", "", "JSON file with the workflow definition")
	workflowsCmd.AddCommand(workflowsListCmd)
	workflowsCmd.AddCommand(workflowsCreateCmd)
}

// --- calendar ---

var calendarCmd = &cobra.Command{
	Use:   "calendar",
	Short: "Manage one-shot calendar triggers",
}

var calendarListCmd = &cobra.Command{
	Use:   "list",
	Short: "List calendar events",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/calendar")
		if err != nil {
			return err
		}

		var events []struct {
			ID          string `json:"ID"`
			Title       string `json:"Title"`
			ScheduledAt string `json:"ScheduledAt"`
			Status      string `json:"Status"`
		}
		if err := decodeJSON(resp, &events); err != nil {
			return err
		}

		if len(events) == 0 {
			fmt.Println("No calendar events.")
			return nil
		}

		for _, ev := range events {
			fmt.Printf("%s  %-10s %s  %s\n",
				colorize(colorCyan, ev.ID[:8]), ev.Status, ev.ScheduledAt, ev.Title)
		}
		return nil
	},
}

var calendarAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Schedule a one-shot event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		at, _ := cmd.Flags().GetString("at")
		description, _ := cmd.Flags().GetString("description")

		scheduledAt, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return fmt.Errorf("--at must be RFC3339 (e.g. 2026-09-01T09:00:00Z): %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/calendar", map[string]any{
			"title":        args[0],
			"description":  description,
			"scheduled_at": scheduledAt.Format(time.RFC3339),
		})
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Scheduled event %s", result["id"])
		return nil
	},
}

func init() {
	calendarAddCmd.Flags().String("at", "", "when to fire, RFC3339")
	calendarAddCmd.Flags().String("description", "", "event description")
	calendarCmd.AddCommand(calendarListCmd)
	calendarCmd.AddCommand(calendarAddCmd)
}

// --- audit ---

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the audit trail",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(fmt.Sprintf("/audit?limit=%d", limit))
		if err != nil {
			return err
		}

		var entries []struct {
			Action    string `json:"Action"`
			Details   string `json:"Details"`
			Timestamp string `json:"Timestamp"`
		}
		if err := decodeJSON(resp, &entries); err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("Audit log is empty.")
			return nil
		}

		for _, e := range entries {
			details := e.Details
			if len(details) > 80 {
				details = details[:80] + "..."
			}
			fmt.Printf("%s  %-26s %s\n", e.Timestamp, colorize(colorBold, e.Action), details)
		}
		return nil
	},
}

func init() {
	auditCmd.Flags().Int("limit", 50, "maximum number of entries")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
