// Package workflow implements user-authored automation: typed trigger
// predicates, a small action vocabulary, the executor that runs action
// chains, and the engine that drives classification plus ON_CLASSIFY
// workflows for each inbox item.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/engram/internal/provider"
	"github.com/kalambet/engram/internal/storage"
)

// NudgePrefix marks notify output in the inbox so a reader can tell
// automation receipts from captured thoughts.
const NudgePrefix = "WORKFLOW NUDGE: "

// ReasoningPlaceholder in a notify message is replaced with the output
// of an earlier ai_reasoning action in the same chain.
const ReasoningPlaceholder = "{{reasoning}}"

// ExecContext is the mutable state threaded through one action chain.
// ai_reasoning writes Insights; later actions read it.
type ExecContext struct {
	OriginalContent string
	EntityType      string
	Insights        string
}

// Target identifies the entity the chain runs against. A zero EntityID
// means the chain runs standalone (scheduled trigger with no subject).
type Target struct {
	EntityID string
	UserID   string
}

// Executor runs decoded action chains sequentially, aborting the chain
// on the first failing action.
type Executor struct {
	store       *storage.Store
	provider    provider.Provider
	callTimeout time.Duration
	logger      *slog.Logger
}

// NewExecutor creates an Executor. callTimeout bounds each provider
// call and defaults to 60s.
func NewExecutor(store *storage.Store, p provider.Provider, callTimeout time.Duration, logger *slog.Logger) *Executor {
	if callTimeout <= 0 {
		callTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{store: store, provider: p, callTimeout: callTimeout, logger: logger}
}

// Execute runs the chain in order. Unknown actions are skipped with a
// log line; any other failure aborts the remainder of the chain.
func (e *Executor) Execute(ctx context.Context, actions []Action, ec *ExecContext, target Target) error {
	for i, a := range actions {
		var err error
		switch a.Kind {
		case ActionCreateEntity:
			err = e.createEntity(a, ec, target)
		case ActionNotify:
			err = e.notify(a, ec, target)
		case ActionAIReasoning:
			err = e.aiReasoning(ctx, a, ec, target)
		case ActionAINudge:
			err = e.aiNudge(ctx, a, ec, target)
		case ActionUnknown:
			e.logger.Debug("skipping unknown workflow action", "type", a.WireType)
			continue
		}
		if err != nil {
			return fmt.Errorf("action %d (%s): %w", i, a.Kind, err)
		}
	}
	return nil
}

func (e *Executor) createEntity(a Action, ec *ExecContext, target Target) error {
	content := ec.Insights
	if content == "" {
		content = "Generated automatically by workflow"
		if target.EntityID != "" {
			content += " from entity " + target.EntityID
		}
	}

	entity := &storage.Entity{
		ID:         uuid.New().String(),
		Title:      "[AUTO] " + a.Params.Title,
		Content:    content,
		Type:       a.CreateKind,
		Intent:     "workflow",
		Status:     "active",
		Confidence: 1.0,
		UserID:     target.UserID,
	}
	if err := e.store.CreateEntity(entity); err != nil {
		return fmt.Errorf("creating entity: %w", err)
	}

	if target.EntityID != "" {
		link := storage.Link{
			ID:           uuid.New().String(),
			FromEntityID: entity.ID,
			ToEntityID:   target.EntityID,
			Type:         storage.LinkGeneratedBy,
		}
		if err := e.store.CreateLink(link); err != nil {
			return fmt.Errorf("linking generated entity: %w", err)
		}
	}
	return nil
}

func (e *Executor) notify(a Action, ec *ExecContext, target Target) error {
	msg := a.Params.Message
	if msg == "" {
		msg = a.Params.Template
	}
	if ec.Insights != "" {
		msg = strings.ReplaceAll(msg, ReasoningPlaceholder, ec.Insights)
	}

	item := storage.InboxItem{
		ID:                uuid.New().String(),
		Content:           NudgePrefix + msg,
		Source:            storage.SourceAIReceipt,
		Status:            storage.InboxCompleted,
		ProcessedEntityID: target.EntityID,
		UserID:            target.UserID,
	}
	if err := e.store.CreateInboxItem(item); err != nil {
		return fmt.Errorf("writing notification: %w", err)
	}
	return nil
}

func (e *Executor) aiReasoning(ctx context.Context, a Action, ec *ExecContext, target Target) error {
	ctx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	raw, err := e.provider.Generate(ctx, reasoningPrompt(ec.EntityType, a.Params.Prompt, ec.OriginalContent))
	if err != nil {
		return fmt.Errorf("reasoning call: %w", err)
	}
	ec.Insights = strings.TrimSpace(raw)

	item := storage.InboxItem{
		ID:                uuid.New().String(),
		Content:           ec.Insights,
		Source:            storage.SourceAICoach,
		Status:            storage.InboxCompleted,
		ProcessedEntityID: target.EntityID,
		UserID:            target.UserID,
	}
	if err := e.store.CreateInboxItem(item); err != nil {
		return fmt.Errorf("writing reasoning output: %w", err)
	}
	return nil
}

func (e *Executor) aiNudge(ctx context.Context, a Action, ec *ExecContext, target Target) error {
	ctx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	raw, err := e.provider.Generate(ctx, nudgePrompt(ec.EntityType, ec.Insights, a.Params.Template, ec.OriginalContent))
	if err != nil {
		return fmt.Errorf("nudge call: %w", err)
	}
	nudge := strings.TrimSpace(raw)

	item := storage.InboxItem{
		ID:                uuid.New().String(),
		Content:           nudge,
		Source:            storage.SourceAICoach,
		Status:            storage.InboxCompleted,
		ProcessedEntityID: target.EntityID,
		UserID:            target.UserID,
	}
	if err := e.store.CreateInboxItem(item); err != nil {
		return fmt.Errorf("writing nudge: %w", err)
	}

	audit := storage.AuditEntry{
		ID:       uuid.New().String(),
		Action:   storage.AuditNudgeGenerated,
		Details:  nudge,
		EntityID: target.EntityID,
	}
	if err := e.store.AppendAudit(audit); err != nil {
		return fmt.Errorf("auditing nudge: %w", err)
	}
	return nil
}
