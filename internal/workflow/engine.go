package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/kalambet/engram/internal/classify"
	"github.com/kalambet/engram/internal/storage"
)

// ReviewThreshold is the minimum classifier confidence for automatic
// filing. Anything below it goes to the review queue instead.
const ReviewThreshold = 0.8

// EmbedFunc produces an embedding vector for entity text. Optional; a
// nil func disables embedding at classification time and leaves the
// backfill sweep to fill it in later.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// Engine processes claimed inbox items: classify, file or route to
// review, then run matching ON_CLASSIFY workflows. Failures are
// contained per item and per workflow.
type Engine struct {
	store      *storage.Store
	classifier *classify.Classifier
	executor   *Executor
	embed      EmbedFunc
	logger     *slog.Logger
}

// NewEngine wires the processing engine. embed may be nil.
func NewEngine(store *storage.Store, c *classify.Classifier, ex *Executor, embed EmbedFunc, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, classifier: c, executor: ex, embed: embed, logger: logger}
}

// ProcessItem runs one claimed item through classification and
// workflows. Classification failures mark the item FAILED and return
// nil; only storage errors propagate to the caller.
func (en *Engine) ProcessItem(ctx context.Context, item storage.InboxItem) error {
	result, err := en.classifier.Classify(ctx, item.Content)
	if err != nil {
		en.logger.Warn("classification failed", "item", item.ID, "error", err)
		if mErr := en.store.MarkInboxFailed(item.ID, err.Error()); mErr != nil {
			return fmt.Errorf("marking item failed: %w", mErr)
		}
		return nil
	}

	if err := en.writeTrustReceipts(item, result); err != nil {
		return err
	}

	conf := result.Confidence

	if result.Kind == classify.KindClarify {
		q := strings.TrimSpace(result.ClarificationQuestion)
		if q == "" {
			q = "Can you clarify what you meant?"
		}
		if err := en.store.MarkInboxNeedsReview(item.ID, q, &conf); err != nil {
			return fmt.Errorf("routing to review: %w", err)
		}
		return nil
	}

	if conf < ReviewThreshold {
		reason := fmt.Sprintf("confidence %.2f below review threshold", conf)
		if err := en.store.MarkInboxNeedsReview(item.ID, reason, &conf); err != nil {
			return fmt.Errorf("routing to review: %w", err)
		}
		return nil
	}

	entity := entityFromResult(result, item)
	if en.embed != nil {
		vec, err := en.embed(ctx, entity.Title+"\n"+entity.Content)
		if err != nil {
			en.logger.Warn("embedding failed, leaving for backfill", "item", item.ID, "error", err)
		} else {
			entity.Embedding = vec
		}
	}
	if err := en.store.CreateEntity(entity); err != nil {
		return fmt.Errorf("creating entity: %w", err)
	}

	audit := storage.AuditEntry{
		ID:         uuid.New().String(),
		Action:     storage.AuditAIClassified,
		Details:    fmt.Sprintf("classified as %s: %s", result.Kind, entity.Title),
		Confidence: &conf,
		EntityID:   entity.ID,
	}
	if err := en.store.AppendAudit(audit); err != nil {
		return fmt.Errorf("auditing classification: %w", err)
	}

	if err := en.store.MarkInboxCompleted(item.ID, entity.ID, &conf); err != nil {
		return fmt.Errorf("completing item: %w", err)
	}

	receipt := storage.InboxItem{
		ID:                uuid.New().String(),
		Content:           fmt.Sprintf("Filed %q as %s (confidence %.2f)", entity.Title, result.Kind, conf),
		Source:            storage.SourceAIReceipt,
		Status:            storage.InboxCompleted,
		ProcessedEntityID: entity.ID,
		UserID:            item.UserID,
	}
	if err := en.store.CreateInboxItem(receipt); err != nil {
		return fmt.Errorf("writing receipt: %w", err)
	}

	en.runWorkflows(ctx, item, result, entity)
	return nil
}

// writeTrustReceipts surfaces the model's narrative reasoning and
// routing explanation as completed inbox items, so the user can always
// see why the system did what it did.
func (en *Engine) writeTrustReceipts(item storage.InboxItem, result classify.Result) error {
	if r := strings.TrimSpace(result.Reasoning); r != "" {
		receipt := storage.InboxItem{
			ID:      uuid.New().String(),
			Content: r,
			Source:  storage.SourceAIReasoning,
			Status:  storage.InboxCompleted,
			UserID:  item.UserID,
		}
		if err := en.store.CreateInboxItem(receipt); err != nil {
			return fmt.Errorf("writing reasoning receipt: %w", err)
		}
	}
	if r := strings.TrimSpace(result.RoutingStrategy); r != "" && result.Kind != classify.KindClarify {
		receipt := storage.InboxItem{
			ID:      uuid.New().String(),
			Content: r,
			Source:  storage.SourceAIRouting,
			Status:  storage.InboxCompleted,
			UserID:  item.UserID,
		}
		if err := en.store.CreateInboxItem(receipt); err != nil {
			return fmt.Errorf("writing routing receipt: %w", err)
		}
	}
	return nil
}

// runWorkflows evaluates every active ON_CLASSIFY workflow for the
// item's user, in creation order. One workflow failing (bad JSON or a
// failing action) never stops the others.
func (en *Engine) runWorkflows(ctx context.Context, item storage.InboxItem, result classify.Result, entity *storage.Entity) {
	workflows, err := en.store.ActiveWorkflowsForUser(storage.TriggerOnClassify, item.UserID)
	if err != nil {
		en.logger.Error("listing workflows", "error", err)
		return
	}

	for _, wf := range workflows {
		pred, err := DecodePredicate(wf.ConditionsJSON)
		if err != nil {
			en.logger.Warn("workflow has invalid conditions", "workflow", wf.ID, "error", err)
			continue
		}
		if !pred.Matches(string(result.Kind), item.Content) {
			continue
		}

		actions, err := DecodeActions(wf.ActionsJSON)
		if err != nil {
			en.logger.Warn("workflow has invalid actions", "workflow", wf.ID, "error", err)
			continue
		}

		ec := &ExecContext{OriginalContent: item.Content, EntityType: string(result.Kind)}
		target := Target{EntityID: entity.ID, UserID: item.UserID}
		if err := en.executor.Execute(ctx, actions, ec, target); err != nil {
			en.logger.Warn("workflow execution failed", "workflow", wf.ID, "error", err)
			en.appendAudit(storage.AuditEntry{
				ID:         uuid.New().String(),
				Action:     storage.AuditWorkflowFailed,
				Details:    fmt.Sprintf("%s: %v", wf.Name, err),
				EntityID:   entity.ID,
				WorkflowID: wf.ID,
			})
			continue
		}

		en.appendAudit(storage.AuditEntry{
			ID:         uuid.New().String(),
			Action:     storage.AuditWorkflowExecuted,
			Details:    wf.Name,
			EntityID:   entity.ID,
			WorkflowID: wf.ID,
		})
	}
}

func (en *Engine) appendAudit(a storage.AuditEntry) {
	if err := en.store.AppendAudit(a); err != nil {
		en.logger.Error("appending audit entry", "action", a.Action, "error", err)
	}
}

// entityFromResult maps a classification result onto a new entity row,
// carrying over exactly the metadata block that matches the kind.
func entityFromResult(result classify.Result, item storage.InboxItem) *storage.Entity {
	title := strings.TrimSpace(result.Title)
	if title == "" {
		title = item.Content
		if len(title) > 80 {
			title = title[:80]
		}
	}

	e := &storage.Entity{
		ID:         uuid.New().String(),
		Title:      title,
		Content:    item.Content,
		Type:       storage.EntityType(result.Kind),
		Intent:     result.Intent,
		Summary:    result.Summary,
		Status:     result.Status,
		Confidence: result.Confidence,
		UserID:     item.UserID,
	}
	if e.Status == "" {
		e.Status = "active"
	}

	switch {
	case result.Project != nil:
		e.Project = &storage.ProjectMetadata{
			Goal:       result.Project.Goal,
			Deadline:   result.Project.Deadline,
			Priority:   result.Project.Priority,
			NextAction: result.Project.NextAction,
		}
	case result.Person != nil:
		e.Person = &storage.PersonMetadata{
			Role:      result.Person.Role,
			Company:   result.Person.Company,
			Relation:  result.Person.Relation,
			LastTouch: result.Person.LastTouch,
		}
	case result.Idea != nil:
		e.Idea = &storage.IdeaMetadata{
			Category: result.Idea.Category,
			Maturity: result.Idea.Maturity,
			Sparks:   result.Idea.Sparks,
		}
	case result.Admin != nil:
		e.Admin = &storage.AdminMetadata{
			DueDate:   result.Admin.DueDate,
			Urgency:   result.Admin.Urgency,
			Recurring: result.Admin.Recurring,
		}
	}
	return e
}
