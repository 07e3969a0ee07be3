package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/engram/internal/storage"
	"github.com/kalambet/engram/internal/workflow"
)

// NoNudgeSentinel is what the model answers when a project does not
// warrant a nudge. Nothing is written in that case.
const NoNudgeSentinel = "NO_NUDGE"

const nudgeWindow = 24 * time.Hour

const projectNudgePromptTmpl = `You are a proactive coach inside a personal knowledge system. The user has an active project that has not been nudged recently.

Project: %s
Goal: %s
Next action: %s

If a short strategic nudge would genuinely help the user make progress, respond with that one sentence. If not, respond with exactly NO_NUDGE and nothing else.`

// nudgeSweep asks the model, for each active project not mentioned by
// a coach item in the last 24h, whether a nudge is warranted. Real
// nudges land as PENDING inbox items so the next tick picks them up.
func (s *Scheduler) nudgeSweep(ctx context.Context) {
	projects, err := s.store.ListActiveProjects()
	if err != nil {
		s.logger.Error("nudge sweep: listing projects", "error", err)
		return
	}

	since := s.now().Add(-nudgeWindow)
	for _, p := range projects {
		mentioned, err := s.store.HasCoachMentionSince(p.Title, since)
		if err != nil {
			s.logger.Error("nudge sweep: checking recent mentions", "entity", p.ID, "error", err)
			continue
		}
		if mentioned {
			continue
		}

		if err := s.nudgeProject(ctx, p); err != nil {
			s.logger.Warn("nudge sweep: project skipped", "entity", p.ID, "error", err)
		}
	}
}

func (s *Scheduler) nudgeProject(ctx context.Context, p storage.Entity) error {
	goal, next := "", ""
	if p.Project != nil {
		goal, next = p.Project.Goal, p.Project.NextAction
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	raw, err := s.provider.Generate(callCtx, fmt.Sprintf(projectNudgePromptTmpl, p.Title, goal, next))
	if err != nil {
		return fmt.Errorf("nudge call: %w", err)
	}
	nudge := strings.TrimSpace(raw)
	if nudge == "" || strings.EqualFold(nudge, NoNudgeSentinel) {
		return nil
	}

	item := storage.InboxItem{
		ID:                uuid.New().String(),
		Content:           fmt.Sprintf("%s: %s", p.Title, nudge),
		Source:            storage.SourceAICoach,
		Status:            storage.InboxPending,
		ProcessedEntityID: p.ID,
		UserID:            p.UserID,
	}
	if err := s.store.CreateInboxItem(item); err != nil {
		return fmt.Errorf("writing nudge: %w", err)
	}

	audit := storage.AuditEntry{
		ID:       uuid.New().String(),
		Action:   storage.AuditNudgeGenerated,
		Details:  nudge,
		EntityID: p.ID,
	}
	if err := s.store.AppendAudit(audit); err != nil {
		return fmt.Errorf("auditing nudge: %w", err)
	}
	return nil
}

// scheduledWorkflowSweep runs every active SCHEDULE workflow whose
// interval has elapsed since its last run (epoch when never run).
// Actions execute without an entity target.
func (s *Scheduler) scheduledWorkflowSweep(ctx context.Context) {
	workflows, err := s.store.ActiveWorkflows(storage.TriggerSchedule)
	if err != nil {
		s.logger.Error("schedule sweep: listing workflows", "error", err)
		return
	}

	now := s.now()
	for _, wf := range workflows {
		last := time.Time{}
		if wf.LastRunAt != nil {
			last = *wf.LastRunAt
		}
		if now.Sub(last) < IntervalDuration(wf.Interval) {
			continue
		}

		if err := s.runScheduledWorkflow(ctx, wf, now); err != nil {
			s.logger.Warn("schedule sweep: workflow failed", "workflow", wf.ID, "error", err)
			s.appendAudit(storage.AuditEntry{
				ID:         uuid.New().String(),
				Action:     storage.AuditWorkflowFailed,
				Details:    fmt.Sprintf("%s: %v", wf.Name, err),
				WorkflowID: wf.ID,
			})
		}
	}
}

func (s *Scheduler) runScheduledWorkflow(ctx context.Context, wf storage.Workflow, now time.Time) error {
	actions, err := workflow.DecodeActions(wf.ActionsJSON)
	if err != nil {
		return fmt.Errorf("decoding actions: %w", err)
	}

	ec := &workflow.ExecContext{OriginalContent: wf.Name}
	if err := s.executor.Execute(ctx, actions, ec, workflow.Target{UserID: wf.UserID}); err != nil {
		return err
	}

	if err := s.store.UpdateWorkflowLastRun(wf.ID, now); err != nil {
		return fmt.Errorf("updating last run: %w", err)
	}

	s.appendAudit(storage.AuditEntry{
		ID:         uuid.New().String(),
		Action:     storage.AuditWorkflowExecuted,
		Details:    wf.Name,
		WorkflowID: wf.ID,
	})
	return nil
}

// calendarSweep fires every pending calendar event whose time has
// passed. The status flip is a conditional update, so an event fires
// exactly once even if sweeps overlap.
func (s *Scheduler) calendarSweep(ctx context.Context) {
	events, err := s.store.DueCalendarEvents(s.now())
	if err != nil {
		s.logger.Error("calendar sweep: listing due events", "error", err)
		return
	}

	for _, ev := range events {
		if err := s.store.CompleteCalendarEvent(ev.ID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue // already fired
			}
			s.logger.Error("calendar sweep: completing event", "event", ev.ID, "error", err)
			continue
		}

		if err := s.fireCalendarEvent(ev); err != nil {
			s.logger.Error("calendar sweep: firing event", "event", ev.ID, "error", err)
		}
	}
}

func (s *Scheduler) fireCalendarEvent(ev storage.CalendarEvent) error {
	content := fmt.Sprintf("Calendar event due: %s", ev.Title)
	if strings.TrimSpace(ev.Description) != "" {
		content += ": " + ev.Description
	}

	item := storage.InboxItem{
		ID:      uuid.New().String(),
		Content: content,
		Source:  storage.SourceCalendar,
		Status:  storage.InboxPending,
		UserID:  ev.UserID,
	}
	if err := s.store.CreateInboxItem(item); err != nil {
		return fmt.Errorf("writing event item: %w", err)
	}

	s.appendAudit(storage.AuditEntry{
		ID:      uuid.New().String(),
		Action:  storage.AuditCalendarFired,
		Details: ev.Title,
	})
	return nil
}

func (s *Scheduler) appendAudit(a storage.AuditEntry) {
	if err := s.store.AppendAudit(a); err != nil {
		s.logger.Error("appending audit entry", "action", a.Action, "error", err)
	}
}

// IntervalDuration maps a workflow schedule interval to a duration.
// Unknown values fall back to a day.
func IntervalDuration(interval string) time.Duration {
	switch strings.ToLower(strings.TrimSpace(interval)) {
	case "minute":
		return time.Minute
	case "hour":
		return time.Hour
	case "week":
		return 7 * 24 * time.Hour
	case "day":
		return 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}
