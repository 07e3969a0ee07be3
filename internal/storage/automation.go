package storage

import (
	"database/sql"
	"fmt"
	"time"
)

const workflowColumns = `id, name, trigger_kind, conditions_json, actions_json, interval, is_active, last_run_at, user_id, created_at`

// CreateWorkflow inserts a workflow definition. Conditions and actions
// are validated by the caller before they reach the store.
func (s *Store) CreateWorkflow(w Workflow) error {
	createdAt := w.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	conditions := w.ConditionsJSON
	if conditions == "" {
		conditions = "{}"
	}
	actions := w.ActionsJSON
	if actions == "" {
		actions = "[]"
	}
	interval := w.Interval
	if interval == "" {
		interval = "day"
	}
	var lastRun any
	if w.LastRunAt != nil {
		lastRun = w.LastRunAt.UTC().Format(time.RFC3339)
	}
	_, err := s.db.Exec(`
		INSERT INTO workflows (`+workflowColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.Name, string(w.Trigger), conditions, actions, interval,
		boolArg(w.IsActive), lastRun, w.UserID, createdAt.Format(time.RFC3339))
	return err
}

// ListWorkflows returns all workflows in creation order.
func (s *Store) ListWorkflows() ([]Workflow, error) {
	rows, err := s.db.Query(`SELECT ` + workflowColumns + ` FROM workflows ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWorkflows(rows)
}

// ActiveWorkflows returns all active workflows for a trigger, in
// creation order. Creation order is the execution order when several
// workflows match the same event.
func (s *Store) ActiveWorkflows(trigger TriggerKind) ([]Workflow, error) {
	rows, err := s.db.Query(`
		SELECT `+workflowColumns+` FROM workflows
		WHERE trigger_kind = ? AND is_active = 1 ORDER BY created_at ASC`, string(trigger))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWorkflows(rows)
}

// ActiveWorkflowsForUser returns active workflows for a trigger scoped
// to one owner, in creation order.
func (s *Store) ActiveWorkflowsForUser(trigger TriggerKind, userID string) ([]Workflow, error) {
	rows, err := s.db.Query(`
		SELECT `+workflowColumns+` FROM workflows
		WHERE trigger_kind = ? AND is_active = 1 AND user_id = ?
		ORDER BY created_at ASC`, string(trigger), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWorkflows(rows)
}

// UpdateWorkflowLastRun records the completion time of a SCHEDULE run.
// This is the only workflow field the engine writes.
func (s *Store) UpdateWorkflowLastRun(id string, t time.Time) error {
	res, err := s.db.Exec(`UPDATE workflows SET last_run_at = ? WHERE id = ?`,
		t.UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func collectWorkflows(rows *sql.Rows) ([]Workflow, error) {
	var results []Workflow
	for rows.Next() {
		var w Workflow
		var trigger, createdAt string
		var isActive int
		var lastRun sql.NullString
		if err := rows.Scan(&w.ID, &w.Name, &trigger, &w.ConditionsJSON, &w.ActionsJSON,
			&w.Interval, &isActive, &lastRun, &w.UserID, &createdAt); err != nil {
			return nil, err
		}
		w.Trigger = TriggerKind(trigger)
		w.IsActive = isActive != 0
		if lastRun.Valid {
			t, err := time.Parse(time.RFC3339, lastRun.String)
			if err != nil {
				return nil, fmt.Errorf("parsing last_run_at for %s: %w", w.ID, err)
			}
			w.LastRunAt = &t
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at for %s: %w", w.ID, err)
		}
		w.CreatedAt = t
		results = append(results, w)
	}
	return results, rows.Err()
}

// AppendAudit writes one immutable audit row. Timestamp defaults to now.
func (s *Store) AppendAudit(a AuditEntry) error {
	ts := a.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO audit_log (id, action, details, confidence, entity_id, workflow_id, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Action, a.Details, floatArg(a.Confidence), a.EntityID, a.WorkflowID,
		ts.Format(time.RFC3339))
	return err
}

// ListAudit returns audit entries newest first.
func (s *Store) ListAudit(limit, offset int) ([]AuditEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, action, details, confidence, entity_id, workflow_id, timestamp
		FROM audit_log ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []AuditEntry
	for rows.Next() {
		var a AuditEntry
		var confidence sql.NullFloat64
		var ts string
		if err := rows.Scan(&a.ID, &a.Action, &a.Details, &confidence, &a.EntityID, &a.WorkflowID, &ts); err != nil {
			return nil, err
		}
		a.Confidence = nullFloat(confidence)
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		a.Timestamp = t
		results = append(results, a)
	}
	return results, rows.Err()
}

// CountAuditByAction returns audit row counts grouped by action tag.
func (s *Store) CountAuditByAction() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT action, COUNT(*) FROM audit_log GROUP BY action`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var action string
		var n int
		if err := rows.Scan(&action, &n); err != nil {
			return nil, err
		}
		counts[action] = n
	}
	return counts, rows.Err()
}

// CreateCalendarEvent inserts a time-scheduled trigger in PENDING state.
func (s *Store) CreateCalendarEvent(e CalendarEvent) error {
	status := e.Status
	if status == "" {
		status = CalendarPending
	}
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO calendar_events (id, title, description, type, scheduled_at, status, user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Title, e.Description, e.Type,
		e.ScheduledAt.UTC().Format(time.RFC3339), status, e.UserID,
		createdAt.Format(time.RFC3339))
	return err
}

// ListCalendarEvents returns events newest first.
func (s *Store) ListCalendarEvents(limit, offset int) ([]CalendarEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, title, description, type, scheduled_at, status, user_id, created_at
		FROM calendar_events
		ORDER BY scheduled_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCalendarEvents(rows)
}

// DueCalendarEvents returns PENDING events whose scheduled time has
// passed, oldest first.
func (s *Store) DueCalendarEvents(now time.Time) ([]CalendarEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, title, description, type, scheduled_at, status, user_id, created_at
		FROM calendar_events
		WHERE status = ? AND scheduled_at <= ?
		ORDER BY scheduled_at ASC`,
		CalendarPending, now.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCalendarEvents(rows)
}

func collectCalendarEvents(rows *sql.Rows) ([]CalendarEvent, error) {
	var results []CalendarEvent
	for rows.Next() {
		var e CalendarEvent
		var scheduledAt, createdAt string
		var err error
		if err = rows.Scan(&e.ID, &e.Title, &e.Description, &e.Type, &scheduledAt, &e.Status, &e.UserID, &createdAt); err != nil {
			return nil, err
		}
		if e.ScheduledAt, err = time.Parse(time.RFC3339, scheduledAt); err != nil {
			return nil, fmt.Errorf("parsing scheduled_at: %w", err)
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// CompleteCalendarEvent flips a PENDING event to COMPLETED. The
// conditional update guarantees an event fires exactly once; a second
// completion attempt returns ErrNotFound.
func (s *Store) CompleteCalendarEvent(id string) error {
	res, err := s.db.Exec(`UPDATE calendar_events SET status = ? WHERE id = ? AND status = ?`,
		CalendarCompleted, id, CalendarPending)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
