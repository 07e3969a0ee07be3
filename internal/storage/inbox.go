package storage

import (
	"database/sql"
	"fmt"
	"time"
)

const inboxColumns = `id, content, source, status, confidence, processing_error, processed_entity_id, user_id, created_at`

// CreateInboxItem inserts a new inbox item. Status defaults to PENDING
// and CreatedAt to now when unset.
func (s *Store) CreateInboxItem(i InboxItem) error {
	status := i.Status
	if status == "" {
		status = InboxPending
	}
	createdAt := i.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO inbox_items (`+inboxColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		i.ID, i.Content, i.Source, string(status), floatArg(i.Confidence),
		i.ProcessingError, i.ProcessedEntityID, i.UserID,
		createdAt.Format(time.RFC3339),
	)
	return err
}

// GetInboxItem returns a single inbox item by id.
func (s *Store) GetInboxItem(id string) (InboxItem, error) {
	row := s.db.QueryRow(`SELECT `+inboxColumns+` FROM inbox_items WHERE id = ?`, id)
	item, err := scanInboxItem(row)
	if err == sql.ErrNoRows {
		return InboxItem{}, ErrNotFound
	}
	return item, err
}

// ListInboxItems returns inbox items newest first, optionally filtered
// by status (empty status means all).
func (s *Store) ListInboxItems(status InboxStatus, limit, offset int) ([]InboxItem, error) {
	query := `SELECT ` + inboxColumns + ` FROM inbox_items`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []InboxItem
	for rows.Next() {
		item, err := scanInboxItem(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, item)
	}
	return results, rows.Err()
}

// ClaimPendingItems atomically flips up to n PENDING items to PROCESSING
// and returns them in creation order. The claim is a conditional update
// checked via RowsAffected, so a concurrent claimer can never take the
// same item twice.
func (s *Store) ClaimPendingItems(n int) ([]InboxItem, error) {
	if n <= 0 {
		return nil, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(`
		SELECT `+inboxColumns+` FROM inbox_items
		WHERE status = ? ORDER BY created_at ASC LIMIT ?`,
		string(InboxPending), n)
	if err != nil {
		return nil, fmt.Errorf("selecting pending items: %w", err)
	}

	var candidates []InboxItem
	for rows.Next() {
		item, err := scanInboxItem(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		candidates = append(candidates, item)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	var claimed []InboxItem
	for _, item := range candidates {
		res, err := tx.Exec(`UPDATE inbox_items SET status = ? WHERE id = ? AND status = ?`,
			string(InboxProcessing), item.ID, string(InboxPending))
		if err != nil {
			return nil, fmt.Errorf("claiming item %s: %w", item.ID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected != 1 {
			continue
		}
		item.Status = InboxProcessing
		claimed = append(claimed, item)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}
	return claimed, nil
}

// MarkInboxCompleted records a successful classification outcome.
func (s *Store) MarkInboxCompleted(id, entityID string, confidence *float64) error {
	return s.updateInbox(id, `
		UPDATE inbox_items SET status = ?, processed_entity_id = ?, confidence = ?, processing_error = ''
		WHERE id = ?`,
		string(InboxCompleted), entityID, floatArg(confidence), id)
}

// MarkInboxNeedsReview routes an item to the manual review queue,
// storing the reason (clarification question or confidence note) as the
// processing error surfaced to the user.
func (s *Store) MarkInboxNeedsReview(id, reason string, confidence *float64) error {
	return s.updateInbox(id, `
		UPDATE inbox_items SET status = ?, processing_error = ?, confidence = ?
		WHERE id = ?`,
		string(InboxNeedsReview), reason, floatArg(confidence), id)
}

// MarkInboxFailed records a classification failure verbatim.
func (s *Store) MarkInboxFailed(id, errMsg string) error {
	return s.updateInbox(id, `
		UPDATE inbox_items SET status = ?, processing_error = ?
		WHERE id = ?`,
		string(InboxFailed), errMsg, id)
}

// ReopenInboxItem sends a reviewed item back to the queue for another
// classification pass, clearing the review reason.
func (s *Store) ReopenInboxItem(id string) error {
	return s.updateInbox(id, `
		UPDATE inbox_items SET status = ?, processing_error = ''
		WHERE id = ? AND status = ?`,
		string(InboxPending), id, string(InboxNeedsReview))
}

// DismissInboxItem closes a reviewed item without classifying it.
func (s *Store) DismissInboxItem(id string) error {
	return s.updateInbox(id, `
		UPDATE inbox_items SET status = ?
		WHERE id = ? AND status = ?`,
		string(InboxCompleted), id, string(InboxNeedsReview))
}

func (s *Store) updateInbox(id, query string, args ...any) error {
	res, err := s.db.Exec(query, args...)
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

// HasCoachMentionSince reports whether an AI_COACH inbox item mentioning
// the given title was created at or after since. Used to rate-limit
// proactive nudges per project. instr keeps the match a plain substring
// check, so titles containing LIKE metacharacters cannot over-match.
func (s *Store) HasCoachMentionSince(title string, since time.Time) (bool, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM inbox_items
		WHERE source = ? AND created_at >= ? AND instr(content, ?) > 0`,
		SourceAICoach, since.UTC().Format(time.RFC3339), title,
	).Scan(&count)
	return count > 0, err
}

// CountInboxByStatus returns item counts grouped by status.
func (s *Store) CountInboxByStatus() (map[InboxStatus]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM inbox_items GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[InboxStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[InboxStatus(status)] = n
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInboxItem(row rowScanner) (InboxItem, error) {
	var i InboxItem
	var status, createdAt string
	var confidence sql.NullFloat64
	err := row.Scan(&i.ID, &i.Content, &i.Source, &status, &confidence,
		&i.ProcessingError, &i.ProcessedEntityID, &i.UserID, &createdAt)
	if err != nil {
		return InboxItem{}, err
	}
	i.Status = InboxStatus(status)
	i.Confidence = nullFloat(confidence)
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return InboxItem{}, fmt.Errorf("parsing created_at: %w", err)
	}
	i.CreatedAt = t
	return i, nil
}
