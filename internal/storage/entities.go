package storage

import (
	"database/sql"
	"fmt"
	"time"
)

const entityColumns = `id, title, content, type, intent, summary, status, confidence, embedding, user_id, created_at, updated_at`

// CreateEntity inserts an entity together with its type-specific
// metadata sub-record, if any, in one transaction.
func (s *Store) CreateEntity(e *Entity) error {
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = now
	}
	if e.Status == "" {
		e.Status = "active"
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning entity transaction: %w", err)
	}
	defer tx.Rollback()

	var embedding any
	if len(e.Embedding) > 0 {
		embedding = EncodeVector(e.Embedding)
	}

	if _, err := tx.Exec(`
		INSERT INTO entities (`+entityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Title, e.Content, string(e.Type), e.Intent, e.Summary, e.Status,
		e.Confidence, embedding, e.UserID,
		e.CreatedAt.Format(time.RFC3339), e.UpdatedAt.Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("inserting entity: %w", err)
	}

	switch {
	case e.Project != nil:
		_, err = tx.Exec(`INSERT INTO project_metadata (entity_id, goal, deadline, priority, next_action) VALUES (?, ?, ?, ?, ?)`,
			e.ID, e.Project.Goal, e.Project.Deadline, e.Project.Priority, e.Project.NextAction)
	case e.Person != nil:
		_, err = tx.Exec(`INSERT INTO person_metadata (entity_id, role, company, relation, last_touch) VALUES (?, ?, ?, ?, ?)`,
			e.ID, e.Person.Role, e.Person.Company, e.Person.Relation, e.Person.LastTouch)
	case e.Idea != nil:
		_, err = tx.Exec(`INSERT INTO idea_metadata (entity_id, category, maturity, sparks) VALUES (?, ?, ?, ?)`,
			e.ID, e.Idea.Category, e.Idea.Maturity, e.Idea.Sparks)
	case e.Admin != nil:
		_, err = tx.Exec(`INSERT INTO admin_metadata (entity_id, due_date, urgency, recurring) VALUES (?, ?, ?, ?)`,
			e.ID, e.Admin.DueDate, e.Admin.Urgency, boolArg(e.Admin.Recurring))
	}
	if err != nil {
		return fmt.Errorf("inserting entity metadata: %w", err)
	}

	return tx.Commit()
}

// GetEntity returns an entity with its metadata sub-record loaded.
func (s *Store) GetEntity(id string) (Entity, error) {
	row := s.db.QueryRow(`SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return Entity{}, ErrNotFound
	}
	if err != nil {
		return Entity{}, err
	}
	if err := s.loadMetadata(&e); err != nil {
		return Entity{}, err
	}
	return e, nil
}

func (s *Store) loadMetadata(e *Entity) error {
	var err error
	switch e.Type {
	case EntityProject:
		m := &ProjectMetadata{}
		err = s.db.QueryRow(`SELECT goal, deadline, priority, next_action FROM project_metadata WHERE entity_id = ?`, e.ID).
			Scan(&m.Goal, &m.Deadline, &m.Priority, &m.NextAction)
		if err == nil {
			e.Project = m
		}
	case EntityPerson:
		m := &PersonMetadata{}
		err = s.db.QueryRow(`SELECT role, company, relation, last_touch FROM person_metadata WHERE entity_id = ?`, e.ID).
			Scan(&m.Role, &m.Company, &m.Relation, &m.LastTouch)
		if err == nil {
			e.Person = m
		}
	case EntityIdea:
		m := &IdeaMetadata{}
		err = s.db.QueryRow(`SELECT category, maturity, sparks FROM idea_metadata WHERE entity_id = ?`, e.ID).
			Scan(&m.Category, &m.Maturity, &m.Sparks)
		if err == nil {
			e.Idea = m
		}
	case EntityAdmin:
		m := &AdminMetadata{}
		var recurring int
		err = s.db.QueryRow(`SELECT due_date, urgency, recurring FROM admin_metadata WHERE entity_id = ?`, e.ID).
			Scan(&m.DueDate, &m.Urgency, &recurring)
		if err == nil {
			m.Recurring = recurring != 0
			e.Admin = m
		}
	}
	if err == sql.ErrNoRows {
		return nil
	}
	return err
}

// ListEntities returns entities newest first, without metadata
// sub-records (list view).
func (s *Store) ListEntities(limit, offset int) ([]Entity, error) {
	rows, err := s.db.Query(`
		SELECT `+entityColumns+` FROM entities
		ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntities(rows)
}

// ListActiveProjects returns PROJECT entities that have not been
// archived or completed, oldest first. Used by the nudge sweep.
func (s *Store) ListActiveProjects() ([]Entity, error) {
	rows, err := s.db.Query(`
		SELECT `+entityColumns+` FROM entities
		WHERE type = ? AND status NOT IN ('archived', 'completed')
		ORDER BY created_at ASC`, string(EntityProject))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntities(rows)
}

// ListEntitiesMissingEmbedding returns entities without a stored vector,
// oldest first, for embedding backfill.
func (s *Store) ListEntitiesMissingEmbedding(limit int) ([]Entity, error) {
	rows, err := s.db.Query(`
		SELECT `+entityColumns+` FROM entities
		WHERE embedding IS NULL ORDER BY created_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntities(rows)
}

// UpdateEntityEmbedding stores the serialized vector for an entity.
func (s *Store) UpdateEntityEmbedding(id string, vec []float32) error {
	res, err := s.db.Exec(`UPDATE entities SET embedding = ?, updated_at = ? WHERE id = ?`,
		EncodeVector(vec), time.Now().UTC().Format(time.RFC3339), id)
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

// EntityVector pairs an entity id with its embedding for search scans.
type EntityVector struct {
	ID        string
	Embedding []float32
}

// ListEntityVectors returns id+embedding for every entity that has one.
func (s *Store) ListEntityVectors() ([]EntityVector, error) {
	rows, err := s.db.Query(`SELECT id, embedding FROM entities WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []EntityVector
	for rows.Next() {
		var v EntityVector
		var blob []byte
		if err := rows.Scan(&v.ID, &blob); err != nil {
			return nil, err
		}
		vec, err := DecodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", v.ID, err)
		}
		v.Embedding = vec
		results = append(results, v)
	}
	return results, rows.Err()
}

// CreateLink inserts a typed edge between two entities.
func (s *Store) CreateLink(l Link) error {
	createdAt := l.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO links (id, from_entity_id, to_entity_id, type, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		l.ID, l.FromEntityID, l.ToEntityID, l.Type, createdAt.Format(time.RFC3339))
	return err
}

// ListLinksFrom returns outgoing links for an entity.
func (s *Store) ListLinksFrom(entityID string) ([]Link, error) {
	rows, err := s.db.Query(`
		SELECT id, from_entity_id, to_entity_id, type, created_at
		FROM links WHERE from_entity_id = ? ORDER BY created_at ASC`, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Link
	for rows.Next() {
		var l Link
		var createdAt string
		if err := rows.Scan(&l.ID, &l.FromEntityID, &l.ToEntityID, &l.Type, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		l.CreatedAt = t
		results = append(results, l)
	}
	return results, rows.Err()
}

func collectEntities(rows *sql.Rows) ([]Entity, error) {
	var results []Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

func scanEntity(row rowScanner) (Entity, error) {
	var e Entity
	var typ, createdAt, updatedAt string
	var blob []byte
	err := row.Scan(&e.ID, &e.Title, &e.Content, &typ, &e.Intent, &e.Summary,
		&e.Status, &e.Confidence, &blob, &e.UserID, &createdAt, &updatedAt)
	if err != nil {
		return Entity{}, err
	}
	e.Type = EntityType(typ)
	if len(blob) > 0 {
		vec, err := DecodeVector(blob)
		if err != nil {
			return Entity{}, fmt.Errorf("decoding embedding for %s: %w", e.ID, err)
		}
		e.Embedding = vec
	}
	if e.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Entity{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if e.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Entity{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return e, nil
}

func boolArg(b bool) int {
	if b {
		return 1
	}
	return 0
}
