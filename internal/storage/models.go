package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// InboxStatus is the lifecycle state of a captured inbox item.
type InboxStatus string

const (
	InboxPending     InboxStatus = "PENDING"
	InboxProcessing  InboxStatus = "PROCESSING"
	InboxNeedsReview InboxStatus = "NEEDS_USER_REVIEW"
	InboxCompleted   InboxStatus = "COMPLETED"
	InboxFailed      InboxStatus = "FAILED"
)

// Engine-written inbox item sources. Capture sources (web, CLI, MCP)
// are free-form tags chosen by the capture surface.
const (
	SourceAIReceipt   = "AI_RECEIPT"
	SourceAICoach     = "AI_COACH"
	SourceAIReasoning = "AI_REASONING"
	SourceAIRouting   = "AI_ROUTING"
	SourceCalendar    = "CALENDAR"
)

// EntityType classifies a structured memory record.
type EntityType string

const (
	EntityProject EntityType = "PROJECT"
	EntityPerson  EntityType = "PERSON"
	EntityIdea    EntityType = "IDEA"
	EntityAdmin   EntityType = "ADMIN"

	// Legacy types kept readable for rows imported from older schemas.
	EntityNote     EntityType = "NOTE"
	EntityResource EntityType = "RESOURCE"
	EntityContact  EntityType = "CONTACT"
)

// TriggerKind is the event class a workflow listens for.
type TriggerKind string

const (
	TriggerOnClassify TriggerKind = "ON_CLASSIFY"
	TriggerSchedule   TriggerKind = "SCHEDULE"
)

// LinkGeneratedBy marks an entity created by a workflow action, pointing
// back at the entity whose classification triggered it.
const LinkGeneratedBy = "GENERATED_BY"

// Audit log action tags.
const (
	AuditInboxCapture     = "INBOX_CAPTURE"
	AuditAIClassified     = "AI_CLASSIFIED"
	AuditWorkflowExecuted = "WORKFLOW_EXECUTED"
	AuditWorkflowFailed   = "WORKFLOW_FAILED"
	AuditNudgeGenerated   = "AI_NUDGE_GENERATED"
	AuditCalendarFired    = "CALENDAR_EVENT_TRIGGERED"
)

// CalendarEvent statuses.
const (
	CalendarPending   = "PENDING"
	CalendarCompleted = "COMPLETED"
)

// InboxItem is one captured unit of raw text awaiting or having
// undergone classification. Items are never deleted by the engine.
type InboxItem struct {
	ID                string
	Content           string
	Source            string
	Status            InboxStatus
	Confidence        *float64
	ProcessingError   string
	ProcessedEntityID string
	UserID            string
	CreatedAt         time.Time
}

// Entity is a structured memory record produced by classification or by
// a workflow create action. At most one of the metadata pointers is
// non-nil, and it matches Type.
type Entity struct {
	ID         string
	Title      string
	Content    string
	Type       EntityType
	Intent     string
	Summary    string
	Status     string
	Confidence float64
	Embedding  []float32
	UserID     string
	CreatedAt  time.Time
	UpdatedAt  time.Time

	Project *ProjectMetadata
	Person  *PersonMetadata
	Idea    *IdeaMetadata
	Admin   *AdminMetadata
}

type ProjectMetadata struct {
	Goal       string
	Deadline   string
	Priority   string
	NextAction string
}

type PersonMetadata struct {
	Role      string
	Company   string
	Relation  string
	LastTouch string
}

type IdeaMetadata struct {
	Category string
	Maturity string
	Sparks   string
}

type AdminMetadata struct {
	DueDate   string
	Urgency   string
	Recurring bool
}

// Link is a typed edge between two entities.
type Link struct {
	ID           string
	FromEntityID string
	ToEntityID   string
	Type         string
	CreatedAt    time.Time
}

// Workflow is a user-authored automation rule. Conditions and actions
// are stored as JSON and decoded into typed values at fetch time; the
// engine treats everything except LastRunAt as read-only.
type Workflow struct {
	ID             string
	Name           string
	Trigger        TriggerKind
	ConditionsJSON string
	ActionsJSON    string
	Interval       string // minute/hour/day/week; SCHEDULE trigger only
	IsActive       bool
	LastRunAt      *time.Time
	UserID         string
	CreatedAt      time.Time
}

// AuditEntry is one immutable row of the append-only audit trail.
type AuditEntry struct {
	ID         string
	Action     string
	Details    string
	Confidence *float64
	EntityID   string
	WorkflowID string
	Timestamp  time.Time
}

// CalendarEvent is a one-shot time-scheduled trigger.
type CalendarEvent struct {
	ID          string
	Title       string
	Description string
	Type        string
	ScheduledAt time.Time
	Status      string
	UserID      string
	CreatedAt   time.Time
}
