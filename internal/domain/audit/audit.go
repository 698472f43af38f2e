package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Category represents the type of audit event.
type Category string

const (
	CategoryOverlay  Category = "overlay"
	CategoryApproval Category = "approval"
	CategoryBilling  Category = "billing"
	CategoryBooking  Category = "booking"
	CategorySecurity Category = "security"
)

// Action represents the action that occurred.
type Action string

const (
	ActionStart   Action = "start"
	ActionEnd     Action = "end"
	ActionExpire  Action = "expire"
	ActionSubmit  Action = "submit"
	ActionReview  Action = "review"
	ActionDelete  Action = "delete"
	ActionUpdate  Action = "update"
	ActionRefund  Action = "refund"
	ActionLogin   Action = "login"
	ActionLogout  Action = "logout"
	ActionExecute Action = "execute"
)

// Severity represents the severity level of an audit event.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event represents a single audit log entry.
type Event struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Category     Category  `json:"category"`
	Action       Action    `json:"action"`
	Severity     Severity  `json:"severity"`
	ActorID      string    `json:"actor_id"`
	ActorRole    string    `json:"actor_role"`
	ResourceID   string    `json:"resource_id"`
	ResourceType string    `json:"resource_type"`
	Description  string    `json:"description"`
	Metadata     string    `json:"metadata"`
}

// NewEvent creates a new audit event.
// PRE: actorID and action are non-empty
// POST: Returns an Event with a fresh id and the given timestamp
func NewEvent(actorID, actorRole string, category Category, action Action, now time.Time) Event {
	return Event{
		ID:        uuid.New().String(),
		Timestamp: now,
		Category:  category,
		Action:    action,
		Severity:  SeverityInfo,
		ActorID:   actorID,
		ActorRole: actorRole,
	}
}

// WithSeverity sets the severity level.
func (e Event) WithSeverity(s Severity) Event {
	e.Severity = s
	return e
}

// WithResource sets resource information.
func (e Event) WithResource(resourceType, resourceID string) Event {
	e.ResourceType = resourceType
	e.ResourceID = resourceID
	return e
}

// WithDescription sets the event description.
func (e Event) WithDescription(desc string) Event {
	e.Description = desc
	return e
}

// WithMetadata encodes v as the event's JSON metadata. Unencodable values are dropped.
func (e Event) WithMetadata(v any) Event {
	raw, err := json.Marshal(v)
	if err == nil {
		e.Metadata = string(raw)
	}
	return e
}
