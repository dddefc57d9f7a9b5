package models

import (
	"encoding/json"
	"time"
)

// ActivityType classifies entries in the lead audit trail.
type ActivityType string

const (
	ActivityCreation         ActivityType = "CREATION"
	ActivityUpdate           ActivityType = "UPDATE"
	ActivityStepCompleted    ActivityType = "STEP_COMPLETED"
	ActivityStatusCorrection ActivityType = "STATUS_CORRECTION"
	ActivityDocumentCreated  ActivityType = "DOCUMENT_CREATED"
	ActivityNotificationSent ActivityType = "NOTIFICATION_SENT"
	ActivityDeletion         ActivityType = "DELETION"
)

// ActivityLog is an append-only audit entry. Rows are never updated or
// deleted outside the owning lead's cascade removal.
type ActivityLog struct {
	ID          string          `db:"id" json:"id"`
	LeadID      string          `db:"lead_id" json:"lead_id"`
	Type        ActivityType    `db:"type" json:"type"`
	Description string          `db:"description" json:"description"`
	Details     json.RawMessage `db:"details" json:"details,omitempty"`
	ActorID     *string         `db:"actor_id" json:"actor_id,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}
