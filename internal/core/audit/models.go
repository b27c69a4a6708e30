package audit

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLog records an operator or system action on a domain entity
type AuditLog struct {
	ID uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`

	TenantID string `json:"tenant_id" gorm:"type:uuid;index"`
	Actor    string `json:"actor" gorm:"type:text"` // operator id, or "agent" for automated changes

	Action   string `json:"action" gorm:"type:text;not null;index"` // lock, unlock, status_change
	Entity   string `json:"entity" gorm:"type:text;not null;index"` // conversation, escalation
	EntityID string `json:"entity_id" gorm:"type:text;index"`

	OldValue datatypes.JSON `json:"old_value,omitempty"`
	NewValue datatypes.JSON `json:"new_value,omitempty"`

	Description string `json:"description,omitempty" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

// TableName specifies the table name
func (AuditLog) TableName() string {
	return "audit_logs"
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// WebhookEvent is the append-only record of one received webhook body. The
// payload is kept as text because rejected bodies need not be valid JSON.
type WebhookEvent struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID       *string   `json:"tenant_id,omitempty" gorm:"type:uuid;index"`
	Provider       string    `json:"provider" gorm:"type:varchar(32);not null;index"`
	EventType      string    `json:"event_type" gorm:"type:varchar(64)"`
	Payload        string    `json:"payload" gorm:"type:text"`
	SignatureValid bool      `json:"signature_valid"`
	Processed      bool      `json:"processed" gorm:"index"`
	EventCount     int       `json:"event_count"`
	Error          string    `json:"error,omitempty" gorm:"type:text"`
	CreatedAt      time.Time `json:"created_at" gorm:"index"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}

func (e *WebhookEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// AuditFilter represents filters for querying audit logs
type AuditFilter struct {
	TenantID  string
	Action    string
	Entity    string
	EntityID  string
	StartDate *time.Time
	EndDate   *time.Time
	Page      int
	PageSize  int
}

// WebhookEventFilter narrows webhook event listings
type WebhookEventFilter struct {
	TenantID   string
	Provider   string
	OnlyFailed bool
	Page       int
	PageSize   int
}

