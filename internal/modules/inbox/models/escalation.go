package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type EscalationReason string

const (
	ReasonUserRequested    EscalationReason = "user_requested"
	ReasonAgentUnable      EscalationReason = "agent_unable"
	ReasonComplexQuery     EscalationReason = "complex_query"
	ReasonComplaint        EscalationReason = "complaint"
	ReasonSalesOpportunity EscalationReason = "sales_opportunity"
	ReasonUrgency          EscalationReason = "urgency"
	ReasonOther            EscalationReason = "other"
)

type EscalationStatus string

const (
	EscalationPending    EscalationStatus = "pending"
	EscalationInProgress EscalationStatus = "in_progress"
	EscalationResolved   EscalationStatus = "resolved"
	EscalationCancelled  EscalationStatus = "cancelled"
)

// Escalation is a request to hand a conversation to a human.
type Escalation struct {
	ID             uuid.UUID        `gorm:"type:uuid;primary_key" json:"id"`
	TenantID       uuid.UUID        `gorm:"type:uuid;not null;index:idx_escalations_tenant_status" json:"tenant_id"`
	ConversationID uuid.UUID        `gorm:"type:uuid;not null;index" json:"conversation_id"`
	Reason         EscalationReason `gorm:"type:text;not null" json:"reason"`
	Detail         string           `gorm:"type:text" json:"detail,omitempty"`
	Status         EscalationStatus `gorm:"type:text;not null;default:'pending';index:idx_escalations_tenant_status" json:"status"`
	Unit           string           `gorm:"type:text" json:"unit,omitempty"`
	AgentContext   datatypes.JSON   `gorm:"type:jsonb" json:"agent_context,omitempty"`
	AttendedBy     string           `gorm:"type:text" json:"attended_by,omitempty"`
	AttendedAt     *time.Time       `json:"attended_at,omitempty"`
	ResolvedAt     *time.Time       `json:"resolved_at,omitempty"`
	CreatedAt      time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time        `gorm:"autoUpdateTime" json:"updated_at"`

	Conversation *Conversation `gorm:"foreignKey:ConversationID" json:"conversation,omitempty"`
}

func (Escalation) TableName() string {
	return "escalations"
}

func (e *Escalation) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// All returns every model of the inbox module, in migration order.
func All() []interface{} {
	return []interface{}{
		&Tenant{},
		&TenantChannel{},
		&Contact{},
		&Conversation{},
		&Message{},
		&Escalation{},
	}
}
