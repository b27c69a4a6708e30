package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ConversationStatus string

const (
	ConversationBotHandling ConversationStatus = "bot_handling"
	ConversationOpen        ConversationStatus = "open"
	ConversationInProgress  ConversationStatus = "in_progress"
	ConversationWaiting     ConversationStatus = "waiting"
	ConversationClosed      ConversationStatus = "closed"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ValidPriority reports whether p is one of the known priorities.
func ValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Conversation is the unit of interaction with one contact. At most one
// non-closed conversation exists per (tenant, contact).
type Conversation struct {
	ID            uuid.UUID          `gorm:"type:uuid;primary_key" json:"id"`
	TenantID      uuid.UUID          `gorm:"type:uuid;not null;index:idx_conversations_contact" json:"tenant_id"`
	ContactID     uuid.UUID          `gorm:"type:uuid;not null;index:idx_conversations_contact" json:"contact_id"`
	Channel       string             `gorm:"type:text;not null" json:"channel"`
	Status        ConversationStatus `gorm:"type:text;not null;default:'bot_handling';index" json:"status"`
	AgentLocked   bool               `gorm:"not null;default:false" json:"agent_locked"`
	AgentLockedAt *time.Time         `json:"agent_locked_at,omitempty"`
	AgentLockedBy string             `gorm:"type:text" json:"agent_locked_by,omitempty"`
	Priority      Priority           `gorm:"type:text;not null;default:'medium'" json:"priority"`
	Unit          string             `gorm:"type:text" json:"unit,omitempty"`
	LastMessageAt *time.Time         `gorm:"index" json:"last_message_at,omitempty"`
	ClosedAt      *time.Time         `json:"closed_at,omitempty"`
	CreatedAt     time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time          `gorm:"autoUpdateTime" json:"updated_at"`

	Contact *Contact `gorm:"foreignKey:ContactID" json:"contact,omitempty"`
}

func (Conversation) TableName() string {
	return "conversations"
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Active reports whether the conversation can still receive messages.
func (c *Conversation) Active() bool {
	return c.Status != ConversationClosed
}
