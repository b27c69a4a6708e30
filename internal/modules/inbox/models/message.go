package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type MessageStatus string

const (
	MessageReceived  MessageStatus = "received"
	MessagePending   MessageStatus = "pending"
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageRead      MessageStatus = "read"
	MessageFailed    MessageStatus = "failed"
)

// statusRank orders outbound delivery states; a status update may only move
// a message forward. Failed is terminal.
var statusRank = map[MessageStatus]int{
	MessagePending:   1,
	MessageSent:      2,
	MessageDelivered: 3,
	MessageRead:      4,
	MessageFailed:    5,
}

// Advances reports whether moving from current to next is allowed.
func (current MessageStatus) Advances(next MessageStatus) bool {
	if current == MessageFailed {
		return false
	}
	return statusRank[next] > statusRank[current]
}

// Message is one inbound or outbound turn.
type Message struct {
	ID                uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	TenantID          uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_messages_provider_id,where:provider_message_id <> ''" json:"tenant_id"`
	ConversationID    uuid.UUID      `gorm:"type:uuid;not null;index:idx_messages_conversation" json:"conversation_id"`
	Direction         Direction      `gorm:"type:text;not null" json:"direction"`
	Type              string         `gorm:"type:text;not null;default:'text'" json:"type"`
	Content           string         `gorm:"type:text" json:"content"`
	ProviderMessageID string         `gorm:"type:text;uniqueIndex:idx_messages_provider_id,where:provider_message_id <> ''" json:"provider_message_id,omitempty"`
	Status            MessageStatus  `gorm:"type:text;not null" json:"status"`
	Timestamp         time.Time      `gorm:"not null;index:idx_messages_conversation" json:"timestamp"`
	Metadata          datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt         time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Message) TableName() string {
	return "messages"
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
