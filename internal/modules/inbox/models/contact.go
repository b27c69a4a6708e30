package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Contact is an external identity (phone number or channel-scoped user id)
// that talks to a tenant.
type Contact struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	TenantID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_contacts_identity;index:idx_contacts_phone" json:"tenant_id"`
	Channel     string    `gorm:"type:text;not null;uniqueIndex:idx_contacts_identity" json:"channel"`
	ExternalID  string    `gorm:"type:text;not null;uniqueIndex:idx_contacts_identity" json:"external_id"`
	PhoneNumber string    `gorm:"type:text;index:idx_contacts_phone" json:"phone_number,omitempty"`
	Name        string    `gorm:"type:text" json:"name,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Contact) TableName() string {
	return "contacts"
}

func (c *Contact) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
