package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantTrial     TenantStatus = "trial"
	TenantSuspended TenantStatus = "suspended"
	TenantCancelled TenantStatus = "cancelled"
)

// RoutableStatuses are the tenant statuses that receive webhook traffic.
var RoutableStatuses = []TenantStatus{TenantActive, TenantTrial}

// Tenant is the isolation boundary; every other record carries its id.
type Tenant struct {
	ID                uuid.UUID    `gorm:"type:uuid;primary_key" json:"id"`
	Slug              string       `gorm:"type:text;not null;uniqueIndex" json:"slug"`
	Name              string       `gorm:"type:text;not null" json:"name"`
	Status            TenantStatus `gorm:"type:text;not null;default:'active'" json:"status"`
	AgentSystemPrompt string       `gorm:"type:text" json:"agent_system_prompt,omitempty"`
	CreatedAt         time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time    `gorm:"autoUpdateTime" json:"updated_at"`

	Channels []TenantChannel `gorm:"foreignKey:TenantID" json:"-"`
}

func (Tenant) TableName() string {
	return "tenants"
}

func (t *Tenant) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// TenantChannel is a provider account registered by a tenant, with the
// secrets needed to verify its webhooks and send through it.
type TenantChannel struct {
	ID                uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	TenantID          uuid.UUID `gorm:"type:uuid;not null;index" json:"tenant_id"`
	Channel           string    `gorm:"type:text;not null;uniqueIndex:idx_tenant_channels_account" json:"channel"`
	ProviderAccountID string    `gorm:"type:text;not null;uniqueIndex:idx_tenant_channels_account" json:"provider_account_id"`
	BusinessAccountID string    `gorm:"type:text" json:"business_account_id,omitempty"`
	DisplayPhone      string    `gorm:"type:text" json:"display_phone,omitempty"`
	AccessToken       string    `gorm:"type:text" json:"-"`
	AppSecret         string    `gorm:"type:text" json:"-"`
	VerifyToken       string    `gorm:"type:text" json:"-"`
	Active            bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (TenantChannel) TableName() string {
	return "tenant_channels"
}

func (c *TenantChannel) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
