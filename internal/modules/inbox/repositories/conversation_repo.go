package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/modules/inbox/models"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/shared/database"
)

// ErrConversationClosed is returned when a closed conversation would be changed.
var ErrConversationClosed = errors.New("conversation is closed")

type ConversationRepo struct {
	db *gorm.DB
}

func NewConversationRepo(db *gorm.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

func (r *ConversationRepo) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Conversation, error) {
	var c models.Conversation
	err := r.db.WithContext(ctx).
		Preload("Contact").
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&c).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// FindActive returns the non-closed conversation of a contact.
func (r *ConversationRepo) FindActive(ctx context.Context, tenantID, contactID uuid.UUID) (*models.Conversation, error) {
	var c models.Conversation
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND contact_id = ? AND status <> ?", tenantID, contactID, models.ConversationClosed).
		Order("created_at DESC").
		First(&c).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// FindOrCreateActive reuses the contact's open conversation or inserts c.
// The partial unique index on active conversations turns a concurrent insert
// into a no-op, after which the winner is read back.
func (r *ConversationRepo) FindOrCreateActive(ctx context.Context, c *models.Conversation) (*models.Conversation, bool, error) {
	existing, err := r.FindActive(ctx, c.TenantID, c.ContactID)
	if err == nil {
		return existing, false, nil
	}
	if err != ErrNotFound {
		return nil, false, err
	}

	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(c)
	if res.Error != nil {
		return nil, false, fmt.Errorf("create conversation: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return c, true, nil
	}
	existing, err = r.FindActive(ctx, c.TenantID, c.ContactID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// Update applies fields in one guarded statement. Closed conversations are
// read-only: they yield ErrConversationClosed.
func (r *ConversationRepo) Update(ctx context.Context, tenantID, id uuid.UUID, fields map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ? AND tenant_id = ? AND status <> ?", id, tenantID, models.ConversationClosed).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.missing(ctx, tenantID, id)
	}
	return nil
}

// missing tells an unknown conversation from a closed one.
func (r *ConversationRepo) missing(ctx context.Context, tenantID, id uuid.UUID) error {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Count(&n).Error
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrConversationClosed
}

// Touch moves last_message_at forward, never back.
func (r *ConversationRepo) Touch(ctx context.Context, tenantID, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Where("last_message_at IS NULL OR last_message_at < ?", at).
		Update("last_message_at", at).Error
}

func (r *ConversationRepo) SetLock(ctx context.Context, tenantID, id uuid.UUID, locked bool, actor string, at time.Time) error {
	fields := map[string]interface{}{
		"agent_locked":    locked,
		"agent_locked_at": nil,
		"agent_locked_by": "",
	}
	if locked {
		fields["agent_locked_at"] = at
		fields["agent_locked_by"] = actor
	}
	return r.Update(ctx, tenantID, id, fields)
}

func (r *ConversationRepo) Close(ctx context.Context, tenantID, id uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ? AND tenant_id = ? AND status <> ?", id, tenantID, models.ConversationClosed).
		Updates(map[string]interface{}{"status": models.ConversationClosed, "closed_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

type ConversationFilter struct {
	TenantID    uuid.UUID
	Status      models.ConversationStatus
	AgentLocked *bool
	Unit        string
	Page        int
	PageSize    int
}

func (r *ConversationRepo) List(ctx context.Context, filter ConversationFilter) (*database.Page[models.Conversation], error) {
	q := r.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("tenant_id = ?", filter.TenantID)
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.AgentLocked != nil {
		q = q.Where("agent_locked = ?", *filter.AgentLocked)
	}
	if filter.Unit != "" {
		q = q.Where("unit = ?", filter.Unit)
	}
	return database.Paginate[models.Conversation](q, filter.Page, filter.PageSize)
}
