package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/modules/inbox/models"
)

type MessageRepo struct {
	db *gorm.DB
}

func NewMessageRepo(db *gorm.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

func (r *MessageRepo) ExistsByProviderID(ctx context.Context, tenantID uuid.UUID, providerMessageID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("tenant_id = ? AND provider_message_id = ?", tenantID, providerMessageID).
		Count(&n).Error
	return n > 0, err
}

func (r *MessageRepo) FindByProviderID(ctx context.Context, tenantID uuid.UUID, providerMessageID string) (*models.Message, error) {
	var m models.Message
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND provider_message_id = ?", tenantID, providerMessageID).
		First(&m).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// InsertIgnore persists m unless (tenant, provider message id) already
// exists. It reports whether a row was written.
func (r *MessageRepo) InsertIgnore(ctx context.Context, m *models.Message) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(m)
	if res.Error != nil {
		return false, fmt.Errorf("insert message: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *MessageRepo) Create(ctx context.Context, m *models.Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *MessageRepo) CreateBatch(ctx context.Context, msgs []models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(msgs, 100).Error
}

// AdvanceStatus moves a message to status only if that is forward progress.
func (r *MessageRepo) AdvanceStatus(ctx context.Context, m *models.Message, status models.MessageStatus) (bool, error) {
	if !m.Status.Advances(status) {
		return false, nil
	}
	res := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND tenant_id = ? AND status = ?", m.ID, m.TenantID, m.Status).
		Update("status", status)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		m.Status = status
		return true, nil
	}
	return false, nil
}

// ListByConversation returns messages oldest first.
func (r *MessageRepo) ListByConversation(ctx context.Context, tenantID, conversationID uuid.UUID, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var msgs []models.Message
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND conversation_id = ?", tenantID, conversationID).
		Order(`"timestamp", created_at`).
		Limit(limit).
		Find(&msgs).Error
	return msgs, err
}
