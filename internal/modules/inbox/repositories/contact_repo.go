package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/modules/inbox/models"
)

type ContactRepo struct {
	db *gorm.DB
}

func NewContactRepo(db *gorm.DB) *ContactRepo {
	return &ContactRepo{db: db}
}

func (r *ContactRepo) FindByExternalID(ctx context.Context, tenantID uuid.UUID, channel, externalID string) (*models.Contact, error) {
	var c models.Contact
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND channel = ? AND external_id = ?", tenantID, channel, externalID).
		First(&c).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// FindByIdentifier looks a contact up by phone number, then by external id on
// any channel.
func (r *ContactRepo) FindByIdentifier(ctx context.Context, tenantID uuid.UUID, identifier string) (*models.Contact, error) {
	var c models.Contact
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND phone_number = ?", tenantID, identifier).
		Order("created_at").
		First(&c).Error
	if err == nil {
		return &c, nil
	}
	if err = notFound(err); err != ErrNotFound {
		return nil, err
	}

	err = r.db.WithContext(ctx).
		Where("tenant_id = ? AND external_id = ?", tenantID, identifier).
		Order("created_at").
		First(&c).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// FindOrCreate inserts c unless a contact with the same identity exists, in
// which case the stored one is returned. A changed display name is saved.
func (r *ContactRepo) FindOrCreate(ctx context.Context, c *models.Contact) (*models.Contact, bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(c)
	if res.Error != nil {
		return nil, false, fmt.Errorf("create contact: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return c, true, nil
	}

	existing, err := r.FindByExternalID(ctx, c.TenantID, c.Channel, c.ExternalID)
	if err != nil {
		return nil, false, err
	}
	if c.Name != "" && c.Name != existing.Name {
		err := r.db.WithContext(ctx).Model(&models.Contact{}).
			Where("id = ? AND tenant_id = ?", existing.ID, existing.TenantID).
			Update("name", c.Name).Error
		if err != nil {
			return nil, false, fmt.Errorf("update contact name: %w", err)
		}
		existing.Name = c.Name
	}
	return existing, false, nil
}
