package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/shared/database"
)

// Service provides audit logging functionality
type Service struct {
	db *gorm.DB
}

// NewService creates a new audit service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// RecordWebhook appends one webhook event record.
func (s *Service) RecordWebhook(ctx context.Context, event *WebhookEvent) error {
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to record webhook event: %w", err)
	}
	return nil
}

// Log creates a new audit log entry
func (s *Service) Log(ctx context.Context, entry *AuditLog) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

// LogChange creates an audit log tracking a change
func (s *Service) LogChange(ctx context.Context, tenantID, actor, action, entity, entityID string, oldValue, newValue interface{}) error {
	oldJSON, err := toJSON(oldValue)
	if err != nil {
		log.Warn().Err(err).Str("entity", entity).Msg("failed to serialize old value")
	}

	newJSON, err := toJSON(newValue)
	if err != nil {
		log.Warn().Err(err).Str("entity", entity).Msg("failed to serialize new value")
	}

	return s.Log(ctx, &AuditLog{
		TenantID: tenantID,
		Actor:    actor,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		OldValue: oldJSON,
		NewValue: newJSON,
	})
}

// GetLogs retrieves audit logs with filtering
func (s *Service) GetLogs(ctx context.Context, filter AuditFilter) (*database.Page[AuditLog], error) {
	query := s.db.WithContext(ctx).Model(&AuditLog{})

	if filter.TenantID != "" {
		query = query.Where("tenant_id = ?", filter.TenantID)
	}
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if filter.Entity != "" {
		query = query.Where("entity = ?", filter.Entity)
	}
	if filter.EntityID != "" {
		query = query.Where("entity_id = ?", filter.EntityID)
	}
	if filter.StartDate != nil {
		query = query.Where("created_at >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		query = query.Where("created_at <= ?", *filter.EndDate)
	}

	return database.Paginate[AuditLog](query, filter.Page, filter.PageSize)
}

// GetWebhookEvents lists received webhooks, newest first. Admin inspection
// only; the webhook path never reads this table.
func (s *Service) GetWebhookEvents(ctx context.Context, filter WebhookEventFilter) (*database.Page[WebhookEvent], error) {
	query := s.db.WithContext(ctx).Model(&WebhookEvent{})

	if filter.TenantID != "" {
		query = query.Where("tenant_id = ?", filter.TenantID)
	}
	if filter.Provider != "" {
		query = query.Where("provider = ?", filter.Provider)
	}
	if filter.OnlyFailed {
		query = query.Where("processed = ?", false)
	}

	return database.Paginate[WebhookEvent](query, filter.Page, filter.PageSize)
}

// DeleteOldWebhookEvents removes webhook records older than daysToKeep
func (s *Service) DeleteOldWebhookEvents(ctx context.Context, daysToKeep int) (int64, error) {
	if daysToKeep < 1 {
		return 0, fmt.Errorf("daysToKeep must be at least 1")
	}

	cutoffDate := s.db.NowFunc().AddDate(0, 0, -daysToKeep)

	result := s.db.WithContext(ctx).Where("created_at < ?", cutoffDate).Delete(&WebhookEvent{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete old webhook events: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func toJSON(value interface{}) (datatypes.JSON, error) {
	if value == nil {
		return nil, nil
	}

	bytes, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	return datatypes.JSON(bytes), nil
}
