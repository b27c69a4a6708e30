package repositories

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/modules/inbox/models"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/shared/database"
)

type EscalationRepo struct {
	db *gorm.DB
}

func NewEscalationRepo(db *gorm.DB) *EscalationRepo {
	return &EscalationRepo{db: db}
}

func (r *EscalationRepo) Create(ctx context.Context, e *models.Escalation) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *EscalationRepo) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*models.Escalation, error) {
	var e models.Escalation
	err := r.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&e).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

// Transition updates an escalation only while it is in one of from.
func (r *EscalationRepo) Transition(ctx context.Context, tenantID, id uuid.UUID, from []models.EscalationStatus, fields map[string]interface{}) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Escalation{}).
		Where("id = ? AND tenant_id = ? AND status IN ?", id, tenantID, from).
		Updates(fields)
	return res.RowsAffected == 1, res.Error
}

type EscalationFilter struct {
	TenantID uuid.UUID
	Status   models.EscalationStatus
	Reason   models.EscalationReason
	Unit     string
	Page     int
	PageSize int
}

func (r *EscalationRepo) List(ctx context.Context, filter EscalationFilter) (*database.Page[models.Escalation], error) {
	q := r.db.WithContext(ctx).Model(&models.Escalation{}).Where("tenant_id = ?", filter.TenantID)
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Reason != "" {
		q = q.Where("reason = ?", filter.Reason)
	}
	if filter.Unit != "" {
		q = q.Where("unit = ?", filter.Unit)
	}
	return database.Paginate[models.Escalation](q, filter.Page, filter.PageSize)
}

type countRow struct {
	Bucket string
	Total  int64
}

// CountBy groups a tenant's escalations by column (status or reason).
func (r *EscalationRepo) CountBy(ctx context.Context, tenantID uuid.UUID, column string) (map[string]int64, error) {
	var rows []countRow
	err := r.db.WithContext(ctx).Model(&models.Escalation{}).
		Select(column+" AS bucket, COUNT(*) AS total").
		Where("tenant_id = ?", tenantID).
		Group(column).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Bucket] = row.Total
	}
	return out, nil
}
