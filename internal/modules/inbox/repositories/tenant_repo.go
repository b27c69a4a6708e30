package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/channel"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/tenant"
	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/modules/inbox/models"
)

// ErrNotFound is returned instead of gorm.ErrRecordNotFound.
var ErrNotFound = errors.New("record not found")

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// TenantRepo reads tenants and their registered channel accounts. It is the
// storage behind tenant resolution and outbound credentials.
type TenantRepo struct {
	db *gorm.DB
}

func NewTenantRepo(db *gorm.DB) *TenantRepo {
	return &TenantRepo{db: db}
}

func (r *TenantRepo) Create(ctx context.Context, t *models.Tenant) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *TenantRepo) AddChannel(ctx context.Context, c *models.TenantChannel) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *TenantRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	var t models.Tenant
	if err := r.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// BySlug resolves a routable tenant by slug. A tenant without a row for ch
// still resolves, with empty secrets.
func (r *TenantRepo) BySlug(ctx context.Context, ch channel.Channel, slug string) (tenant.Credentials, error) {
	var t models.Tenant
	err := r.db.WithContext(ctx).
		Where("slug = ? AND status IN ?", slug, models.RoutableStatuses).
		First(&t).Error
	if err != nil {
		return tenant.Credentials{}, sourceErr(err)
	}

	var tc models.TenantChannel
	err = r.db.WithContext(ctx).
		Where("tenant_id = ? AND channel = ? AND active = ?", t.ID, string(ch), true).
		Order("created_at DESC").
		First(&tc).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return tenant.Credentials{}, fmt.Errorf("load tenant channel: %w", err)
	}
	return credentials(&t, &tc, ch), nil
}

// ByAccount resolves the tenant owning a provider account id (phone number id,
// business account id or Instagram account id).
func (r *TenantRepo) ByAccount(ctx context.Context, ch channel.Channel, accountID string) (tenant.Credentials, error) {
	var tc models.TenantChannel
	err := r.db.WithContext(ctx).
		Joins("JOIN tenants ON tenants.id = tenant_channels.tenant_id").
		Where("tenant_channels.channel = ? AND tenant_channels.active = ?", string(ch), true).
		Where("tenant_channels.provider_account_id = ? OR tenant_channels.business_account_id = ?", accountID, accountID).
		Where("tenants.status IN ?", models.RoutableStatuses).
		First(&tc).Error
	if err != nil {
		return tenant.Credentials{}, sourceErr(err)
	}

	t, err := r.GetByID(ctx, tc.TenantID)
	if err != nil {
		return tenant.Credentials{}, sourceErr(err)
	}
	return credentials(t, &tc, ch), nil
}

func (r *TenantRepo) ActiveTenants(ctx context.Context) ([]tenant.ActiveTenant, error) {
	var rows []models.Tenant
	err := r.db.WithContext(ctx).
		Where("status IN ?", models.RoutableStatuses).
		Order("created_at").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]tenant.ActiveTenant, 0, len(rows))
	for _, t := range rows {
		out = append(out, tenant.ActiveTenant{ID: t.ID.String(), Slug: t.Slug})
	}
	return out, nil
}

// OutboundCredentials returns the access token used to send on ch.
func (r *TenantRepo) OutboundCredentials(ctx context.Context, tenantID string, ch channel.Channel) (channel.Credentials, error) {
	var tc models.TenantChannel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND channel = ? AND active = ?", tenantID, string(ch), true).
		Order("created_at DESC").
		First(&tc).Error
	if err != nil {
		return channel.Credentials{}, notFound(err)
	}
	if tc.AccessToken == "" {
		return channel.Credentials{}, fmt.Errorf("tenant %s has no access token for %s", tenantID, ch)
	}
	return channel.Credentials{AccountID: tc.ProviderAccountID, AccessToken: tc.AccessToken}, nil
}

// PrimaryChannel returns the first active account of a tenant on ch.
func (r *TenantRepo) PrimaryChannel(ctx context.Context, tenantID uuid.UUID, ch channel.Channel) (*models.TenantChannel, error) {
	var tc models.TenantChannel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND channel = ? AND active = ?", tenantID, string(ch), true).
		Order("created_at").
		First(&tc).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &tc, nil
}

func sourceErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return tenant.ErrNotFound
	}
	return err
}

func credentials(t *models.Tenant, tc *models.TenantChannel, ch channel.Channel) tenant.Credentials {
	return tenant.Credentials{
		TenantID:    t.ID.String(),
		TenantSlug:  t.Slug,
		Channel:     ch,
		AccountID:   tc.ProviderAccountID,
		AppSecret:   tc.AppSecret,
		VerifyToken: tc.VerifyToken,
		AccessToken: tc.AccessToken,
	}
}
