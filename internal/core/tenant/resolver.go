package tenant

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/channel"
)

var (
	// ErrNotFound is returned by a Source when nothing matches.
	ErrNotFound = errors.New("tenant not found")
	// ErrUnresolved means no signal on the request identified a tenant.
	ErrUnresolved = errors.New("tenant could not be resolved")
)

// Credentials is what the webhook boundary needs to know about the tenant
// that owns an inbound event.
type Credentials struct {
	TenantID    string
	TenantSlug  string
	Channel     channel.Channel
	AccountID   string
	AppSecret   string
	VerifyToken string
	AccessToken string
}

// ActiveTenant is a routable tenant as seen by the single-tenant fallback.
type ActiveTenant struct {
	ID   string
	Slug string
}

// Source is the narrow read contract over tenant storage.
type Source interface {
	BySlug(ctx context.Context, ch channel.Channel, slug string) (Credentials, error)
	ByAccount(ctx context.Context, ch channel.Channel, accountID string) (Credentials, error)
	ActiveTenants(ctx context.Context) ([]ActiveTenant, error)
}

// Signals are the routing hints available on an inbound request.
type Signals struct {
	Channel    channel.Channel
	Slug       string
	AccountIDs []string
}

// Method records which step of the resolution order matched.
type Method string

const (
	BySlug         Method = "slug"
	ByAccount      Method = "account"
	BySingleTenant Method = "single_tenant"
)

// FallbackConfig enables the single-tenant environment fallback.
type FallbackConfig struct {
	AccountID  string                     // the one configured provider account id
	AppSecrets map[channel.Channel]string // used when the tenant has no channel row
}

type Resolver struct {
	cache    *Cache
	source   Source
	fallback FallbackConfig
}

func NewResolver(cache *Cache, source Source, fallback FallbackConfig) *Resolver {
	return &Resolver{cache: cache, source: source, fallback: fallback}
}

// Resolve maps request signals to exactly one tenant: explicit slug first,
// then provider account ids, then the single-tenant fallback.
func (r *Resolver) Resolve(ctx context.Context, sig Signals) (Credentials, Method, error) {
	if sig.Slug != "" {
		creds, err := r.cache.Resolve(ctx, sig.Channel, sig.Slug)
		if err == nil {
			return creds, BySlug, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Credentials{}, "", err
		}
		log.Debug().Str("slug", sig.Slug).Msg("tenant slug unknown, trying account ids")
	}

	for _, id := range sig.AccountIDs {
		if id == "" {
			continue
		}
		creds, err := r.cache.ResolveAccount(ctx, sig.Channel, id)
		if err == nil {
			return creds, ByAccount, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Credentials{}, "", err
		}
	}

	creds, ok, err := r.singleTenant(ctx, sig)
	if err != nil {
		return Credentials{}, "", err
	}
	if ok {
		return creds, BySingleTenant, nil
	}
	return Credentials{}, "", ErrUnresolved
}

func (r *Resolver) singleTenant(ctx context.Context, sig Signals) (Credentials, bool, error) {
	if r.fallback.AccountID == "" || !contains(sig.AccountIDs, r.fallback.AccountID) {
		return Credentials{}, false, nil
	}

	active, err := r.source.ActiveTenants(ctx)
	if err != nil {
		return Credentials{}, false, err
	}
	if len(active) != 1 {
		log.Warn().Int("active_tenants", len(active)).Msg("single-tenant fallback skipped")
		return Credentials{}, false, nil
	}

	t := active[0]
	creds, err := r.cache.Resolve(ctx, sig.Channel, t.Slug)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		creds = Credentials{TenantID: t.ID, TenantSlug: t.Slug, Channel: sig.Channel}
	default:
		return Credentials{}, false, err
	}
	if creds.AppSecret == "" {
		creds.AppSecret = r.fallback.AppSecrets[sig.Channel]
	}
	if creds.AccountID == "" {
		creds.AccountID = r.fallback.AccountID
	}
	return creds, true, nil
}

func contains(ids []string, want string) bool {
	for _, id := range ids {
		if id == want {
			return true
		}
	}
	return false
}
