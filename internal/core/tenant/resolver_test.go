package tenant

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/channel"
)

type fakeSource struct {
	slugs    map[string]Credentials
	accounts map[string]Credentials
	active   []ActiveTenant
	failWith error
	gate     chan struct{}

	slugCalls    atomic.Int32
	accountCalls atomic.Int32
}

func (f *fakeSource) BySlug(ctx context.Context, ch channel.Channel, slug string) (Credentials, error) {
	f.slugCalls.Add(1)
	if f.failWith != nil {
		return Credentials{}, f.failWith
	}
	c, ok := f.slugs[slug]
	if !ok {
		return Credentials{}, ErrNotFound
	}
	return c, nil
}

func (f *fakeSource) ByAccount(ctx context.Context, ch channel.Channel, accountID string) (Credentials, error) {
	f.accountCalls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	c, ok := f.accounts[accountID]
	if !ok {
		return Credentials{}, ErrNotFound
	}
	return c, nil
}

func (f *fakeSource) ActiveTenants(ctx context.Context) ([]ActiveTenant, error) {
	return f.active, nil
}

func newResolver(src *fakeSource, fb FallbackConfig) *Resolver {
	return NewResolver(NewCache(src, time.Minute, 0), src, fb)
}

func TestResolvePriorityOrder(t *testing.T) {
	src := &fakeSource{
		slugs:    map[string]Credentials{"acme": {TenantID: "t-acme", AppSecret: "s1"}},
		accounts: map[string]Credentials{"PN1": {TenantID: "t-pn", AppSecret: "s2"}},
	}
	r := newResolver(src, FallbackConfig{})
	ctx := context.Background()

	creds, method, err := r.Resolve(ctx, Signals{Channel: channel.WhatsApp, Slug: "acme", AccountIDs: []string{"PN1"}})
	require.NoError(t, err)
	assert.Equal(t, BySlug, method)
	assert.Equal(t, "t-acme", creds.TenantID)

	creds, method, err = r.Resolve(ctx, Signals{Channel: channel.WhatsApp, Slug: "unknown", AccountIDs: []string{"", "PN1"}})
	require.NoError(t, err)
	assert.Equal(t, ByAccount, method)
	assert.Equal(t, "t-pn", creds.TenantID)

	_, _, err = r.Resolve(ctx, Signals{Channel: channel.WhatsApp, AccountIDs: []string{"nope"}})
	assert.ErrorIs(t, err, ErrUnresolved)
}

func TestResolveSingleTenantFallback(t *testing.T) {
	src := &fakeSource{
		slugs:  map[string]Credentials{},
		active: []ActiveTenant{{ID: "t-only", Slug: "only"}},
	}
	fb := FallbackConfig{AccountID: "IG-ENV", AppSecrets: map[channel.Channel]string{channel.Instagram: "env-secret"}}
	r := newResolver(src, fb)

	creds, method, err := r.Resolve(context.Background(), Signals{Channel: channel.Instagram, AccountIDs: []string{"IG-ENV"}})
	require.NoError(t, err)
	assert.Equal(t, BySingleTenant, method)
	assert.Equal(t, "t-only", creds.TenantID)
	assert.Equal(t, "env-secret", creds.AppSecret)

	// account id does not match the configured one
	_, _, err = r.Resolve(context.Background(), Signals{Channel: channel.Instagram, AccountIDs: []string{"IG-OTHER"}})
	assert.ErrorIs(t, err, ErrUnresolved)
}

func TestResolveSingleTenantFallbackNeedsExactlyOneTenant(t *testing.T) {
	src := &fakeSource{active: []ActiveTenant{{ID: "a", Slug: "a"}, {ID: "b", Slug: "b"}}}
	r := newResolver(src, FallbackConfig{AccountID: "IG-ENV"})

	_, _, err := r.Resolve(context.Background(), Signals{Channel: channel.Instagram, AccountIDs: []string{"IG-ENV"}})
	assert.ErrorIs(t, err, ErrUnresolved)
}

func TestResolveSurfacesStorageErrors(t *testing.T) {
	boom := errors.New("db down")
	src := &fakeSource{failWith: boom}
	r := newResolver(src, FallbackConfig{})

	_, _, err := r.Resolve(context.Background(), Signals{Channel: channel.WhatsApp, Slug: "acme"})
	assert.ErrorIs(t, err, boom)
}

func TestCacheTTL(t *testing.T) {
	src := &fakeSource{slugs: map[string]Credentials{"acme": {TenantID: "t1"}}}
	c := NewCache(src, 50*time.Millisecond, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.Resolve(ctx, channel.WhatsApp, "acme")
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, src.slugCalls.Load())

	time.Sleep(120 * time.Millisecond)
	_, err := c.Resolve(ctx, channel.WhatsApp, "acme")
	require.NoError(t, err)
	assert.EqualValues(t, 2, src.slugCalls.Load())
}

func TestCacheIsBounded(t *testing.T) {
	src := &fakeSource{accounts: map[string]Credentials{
		"PN1": {TenantID: "t1"}, "PN2": {TenantID: "t2"}, "PN3": {TenantID: "t3"},
	}}
	c := NewCache(src, time.Minute, 2)
	ctx := context.Background()

	for _, id := range []string{"PN1", "PN2", "PN3"} {
		_, err := c.ResolveAccount(ctx, channel.WhatsApp, id)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Len())

	// PN1 was evicted as least recently used
	_, err := c.ResolveAccount(ctx, channel.WhatsApp, "PN1")
	require.NoError(t, err)
	assert.EqualValues(t, 4, src.accountCalls.Load())
}

func TestCacheCollapsesConcurrentMisses(t *testing.T) {
	src := &fakeSource{
		accounts: map[string]Credentials{"PN": {TenantID: "t"}},
		gate:     make(chan struct{}),
	}
	c := NewCache(src, time.Minute, 0)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			creds, err := c.ResolveAccount(context.Background(), channel.WhatsApp, "PN")
			assert.NoError(t, err)
			assert.Equal(t, "t", creds.TenantID)
		}()
	}
	require.Eventually(t, func() bool { return src.accountCalls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	assert.EqualValues(t, 1, src.accountCalls.Load())
}

func TestCacheDoesNotStoreMisses(t *testing.T) {
	src := &fakeSource{slugs: map[string]Credentials{}}
	c := NewCache(src, time.Minute, 0)

	for i := 0; i < 2; i++ {
		_, err := c.Resolve(context.Background(), channel.WhatsApp, "ghost")
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.EqualValues(t, 2, src.slugCalls.Load())
	assert.Zero(t, c.Len())
}

func TestCacheConcurrentReaders(t *testing.T) {
	src := &fakeSource{accounts: map[string]Credentials{"PN": {TenantID: "t"}}}
	c := NewCache(src, time.Minute, 0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			creds, err := c.ResolveAccount(context.Background(), channel.WhatsApp, "PN")
			assert.NoError(t, err)
			assert.Equal(t, "t", creds.TenantID)
		}()
	}
	wg.Wait()
}
