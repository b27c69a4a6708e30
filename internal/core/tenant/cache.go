package tenant

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/MuhamadAgungGumelar/micro-system-omnichannel-hub/internal/core/channel"
)

const DefaultCacheSize = 4096

// Cache memoizes successful credential lookups in a bounded LRU whose entries
// expire after ttl. Credential rotation tolerates that much staleness. Failed
// lookups are never cached, and concurrent misses on one key share a single
// source call.
type Cache struct {
	source  Source
	entries *expirable.LRU[string, Credentials]
	flights singleflight.Group
}

// NewCache wraps source with a TTL cache of at most size entries.
func NewCache(source Source, ttl time.Duration, size int) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &Cache{
		source:  source,
		entries: expirable.NewLRU[string, Credentials](size, nil, ttl),
	}
}

// Resolve maps a routing slug to the tenant credentials of a channel.
func (c *Cache) Resolve(ctx context.Context, ch channel.Channel, slug string) (Credentials, error) {
	return c.lookup("slug:"+string(ch)+":"+slug, func() (Credentials, error) {
		return c.source.BySlug(ctx, ch, slug)
	})
}

// ResolveAccount maps a provider account identifier to tenant credentials.
func (c *Cache) ResolveAccount(ctx context.Context, ch channel.Channel, accountID string) (Credentials, error) {
	return c.lookup("account:"+string(ch)+":"+accountID, func() (Credentials, error) {
		return c.source.ByAccount(ctx, ch, accountID)
	})
}

func (c *Cache) lookup(key string, load func() (Credentials, error)) (Credentials, error) {
	if creds, ok := c.entries.Get(key); ok {
		return creds, nil
	}

	v, err, _ := c.flights.Do(key, func() (interface{}, error) {
		// a flight that just finished may have filled the entry
		if creds, ok := c.entries.Get(key); ok {
			return creds, nil
		}
		creds, err := load()
		if err != nil {
			return nil, err
		}
		c.entries.Add(key, creds)
		return creds, nil
	})
	if err != nil {
		return Credentials{}, err
	}
	return v.(Credentials), nil
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return c.entries.Len()
}
