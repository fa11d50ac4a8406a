package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nsvirk/tickcollector/internal/models"
	"github.com/nsvirk/tickcollector/pkg/utils/zaplogger"
	"github.com/redis/go-redis/v9"
)

// Cache is a short-lived Redis-backed cache of one currency+kind's
// exchange_active universe, generalized from the teacher's Redis-as-cache
// usage (ticker_service.go's symbol-token lookups) into a TTL'd cache of
// list_active responses. A reconciliation cycle that touches the same
// currency+kind more than once within ttl (the cron-triggered
// ForceReconcile landing close behind the regular ticker, for example)
// reuses the last listing instead of re-hitting the exchange.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache creates a Cache over client with the given per-entry TTL. A nil
// client disables caching -- every Get reports a miss and every Set is a
// no-op -- so callers never need to nil-check before using a Cache.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(currency string, kind models.Kind) string {
	return fmt.Sprintf("catalog:active:%s:%s", currency, kind)
}

// Get returns the cached descriptor list for currency+kind, and whether it
// was found (a miss is any of: disabled cache, expired entry, Redis
// unreachable, or corrupt payload -- all treated the same, as "go fetch it
// fresh").
func (c *Cache) Get(ctx context.Context, currency string, kind models.Kind) ([]InstrumentDescriptor, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}

	raw, err := c.client.Get(ctx, cacheKey(currency, kind)).Bytes()
	if err != nil {
		return nil, false
	}

	var descriptors []InstrumentDescriptor
	if err := json.Unmarshal(raw, &descriptors); err != nil {
		zaplogger.Warn("catalog cache: corrupt entry, ignoring", zaplogger.Fields{
			"currency": currency, "kind": kind, "error": err.Error(),
		})
		return nil, false
	}
	return descriptors, true
}

// Set stores descriptors for currency+kind with the cache's TTL. Failures
// are logged and swallowed -- the cache is an optimization, never a
// dependency reconcileKind can fail on.
func (c *Cache) Set(ctx context.Context, currency string, kind models.Kind, descriptors []InstrumentDescriptor) {
	if c == nil || c.client == nil {
		return
	}

	raw, err := json.Marshal(descriptors)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(currency, kind), raw, c.ttl).Err(); err != nil {
		zaplogger.Warn("catalog cache: failed to store entry", zaplogger.Fields{
			"currency": currency, "kind": kind, "error": err.Error(),
		})
	}
}
