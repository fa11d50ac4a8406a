package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/nsvirk/tickcollector/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestCacheWithNilClientAlwaysMisses(t *testing.T) {
	c := NewCache(nil, time.Minute)

	_, ok := c.Get(context.Background(), "BTC", models.KindOption)
	assert.False(t, ok)

	c.Set(context.Background(), "BTC", models.KindOption, []InstrumentDescriptor{{Name: "BTC-PERPETUAL"}})
	_, ok = c.Get(context.Background(), "BTC", models.KindOption)
	assert.False(t, ok, "Set against a nil-client cache must stay a no-op")
}

func TestCacheKeyIsScopedByCurrencyAndKind(t *testing.T) {
	assert.Equal(t, "catalog:active:BTC:option", cacheKey("BTC", models.KindOption))
	assert.Equal(t, "catalog:active:BTC:perpetual", cacheKey("BTC", models.KindPerpetual))
	assert.NotEqual(t, cacheKey("BTC", models.KindOption), cacheKey("ETH", models.KindOption))
}
