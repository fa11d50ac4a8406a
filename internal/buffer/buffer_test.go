package buffer

import (
	"testing"

	"github.com/nsvirk/tickcollector/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushAndDetachRoundTrips(t *testing.T) {
	b := New(10, 10)
	b.PushQuote(models.QuoteTick{Instrument: "BTC-PERPETUAL"})
	b.PushTrade(models.TradeTick{Instrument: "BTC-PERPETUAL", TradeID: "t1"})
	b.PushDepth(models.DepthSnapshot{Instrument: "BTC-PERPETUAL"})

	quotes, trades, depth := b.Detach()
	require.Len(t, quotes, 1)
	require.Len(t, trades, 1)
	require.Len(t, depth, 1)
	assert.Equal(t, "t1", trades[0].TradeID)

	quotes2, trades2, depth2 := b.Detach()
	assert.Empty(t, quotes2)
	assert.Empty(t, trades2)
	assert.Empty(t, depth2)
}

func TestRingDropsOldestOnOverflow(t *testing.T) {
	b := New(2, 10)
	b.PushQuote(models.QuoteTick{Instrument: "first"})
	b.PushQuote(models.QuoteTick{Instrument: "second"})
	b.PushQuote(models.QuoteTick{Instrument: "third"})

	quotes, _, _ := b.Detach()
	require.Len(t, quotes, 2)
	assert.Equal(t, "second", quotes[0].Instrument)
	assert.Equal(t, "third", quotes[1].Instrument)

	dropped, _, _ := b.DroppedCounts()
	assert.Equal(t, uint64(1), dropped)
}

func TestHighWaterMark(t *testing.T) {
	b := New(10, 10)
	assert.False(t, b.HighWaterMark())
	for i := 0; i < 8; i++ {
		b.PushQuote(models.QuoteTick{})
	}
	assert.True(t, b.HighWaterMark(), "80% fill should cross the 0.8 high-water fraction")
}

func TestDroppedCountsIndependentPerKind(t *testing.T) {
	b := New(1, 1)
	b.PushQuote(models.QuoteTick{Instrument: "a"})
	b.PushQuote(models.QuoteTick{Instrument: "b"})
	b.PushTrade(models.TradeTick{Instrument: "a"})

	dq, dt, dd := b.DroppedCounts()
	assert.Equal(t, uint64(1), dq)
	assert.Equal(t, uint64(0), dt)
	assert.Equal(t, uint64(0), dd)
}
