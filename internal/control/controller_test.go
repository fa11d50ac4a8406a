package control

import (
	"context"
	"testing"
	"time"

	"github.com/nsvirk/tickcollector/internal/decoder"
	"github.com/nsvirk/tickcollector/internal/partition"
	"github.com/nsvirk/tickcollector/internal/streampool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(t *testing.T, sessions int, stats StatsProvider) *Controller {
	t.Helper()
	pool := streampool.New(sessions, "ws://example.invalid", 10, time.Second, func(decoder.Event) {}, func(error) {})
	partitioner := partition.New(sessions, 0)
	return New("BTC", pool, partitioner, stats)
}

func TestStatusReflectsIdlePool(t *testing.T) {
	c := newTestController(t, 2, nil)
	status := c.Status()

	assert.Equal(t, "BTC", status.Currency)
	assert.Len(t, status.Sessions, 2)
	assert.False(t, status.Connected)
	assert.Equal(t, 0, status.InstrumentsCount)
}

func TestHealthHealthyWhenNoSessionBroken(t *testing.T) {
	c := newTestController(t, 1, func() Stats { return Stats{LastWriteAt: time.Now()} })
	health := c.Health()
	assert.Equal(t, "healthy", health.Status)
}

func TestHealthDegradedWhenWriterStale(t *testing.T) {
	c := newTestController(t, 1, func() Stats { return Stats{LastWriteAt: time.Now().Add(-2 * time.Minute)} })
	health := c.Health()
	assert.Equal(t, "degraded", health.Status)
}

func TestHealthHealthyWithNoStatsProvider(t *testing.T) {
	c := newTestController(t, 1, nil)
	health := c.Health()
	assert.Equal(t, "healthy", health.Status)
}

func TestStopAcceptingRejectsSubscribe(t *testing.T) {
	c := newTestController(t, 2, nil)
	c.StopAccepting()

	result := c.Subscribe(context.Background(), []string{"BTC-PERPETUAL"})
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "BTC-PERPETUAL", result.Failed[0].Name)
	assert.Empty(t, result.Subscribed)
}

func TestStopAcceptingRejectsUnsubscribe(t *testing.T) {
	c := newTestController(t, 2, nil)
	c.StopAccepting()

	result := c.Unsubscribe(context.Background(), []string{"BTC-PERPETUAL"})
	require.Len(t, result.Failed, 1)
}

func TestWhichIsStableAndDelegatesToPartitioner(t *testing.T) {
	c := newTestController(t, 4, nil)
	first := c.Which("BTC-31DEC26-100000-C")
	second := c.Which("BTC-31DEC26-100000-C")
	assert.Equal(t, first, second)
}

// Subscribe/Unsubscribe/ApplyMoves route through live session command
// channels that only drain once Pool.Start has launched the session run
// loops. Using an already-cancelled context exercises the routing and
// aggregation logic deterministically without a live websocket connection:
// sendCommand observes ctx.Done() immediately and reports every instrument
// as failed, which is exactly what a dead pool should look like.
func TestSubscribeWithCancelledContextReportsFailureWithoutHanging(t *testing.T) {
	c := newTestController(t, 2, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan SubscribeResult, 1)
	go func() { done <- c.Subscribe(ctx, []string{"BTC-PERPETUAL", "ETH-PERPETUAL"}) }()

	select {
	case result := <-done:
		assert.Len(t, result.Failed, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe should not hang when the pool has no running sessions and ctx is already cancelled")
	}
}

func TestApplyMovesWithCancelledContextReportsFailures(t *testing.T) {
	c := newTestController(t, 2, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	moves := []partition.Move{
		{Session: 0, Subscribe: false, Instrument: "BTC-PERPETUAL"},
		{Session: 1, Subscribe: true, Instrument: "BTC-PERPETUAL"},
	}

	done := make(chan []FailedInstrument, 1)
	go func() { done <- c.ApplyMoves(ctx, moves) }()

	select {
	case failed := <-done:
		assert.Len(t, failed, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("ApplyMoves should not hang against a dead pool with an already-cancelled context")
	}
}
