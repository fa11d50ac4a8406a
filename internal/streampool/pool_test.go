package streampool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPoolCreatesNIdleSessions(t *testing.T) {
	p := New(3, "ws://example.invalid", 10, time.Second, noopSink, noopErrSink)
	require.Equal(t, 3, p.Size())

	for _, s := range p.SessionState() {
		assert.Equal(t, "idle", s.State)
		assert.Equal(t, 0, s.InstrumentCount)
		assert.Empty(t, s.Instruments)
	}
	assert.False(t, p.AnyBrokenLongerThan(0))
}

func TestAnyBrokenLongerThanGatesOnDuration(t *testing.T) {
	p := New(1, "ws://example.invalid", 10, time.Second, noopSink, noopErrSink)
	p.sessions[0].setState(Broken)

	assert.False(t, p.AnyBrokenLongerThan(time.Hour), "a session broken for a few microseconds should not trip an hour-long threshold")
	assert.True(t, p.AnyBrokenLongerThan(0), "any positive broken duration trips a zero threshold")
}

func TestSubscribeOutOfRangeSessionIndex(t *testing.T) {
	p := New(2, "ws://example.invalid", 10, time.Second, noopSink, noopErrSink)
	_, rejected, err := p.Subscribe(context.Background(), 5, []string{"BTC-PERPETUAL"})
	require.Error(t, err)
	assert.Equal(t, []string{"BTC-PERPETUAL"}, rejected)
}

func TestSessionStatusInstrumentsList(t *testing.T) {
	status := SessionStatus{Instruments: []string{"a", "b"}}
	assert.Equal(t, []string{"a", "b"}, status.InstrumentsList())
}

func TestStopWithoutStartIsNoop(t *testing.T) {
	p := New(1, "ws://example.invalid", 10, time.Second, noopSink, noopErrSink)
	p.Stop(time.Millisecond) // must not panic or block when Start was never called
}
