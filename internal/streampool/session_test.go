package streampool

import (
	"testing"
	"time"

	"github.com/nsvirk/tickcollector/internal/decoder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopSink(decoder.Event) {}
func noopErrSink(error)      {}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		Idle:       "idle",
		Connecting: "connecting",
		Connected:  "connected",
		Draining:   "draining",
		Broken:     "broken",
		Stopped:    "stopped",
	}
	for state, want := range cases {
		assert.Equal(t, want, state.String())
	}
}

func TestNewSessionStartsIdle(t *testing.T) {
	s := NewSession("session-0", "ws://example.invalid", 10, time.Second, noopSink, noopErrSink)
	assert.Equal(t, Idle, s.State())
	assert.Empty(t, s.Instruments())
	assert.Equal(t, 0, s.ChannelCount())
}

func TestBrokenDurationZeroUntilBroken(t *testing.T) {
	s := NewSession("session-0", "ws://example.invalid", 10, time.Second, noopSink, noopErrSink)
	assert.Equal(t, time.Duration(0), s.BrokenDuration())

	s.setState(Connected)
	assert.Equal(t, time.Duration(0), s.BrokenDuration())

	s.setState(Broken)
	assert.Greater(t, s.BrokenDuration(), time.Duration(0))

	s.setState(Connecting)
	assert.Equal(t, time.Duration(0), s.BrokenDuration(), "leaving Broken resets the clock")
}

func TestApplyCommandSubscribeTracksBothChannelsPerInstrument(t *testing.T) {
	s := NewSession("session-0", "ws://example.invalid", 10, time.Second, noopSink, noopErrSink)

	cmd := command{subscribe: true, instruments: []string{"BTC-PERPETUAL"}, reply: make(chan commandResult, 1)}
	s.applyCommand(nil, cmd)
	res := <-cmd.reply

	assert.Equal(t, []string{"BTC-PERPETUAL"}, res.accepted)
	assert.Empty(t, res.rejected)
	assert.Equal(t, 2, s.ChannelCount(), "quote + trades channels are both opened per instrument")
	assert.Equal(t, []string{"BTC-PERPETUAL"}, s.Instruments())
}

func TestApplyCommandSubscribeIsIdempotent(t *testing.T) {
	s := NewSession("session-0", "ws://example.invalid", 10, time.Second, noopSink, noopErrSink)

	first := command{subscribe: true, instruments: []string{"BTC-PERPETUAL"}, reply: make(chan commandResult, 1)}
	s.applyCommand(nil, first)
	<-first.reply

	second := command{subscribe: true, instruments: []string{"BTC-PERPETUAL"}, reply: make(chan commandResult, 1)}
	s.applyCommand(nil, second)
	res := <-second.reply

	assert.Equal(t, []string{"BTC-PERPETUAL"}, res.accepted)
	assert.Equal(t, 2, s.ChannelCount(), "a repeat subscribe must not double the channel count")
}

func TestApplyCommandSubscribeRejectsOverCap(t *testing.T) {
	s := NewSession("session-0", "ws://example.invalid", 2, time.Second, noopSink, noopErrSink)

	cmd := command{subscribe: true, instruments: []string{"BTC-PERPETUAL", "ETH-PERPETUAL"}, reply: make(chan commandResult, 1)}
	s.applyCommand(nil, cmd)
	res := <-cmd.reply

	require.Len(t, res.accepted, 1)
	require.Len(t, res.rejected, 1)
	assert.Equal(t, "BTC-PERPETUAL", res.accepted[0])
	assert.Equal(t, "ETH-PERPETUAL", res.rejected[0])
	assert.Equal(t, 2, s.ChannelCount(), "only the instrument that fit within cap should consume channels")
}

func TestApplyCommandUnsubscribeRemovesChannels(t *testing.T) {
	s := NewSession("session-0", "ws://example.invalid", 10, time.Second, noopSink, noopErrSink)

	sub := command{subscribe: true, instruments: []string{"BTC-PERPETUAL"}, reply: make(chan commandResult, 1)}
	s.applyCommand(nil, sub)
	<-sub.reply

	unsub := command{subscribe: false, instruments: []string{"BTC-PERPETUAL"}, reply: make(chan commandResult, 1)}
	s.applyCommand(nil, unsub)
	res := <-unsub.reply

	assert.Equal(t, []string{"BTC-PERPETUAL"}, res.accepted)
	assert.Equal(t, 0, s.ChannelCount())
	assert.Empty(t, s.Instruments())
}

func TestApplyCommandUnsubscribeNonPresentIsIdempotent(t *testing.T) {
	s := NewSession("session-0", "ws://example.invalid", 10, time.Second, noopSink, noopErrSink)

	unsub := command{subscribe: false, instruments: []string{"BTC-PERPETUAL"}, reply: make(chan commandResult, 1)}
	s.applyCommand(nil, unsub)
	res := <-unsub.reply

	assert.Equal(t, []string{"BTC-PERPETUAL"}, res.accepted)
	assert.Empty(t, res.rejected)
}

func TestLooksLikeCapacityError(t *testing.T) {
	assert.True(t, looksLikeCapacityError([]byte(`{"type":"error","text":"subscription limit exceeded"}`)))
	assert.False(t, looksLikeCapacityError([]byte(`{"type":"error","text":"unknown channel"}`)))
	assert.False(t, looksLikeCapacityError([]byte(`not json`)))
}

func TestApplyJitterStaysWithinBound(t *testing.T) {
	base := 10 * time.Second
	for i := 0; i < 50; i++ {
		jittered := applyJitter(base)
		assert.GreaterOrEqual(t, jittered, 8*time.Second)
		assert.LessOrEqual(t, jittered, 12*time.Second)
	}
}

func TestChannelName(t *testing.T) {
	ch := channel{instrument: "BTC-PERPETUAL", kind: "quote"}
	assert.Equal(t, "quote.BTC-PERPETUAL.100ms", ch.name())
}
