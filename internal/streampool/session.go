// Package streampool implements the Connection Pool: a fixed set of N
// streaming sessions to the exchange, each a state machine that owns its
// subscription set exclusively and recovers via subscription re-hydration
// on reconnect.
package streampool

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nsvirk/tickcollector/internal/decoder"
	"github.com/nsvirk/tickcollector/internal/errs"
	"github.com/nsvirk/tickcollector/pkg/utils/zaplogger"
)

// State is one of the per-session state machine's values.
type State int

const (
	Idle State = iota
	Connecting
	Connected
	Draining
	Broken
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Draining:
		return "draining"
	case Broken:
		return "broken"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const (
	backoffBase  = time.Second
	backoffMult  = 2
	backoffCap   = 60 * time.Second
	backoffJitter = 0.20
)

// command is a queued mutation the session task drains between reads,
// never touched by any other goroutine once enqueued.
type command struct {
	subscribe   bool
	instruments []string
	reply       chan commandResult
}

type commandResult struct {
	accepted []string
	rejected []string
}

// channel names the unit of subscription accounting: an (instrument,
// stream kind) pair.
type channel struct {
	instrument string
	kind       string // "quote" | "trades" | "book"
}

func (c channel) name() string {
	return fmt.Sprintf("%s.%s.%s", c.kind, c.instrument, "100ms")
}

// Session owns one streaming connection and its subscription set.
// Everything under subscriptions is touched only by the run loop goroutine;
// outside callers interact exclusively through control.
type Session struct {
	ID       string
	wsURL    string
	cap      int
	control  chan command

	mu           sync.RWMutex
	state        State
	brokenSince  time.Time
	subscriptions map[channel]struct{}
	lastEvent    time.Time

	sink    func(decoder.Event)
	errSink func(error)

	heartbeatInterval time.Duration
	log               *zaplogger.Scoped
}

// NewSession creates a Session bound to wsURL with the given per-session
// channel cap. sink receives every decoded event; errSink receives decode
// errors (counted, never fatal).
func NewSession(id, wsURL string, cap int, heartbeatInterval time.Duration, sink func(decoder.Event), errSink func(error)) *Session {
	return &Session{
		ID:                id,
		wsURL:             wsURL,
		cap:               cap,
		control:           make(chan command, 64),
		state:             Idle,
		subscriptions:     make(map[channel]struct{}),
		sink:              sink,
		errSink:           errSink,
		heartbeatInterval: heartbeatInterval,
		log:               zaplogger.With(zaplogger.Fields{"session": id}),
	}
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// setState transitions the session's state, tracking when it last entered
// Broken -- the health endpoint gates degradation on this duration, not
// merely on Broken being the current state, per spec §7.
func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	if st == Broken {
		if s.brokenSince.IsZero() {
			s.brokenSince = time.Now()
		}
	} else {
		s.brokenSince = time.Time{}
	}
	s.mu.Unlock()
}

// BrokenDuration reports how long the session has continuously been in the
// Broken state, or zero if it is not currently Broken.
func (s *Session) BrokenDuration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != Broken || s.brokenSince.IsZero() {
		return 0
	}
	return time.Since(s.brokenSince)
}

// Instruments returns the instruments currently in the session's intended
// subscription set (deduplicated across the quote/trades channel pair).
func (s *Session) Instruments() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	for ch := range s.subscriptions {
		if _, ok := seen[ch.instrument]; !ok {
			seen[ch.instrument] = struct{}{}
			out = append(out, ch.instrument)
		}
	}
	return out
}

// ChannelCount returns the number of (instrument, kind) channels currently
// held, the unit the per-session cap is enforced against.
func (s *Session) ChannelCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscriptions)
}

// LastEventInstant returns the time of the last frame received.
func (s *Session) LastEventInstant() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastEvent
}

// Subscribe requests channels for instruments (both quote and trades
// kinds). Idempotent: already-subscribed instruments are silently
// skipped. Returns errs.ErrCapacityExceeded if the full request would
// breach the cap -- in which case as many as fit are still accepted.
func (s *Session) Subscribe(ctx context.Context, instruments []string) (accepted, rejected []string, err error) {
	return s.sendCommand(ctx, command{subscribe: true, instruments: instruments})
}

// Unsubscribe requests removal of channels for instruments. Idempotent:
// non-present instruments are silently skipped.
func (s *Session) Unsubscribe(ctx context.Context, instruments []string) (accepted, rejected []string, err error) {
	return s.sendCommand(ctx, command{subscribe: false, instruments: instruments})
}

func (s *Session) sendCommand(ctx context.Context, cmd command) ([]string, []string, error) {
	cmd.reply = make(chan commandResult, 1)
	select {
	case s.control <- cmd:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}

	select {
	case res := <-cmd.reply:
		var err error
		if len(res.rejected) > 0 {
			err = errs.ErrCapacityExceeded
		}
		return res.accepted, res.rejected, err
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

// Run drives the session's full lifecycle until ctx is cancelled:
// Idle -> Connecting -> Connected -> {Draining|Broken} -> Connecting, with
// exponential backoff (base 1s, x2, cap 60s, +/-20% jitter) between
// reconnects. Retries are unbounded; only ctx cancellation stops the loop.
func (s *Session) Run(ctx context.Context) {
	defer s.setState(Stopped)
	backoff := backoffBase
	for {
		select {
		case <-ctx.Done():
			s.setState(Stopped)
			return
		default:
		}

		s.setState(Connecting)
		conn, err := s.connect(ctx)
		if err != nil {
			s.log.Warn("session connect failed", zaplogger.Fields{"error": err.Error()})
			if !s.sleepBackoff(ctx, &backoff) {
				return
			}
			continue
		}

		backoff = backoffBase
		s.setState(Connected)
		s.rehydrate(ctx, conn)
		s.log.Info("session connected")

		reason := s.readLoop(ctx, conn)
		_ = conn.Close()

		select {
		case <-ctx.Done():
			s.setState(Draining)
			return
		default:
		}

		s.log.Warn("session broken", zaplogger.Fields{"reason": reason})
		s.setState(Broken)
		if !s.sleepBackoff(ctx, &backoff) {
			return
		}
	}
}

func (s *Session) sleepBackoff(ctx context.Context, backoff *time.Duration) bool {
	jittered := applyJitter(*backoff)
	select {
	case <-time.After(jittered):
	case <-ctx.Done():
		return false
	}
	*backoff *= backoffMult
	if *backoff > backoffCap {
		*backoff = backoffCap
	}
	return true
}

func applyJitter(d time.Duration) time.Duration {
	delta := float64(d) * backoffJitter
	offset := (rand.Float64()*2 - 1) * delta
	return time.Duration(float64(d) + offset)
}

func (s *Session) connect(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	u, err := url.Parse(s.wsURL)
	if err != nil {
		return nil, errs.NewPermanent("streampool.connect", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.DialContext(dialCtx, u.String(), nil)
	if err != nil {
		return nil, errs.NewTransient("streampool.connect", err)
	}
	return conn, nil
}

// rehydrate re-issues subscribes for the session's full intended
// instrument set -- the canonical recovery mechanism, not a per-message
// replay.
func (s *Session) rehydrate(ctx context.Context, conn *websocket.Conn) {
	s.mu.RLock()
	channels := make([]channel, 0, len(s.subscriptions))
	for ch := range s.subscriptions {
		channels = append(channels, ch)
	}
	s.mu.RUnlock()

	if len(channels) == 0 {
		return
	}
	names := make([]string, len(channels))
	for i, ch := range channels {
		names[i] = ch.name()
	}
	if err := writeSubscribeFrame(conn, names); err != nil {
		s.log.Error("rehydrate subscribe failed", zaplogger.Fields{"error": err.Error()})
	}
}

// readLoop drains both the websocket connection and the control channel
// until the connection breaks or ctx is cancelled, returning a reason
// string for the break.
func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn) string {
	frames := make(chan []byte, 256)
	errCh := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			frames <- data
		}
	}()

	heartbeatTimeout := 2 * s.heartbeatInterval
	timer := time.NewTimer(heartbeatTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return "shutdown"

		case err := <-errCh:
			return err.Error()

		case <-timer.C:
			return "heartbeat timeout"

		case frame := <-frames:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(heartbeatTimeout)
			s.mu.Lock()
			s.lastEvent = time.Now()
			s.mu.Unlock()
			s.handleFrame(frame)

		case cmd := <-s.control:
			s.applyCommand(conn, cmd)
		}
	}
}

func (s *Session) handleFrame(frame []byte) {
	if looksLikeCapacityError(frame) {
		s.mu.Lock()
		if s.cap > 1 {
			s.cap = s.cap / 2
		}
		s.mu.Unlock()
		s.log.Warn("capacity breach frame observed, halving cap estimate", zaplogger.Fields{"new_cap": s.cap})
		return
	}

	events, errs := decoder.DecodeBatch(frame)
	for _, e := range errs {
		s.errSink(e)
	}
	for _, ev := range events {
		if ev.Kind != decoder.EventNone {
			s.sink(ev)
		}
	}
}

func looksLikeCapacityError(frame []byte) bool {
	var probe struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(frame, &probe); err != nil {
		return false
	}
	return probe.Type == "error" && strings.Contains(strings.ToLower(probe.Text), "subscription")
}

// applyCommand executes one queued subscribe/unsubscribe, enforcing the
// per-session cap against the (instrument, channel_kind) accounting unit.
func (s *Session) applyCommand(conn *websocket.Conn, cmd command) {
	s.mu.Lock()
	var accepted, rejected []string
	var toSend []string

	for _, instr := range cmd.instruments {
		channels := []channel{{instrument: instr, kind: "quote"}, {instrument: instr, kind: "trades"}}

		if cmd.subscribe {
			already := true
			for _, ch := range channels {
				if _, ok := s.subscriptions[ch]; !ok {
					already = false
				}
			}
			if already {
				accepted = append(accepted, instr)
				continue
			}
			if len(s.subscriptions)+len(channels) > s.cap {
				rejected = append(rejected, instr)
				continue
			}
			for _, ch := range channels {
				s.subscriptions[ch] = struct{}{}
				toSend = append(toSend, ch.name())
			}
			accepted = append(accepted, instr)
		} else {
			for _, ch := range channels {
				if _, ok := s.subscriptions[ch]; ok {
					delete(s.subscriptions, ch)
					toSend = append(toSend, ch.name())
				}
			}
			accepted = append(accepted, instr)
		}
	}
	s.mu.Unlock()

	if len(toSend) > 0 && conn != nil {
		var sendErr error
		if cmd.subscribe {
			sendErr = writeSubscribeFrame(conn, toSend)
		} else {
			sendErr = writeUnsubscribeFrame(conn, toSend)
		}
		if sendErr != nil {
			s.log.Error("failed to send subscription frame", zaplogger.Fields{"error": sendErr.Error()})
		}
	}

	cmd.reply <- commandResult{accepted: accepted, rejected: rejected}
}

func writeSubscribeFrame(conn *websocket.Conn, channels []string) error {
	return conn.WriteJSON(map[string]interface{}{"op": "subscribe", "channels": channels})
}

func writeUnsubscribeFrame(conn *websocket.Conn, channels []string) error {
	return conn.WriteJSON(map[string]interface{}{"op": "unsubscribe", "channels": channels})
}
