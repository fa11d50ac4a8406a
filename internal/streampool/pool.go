package streampool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nsvirk/tickcollector/internal/decoder"
)

// Pool owns a fixed set of N streaming Sessions and exposes the public
// contract the Subscription Partitioner and Control API wire against:
// start(), subscribe()/unsubscribe() routed to a specific session, and
// session_state() for status reporting.
type Pool struct {
	sessions []*Session
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a Pool of n sessions against wsURL, each capped at
// channelCap (instrument,kind) pairs. sink receives every decoded event
// from every session; errSink receives decode errors.
func New(n int, wsURL string, channelCap int, heartbeatInterval time.Duration, sink func(decoder.Event), errSink func(error)) *Pool {
	sessions := make([]*Session, n)
	for i := 0; i < n; i++ {
		sessions[i] = NewSession(fmt.Sprintf("session-%d", i), wsURL, channelCap, heartbeatInterval, sink, errSink)
	}
	return &Pool{sessions: sessions}
}

// Start launches every session's run loop. It returns immediately; sessions
// connect and reconnect in the background until Stop is called or ctx ends.
func (p *Pool) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	for _, s := range p.sessions {
		p.wg.Add(1)
		go func(s *Session) {
			defer p.wg.Done()
			s.Run(runCtx)
		}(s)
	}
}

// Stop cancels every session's run loop and waits up to the given deadline
// for them to reach Stopped.
func (p *Pool) Stop(deadline time.Duration) {
	if p.cancel == nil {
		return
	}
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(deadline):
	}
}

// Size returns the number of sessions in the pool.
func (p *Pool) Size() int { return len(p.sessions) }

// Subscribe routes a subscribe request to session index i.
func (p *Pool) Subscribe(ctx context.Context, i int, instruments []string) (accepted, rejected []string, err error) {
	if i < 0 || i >= len(p.sessions) {
		return nil, instruments, fmt.Errorf("streampool: session index %d out of range", i)
	}
	return p.sessions[i].Subscribe(ctx, instruments)
}

// Unsubscribe routes an unsubscribe request to session index i.
func (p *Pool) Unsubscribe(ctx context.Context, i int, instruments []string) (accepted, rejected []string, err error) {
	if i < 0 || i >= len(p.sessions) {
		return nil, instruments, fmt.Errorf("streampool: session index %d out of range", i)
	}
	return p.sessions[i].Unsubscribe(ctx, instruments)
}

// SessionStatus is a point-in-time snapshot of one session's health, the
// shape surfaced by the status endpoint.
type SessionStatus struct {
	ID               string    `json:"id"`
	State            string    `json:"state"`
	ChannelCount     int       `json:"channel_count"`
	InstrumentCount  int       `json:"instrument_count"`
	Instruments      []string  `json:"instruments"`
	LastEventInstant time.Time `json:"last_event_instant"`
}

// InstrumentsList returns the instruments reported in this snapshot.
func (s SessionStatus) InstrumentsList() []string { return s.Instruments }

// SessionState reports the current status of every session, the
// session_state() contract entry.
func (p *Pool) SessionState() []SessionStatus {
	out := make([]SessionStatus, len(p.sessions))
	for i, s := range p.sessions {
		instruments := s.Instruments()
		out[i] = SessionStatus{
			ID:               s.ID,
			State:            s.State().String(),
			ChannelCount:     s.ChannelCount(),
			InstrumentCount:  len(instruments),
			Instruments:      instruments,
			LastEventInstant: s.LastEventInstant(),
		}
	}
	return out
}

// AnyBrokenLongerThan reports whether at least one session has been
// continuously in the Broken state for longer than d -- the health
// endpoint's degraded threshold is a duration, not merely "is Broken now",
// per spec §7 ("a session has been in Broken state for longer than 60s").
func (p *Pool) AnyBrokenLongerThan(d time.Duration) bool {
	for _, s := range p.sessions {
		if s.BrokenDuration() > d {
			return true
		}
	}
	return false
}
