// Package control implements the in-process Control API: the surface the
// Lifecycle Manager uses to instruct the Connection Pool to mutate
// subscriptions, and that the status/health endpoints read from. It may
// additionally be exposed over HTTP (see handlers.go), but the Lifecycle
// Manager talks to it directly, in-process, per spec.
package control

import (
	"context"
	"time"

	"github.com/nsvirk/tickcollector/internal/partition"
	"github.com/nsvirk/tickcollector/internal/streampool"
)

// SubscribeResult mirrors the POST subscribe/unsubscribe response shape:
// which instruments were accepted and which failed with a reason.
// AlreadySubscribed is not populated: instruments that were already present
// on their session are reported under Subscribed.
type SubscribeResult struct {
	Subscribed        []string          `json:"subscribed"`
	AlreadySubscribed []string          `json:"already_subscribed"`
	Failed            []FailedInstrument `json:"failed"`
}

// FailedInstrument names one instrument that could not be (un)subscribed
// and why.
type FailedInstrument struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Status is the GET status response shape.
type Status struct {
	Currency         string    `json:"currency"`
	Sessions         []streampool.SessionStatus `json:"sessions"`
	InstrumentsCount int       `json:"instruments_count"`
	Instruments      []string  `json:"instruments"`
	Connected        bool      `json:"connected"`
	LastEventInstant time.Time `json:"last_event_instant"`
	Stats            Stats     `json:"stats"`
}

// Stats carries the buffer/writer counters the status endpoint surfaces.
type Stats struct {
	DroppedQuotes  uint64    `json:"dropped_quotes"`
	DroppedTrades  uint64    `json:"dropped_trades"`
	DroppedDepth   uint64    `json:"dropped_depth"`
	LastWriteAt    time.Time `json:"last_write_at"`
}

// Health is the GET health response shape.
type Health struct {
	Status    string    `json:"status"` // "healthy" | "degraded"
	Timestamp time.Time `json:"timestamp"`
}

// StatsProvider supplies the buffer/writer counters for the status
// endpoint without the control package needing to import either -- kept as
// a narrow function-typed seam, the same shape the teacher uses for its
// service-to-handler boundaries.
type StatsProvider func() Stats

// degradedAfter is how long a session may sit Broken, or a writer go
// without a successful flush, before health reports "degraded".
const degradedAfter = 60 * time.Second

// Controller wires the Subscription Partitioner's placement decisions to
// the Connection Pool's per-session subscribe/unsubscribe, and is the sole
// caller of pool mutation methods outside the pool's own reconnect
// rehydration.
type Controller struct {
	currency    string
	pool        *streampool.Pool
	partitioner *partition.Partitioner
	stats       StatsProvider
	accepting   bool
}

// New creates a Controller over pool and partitioner for the given
// currency label (surfaced in status responses).
func New(currency string, pool *streampool.Pool, partitioner *partition.Partitioner, stats StatsProvider) *Controller {
	return &Controller{currency: currency, pool: pool, partitioner: partitioner, stats: stats, accepting: true}
}

// StopAccepting refuses new subscribe/unsubscribe requests -- phase 1 of
// the two-phase shutdown: the control API refuses new requests while
// sessions are still draining in-flight work.
func (c *Controller) StopAccepting() { c.accepting = false }

// Subscribe assigns each instrument a target session via the partitioner
// and routes the subscribe to that session, aggregating results across
// however many sessions the batch spans.
func (c *Controller) Subscribe(ctx context.Context, instruments []string) SubscribeResult {
	if !c.accepting {
		return rejectAll(instruments, "control API is shutting down, not accepting new requests")
	}

	bySession := make(map[int][]string)
	for _, name := range instruments {
		s := c.partitioner.Which(name)
		bySession[s] = append(bySession[s], name)
	}

	var result SubscribeResult
	for session, names := range bySession {
		accepted, rejected, err := c.pool.Subscribe(ctx, session, names)
		result.Subscribed = append(result.Subscribed, accepted...)
		if err != nil {
			for _, r := range failedNames(names, rejected) {
				result.Failed = append(result.Failed, FailedInstrument{Name: r, Reason: err.Error()})
			}
		}
	}
	return result
}

// Unsubscribe routes an unsubscribe to the session the partitioner
// currently has the instrument assigned to, then forgets the assignment so
// a later re-listing gets a fresh placement.
func (c *Controller) Unsubscribe(ctx context.Context, instruments []string) SubscribeResult {
	if !c.accepting {
		return rejectAll(instruments, "control API is shutting down, not accepting new requests")
	}

	bySession := make(map[int][]string)
	for _, name := range instruments {
		s := c.partitioner.Which(name)
		bySession[s] = append(bySession[s], name)
	}

	var result SubscribeResult
	for session, names := range bySession {
		accepted, rejected, err := c.pool.Unsubscribe(ctx, session, names)
		result.Subscribed = append(result.Subscribed, accepted...)
		if err != nil {
			for _, r := range failedNames(names, rejected) {
				result.Failed = append(result.Failed, FailedInstrument{Name: r, Reason: err.Error()})
			}
		}
	}
	for _, name := range instruments {
		c.partitioner.Forget(name)
	}
	return result
}

// ApplyMoves executes a partitioner rebalance diff in order: always
// unsubscribe-old before subscribe-new, never the reverse, so interim
// state never exceeds a session's cap.
func (c *Controller) ApplyMoves(ctx context.Context, moves []partition.Move) []FailedInstrument {
	var failed []FailedInstrument
	for _, m := range moves {
		var err error
		if m.Subscribe {
			_, _, e := c.pool.Subscribe(ctx, m.Session, []string{m.Instrument})
			err = e
		} else {
			_, _, e := c.pool.Unsubscribe(ctx, m.Session, []string{m.Instrument})
			err = e
		}
		if err != nil {
			failed = append(failed, FailedInstrument{Name: m.Instrument, Reason: err.Error()})
		}
	}
	return failed
}

// failedNames reports which of the requested names failed given the
// session's rejected list. A capacity breach rejects a precise subset while
// still accepting the rest; any other failure (ctx cancellation, a dead
// session) leaves rejected empty even though nothing was accepted, so the
// whole requested batch is treated as failed in that case.
func failedNames(requested, rejected []string) []string {
	if len(rejected) > 0 {
		return rejected
	}
	return requested
}

// Which exposes the partitioner's current assignment for name, letting the
// Lifecycle Manager route an expiry unsubscribe to the right session.
func (c *Controller) Which(name string) int { return c.partitioner.Which(name) }

// Status returns the current pool/session snapshot in the GET status
// shape.
func (c *Controller) Status() Status {
	sessions := c.pool.SessionState()

	var instruments []string
	var lastEvent time.Time
	connected := false
	for _, s := range sessions {
		instruments = append(instruments, s.InstrumentsList()...)
		if s.LastEventInstant.After(lastEvent) {
			lastEvent = s.LastEventInstant
		}
		if s.State == "connected" {
			connected = true
		}
	}

	var stats Stats
	if c.stats != nil {
		stats = c.stats()
	}

	return Status{
		Currency:         c.currency,
		Sessions:         sessions,
		InstrumentsCount: len(instruments),
		Instruments:      instruments,
		Connected:        connected,
		LastEventInstant: lastEvent,
		Stats:            stats,
	}
}

// Health reports "degraded" when any session has been Broken for longer
// than degradedAfter, or the writer's last successful write is older than
// degradedAfter -- the exact thresholds in spec §7.
func (c *Controller) Health() Health {
	now := time.Now()
	status := "healthy"

	if c.pool.AnyBrokenLongerThan(degradedAfter) {
		status = "degraded"
	}
	if c.stats != nil {
		if last := c.stats().LastWriteAt; !last.IsZero() && now.Sub(last) > degradedAfter {
			status = "degraded"
		}
	}

	return Health{Status: status, Timestamp: now}
}

func rejectAll(instruments []string, reason string) SubscribeResult {
	var result SubscribeResult
	for _, name := range instruments {
		result.Failed = append(result.Failed, FailedInstrument{Name: name, Reason: reason})
	}
	return result
}
