// Package buffer implements the Tick Buffer: three bounded, drop-oldest ring
// queues (quotes, trades, depth snapshots) that decouple decode latency from store-write
// latency. Pushes never block; on overflow the newest event is admitted
// and the oldest is dropped, trading loss of stale ticks for a decoder that
// never blocks on a slow writer.
package buffer

import (
	"sync"
	"time"

	"github.com/nsvirk/tickcollector/internal/models"
	"github.com/nsvirk/tickcollector/pkg/utils/zaplogger"
)

const warnRateLimit = 5 * time.Second

// ring is a fixed-capacity drop-oldest queue of T, guarded by mu.
type ring[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	dropped  uint64
	lastWarn time.Time
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{items: make([]T, 0, capacity), capacity: capacity}
}

func (r *ring[T]) push(item T, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.items) >= r.capacity {
		// Drop the oldest to admit the newest -- loss of very stale ticks
		// is preferred over blocking the decoder.
		r.items = r.items[1:]
		r.dropped++
		if time.Since(r.lastWarn) > warnRateLimit {
			zaplogger.Warn("tick buffer overflow, dropping oldest", zaplogger.Fields{
				"kind": kind, "dropped_total": r.dropped, "capacity": r.capacity,
			})
			r.lastWarn = time.Now()
		}
	}
	r.items = append(r.items, item)
}

// highWaterMark reports whether the queue has crossed the given fraction
// of capacity (e.g. 0.8 for 80%).
func (r *ring[T]) highWaterMark(frac float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return float64(len(r.items)) >= frac*float64(r.capacity)
}

// detach atomically removes and returns all current contents; the ring
// remains writable during the caller's drain of the returned slice.
func (r *ring[T]) detach() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return nil
	}
	out := r.items
	r.items = make([]T, 0, r.capacity)
	return out
}

func (r *ring[T]) droppedCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Buffer holds the per-kind ring queues for one currency's collector.
type Buffer struct {
	quotes *ring[models.QuoteTick]
	trades *ring[models.TradeTick]
	depth  *ring[models.DepthSnapshot]

	highWaterFrac float64
}

// New creates a Buffer with the configured quote and trade capacities; the
// depth queue uses tradeCapacity.
func New(quoteCapacity, tradeCapacity int) *Buffer {
	return &Buffer{
		quotes:        newRing[models.QuoteTick](quoteCapacity),
		trades:        newRing[models.TradeTick](tradeCapacity),
		depth:         newRing[models.DepthSnapshot](tradeCapacity),
		highWaterFrac: 0.8,
	}
}

// PushQuote admits a decoded quote.
func (b *Buffer) PushQuote(q models.QuoteTick) { b.quotes.push(q, "quote") }

// PushTrade admits a decoded trade.
func (b *Buffer) PushTrade(t models.TradeTick) { b.trades.push(t, "trade") }

// PushDepth admits a snapshot produced by the Depth Snapshotter -- it
// shares the buffer/flush machinery with the streamed kinds even though it
// is produced by polling, not decode.
func (b *Buffer) PushDepth(d models.DepthSnapshot) { b.depth.push(d, "depth") }

// HighWaterMark reports whether any queue has crossed the flush threshold.
func (b *Buffer) HighWaterMark() bool {
	return b.quotes.highWaterMark(b.highWaterFrac) ||
		b.trades.highWaterMark(b.highWaterFrac) ||
		b.depth.highWaterMark(b.highWaterFrac)
}

// Detach atomically drains all three queues for a flush.
func (b *Buffer) Detach() (quotes []models.QuoteTick, trades []models.TradeTick, depth []models.DepthSnapshot) {
	return b.quotes.detach(), b.trades.detach(), b.depth.detach()
}

// DroppedCounts reports the running drop counters, for the status endpoint.
func (b *Buffer) DroppedCounts() (quotes, trades, depth uint64) {
	return b.quotes.droppedCount(), b.trades.droppedCount(), b.depth.droppedCount()
}
