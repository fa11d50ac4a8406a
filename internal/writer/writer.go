// Package writer implements the Batch Writer: idempotent persistence of
// detached buffer batches with the documented retry/DLQ policy. Rows of a
// batch are upserted individually, not inside one transaction, so rows
// written before a failure stay committed. Within one batch rows may land
// in any order; only submission order is preserved across batches.
package writer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nsvirk/tickcollector/internal/buffer"
	"github.com/nsvirk/tickcollector/internal/errs"
	"github.com/nsvirk/tickcollector/internal/models"
	"github.com/nsvirk/tickcollector/internal/repository"
	"github.com/nsvirk/tickcollector/pkg/utils/zaplogger"
)

// KindResolver answers which table family (option vs perpetual) an
// instrument belongs to, so the writer can route a detached batch without
// re-querying the store on every flush.
type KindResolver func(instrument string) models.Kind

const (
	backoffBase = time.Second
)

// Writer drains a Buffer on a flush cadence and commits batches to the
// store, retrying transient failures and dead-lettering permanent ones.
type Writer struct {
	buf      *buffer.Buffer
	tickRepo *repository.TickRepository
	dlq      *repository.DeadLetterRepository
	kindOf   KindResolver
	retryMax int

	onFlush func(kinds []string) // notified after each non-empty successful flush

	lastSuccess time.Time
}

// New creates a Writer over buf, persisting through tickRepo, with up to
// retryMax transient retries per batch.
func New(buf *buffer.Buffer, tickRepo *repository.TickRepository, dlq *repository.DeadLetterRepository, kindOf KindResolver, retryMax int) *Writer {
	return &Writer{buf: buf, tickRepo: tickRepo, dlq: dlq, kindOf: kindOf, retryMax: retryMax, lastSuccess: time.Now()}
}

// OnFlush registers a callback invoked after every flush that wrote at
// least one row, naming the tick kinds ("quote", "trade", "depth") that
// had a successful commit -- used to fan out a per-kind Redis notification.
func (w *Writer) OnFlush(fn func(kinds []string)) { w.onFlush = fn }

// LastSuccess returns the time of the writer's last successful flush, used
// by the health endpoint's degraded-after-60s rule.
func (w *Writer) LastSuccess() time.Time { return w.lastSuccess }

// Run drives the flush loop: every flushInterval, or whenever the buffer
// crosses its high-water mark (checked every 100ms), flush once.
func (w *Writer) Run(ctx context.Context, flushInterval time.Duration) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	hwm := time.NewTicker(100 * time.Millisecond)
	defer hwm.Stop()

	for {
		select {
		case <-ctx.Done():
			w.drainOnShutdown()
			return
		case <-ticker.C:
			w.Flush(ctx)
		case <-hwm.C:
			if w.buf.HighWaterMark() {
				w.Flush(ctx)
			}
		}
	}
}

// Flush detaches the buffer's current contents and commits them, grouped
// by table family, with retry/backoff and DLQ handling.
func (w *Writer) Flush(ctx context.Context) {
	quotes, trades, depth := w.buf.Detach()
	if len(quotes) == 0 && len(trades) == 0 && len(depth) == 0 {
		return
	}

	byKindQuotes := groupBy(quotes, func(q models.QuoteTick) string { return q.Instrument }, w.kindOf)
	byKindTrades := groupBy(trades, func(t models.TradeTick) string { return t.Instrument }, w.kindOf)
	byKindDepth := groupBy(depth, func(d models.DepthSnapshot) string { return d.Instrument }, w.kindOf)

	var wroteKinds []string
	for kind, rows := range byKindQuotes {
		if w.commitQuotes(ctx, kind, rows) {
			wroteKinds = append(wroteKinds, "quote")
		}
	}
	for kind, rows := range byKindTrades {
		if w.commitTrades(ctx, kind, rows) {
			wroteKinds = append(wroteKinds, "trade")
		}
	}
	for kind, rows := range byKindDepth {
		if w.commitDepth(ctx, kind, rows) {
			wroteKinds = append(wroteKinds, "depth")
		}
	}

	if len(wroteKinds) > 0 {
		w.lastSuccess = time.Now()
		if w.onFlush != nil {
			w.onFlush(wroteKinds)
		}
	}
}

func (w *Writer) commitQuotes(ctx context.Context, kind models.Kind, rows []models.QuoteTick) bool {
	valid := rows[:0:0]
	for _, r := range rows {
		if !r.Valid() {
			w.deadLetter("quote", "invalid bid/ask ordering", r)
			continue
		}
		valid = append(valid, r)
	}
	return commitRows(ctx, w, "quote", valid, func(batch []models.QuoteTick) ([]repository.RowFailure, error) {
		return w.tickRepo.UpsertQuotes(kind, batch)
	})
}

func (w *Writer) commitTrades(ctx context.Context, kind models.Kind, rows []models.TradeTick) bool {
	valid := rows[:0:0]
	for _, r := range rows {
		if !r.Valid() {
			w.deadLetter("trade", "price/size/side invariant violated", r)
			continue
		}
		valid = append(valid, r)
	}
	return commitRows(ctx, w, "trade", valid, func(batch []models.TradeTick) ([]repository.RowFailure, error) {
		return w.tickRepo.UpsertTrades(kind, batch)
	})
}

func (w *Writer) commitDepth(ctx context.Context, kind models.Kind, rows []models.DepthSnapshot) bool {
	return commitRows(ctx, w, "depth", rows, func(batch []models.DepthSnapshot) ([]repository.RowFailure, error) {
		return w.tickRepo.UpsertDepth(kind, batch)
	})
}

// commitRows applies the documented retry/DLQ policy (spec §4.6) to a
// single kind's batch: a PermanentError names the exact offending row,
// which is dead-lettered on its own while the rest of the batch keeps
// going; a TransientError retries the remaining batch -- safe to resend in
// full since every write is an idempotent upsert -- up to retryMax times
// with exponential backoff (1s, 2s, 4s, ...) before what's left is
// dead-lettered wholesale.
func commitRows[T any](ctx context.Context, w *Writer, kind string, rows []T, write func([]T) ([]repository.RowFailure, error)) bool {
	if len(rows) == 0 {
		return false
	}

	current := rows
	backoff := backoffBase

	for attempt := 0; attempt <= w.retryMax; attempt++ {
		failures, err := write(current)
		for _, f := range failures {
			w.deadLetter(kind, f.Err.Error(), current[f.Index])
		}
		if err == nil {
			return len(current)-len(failures) > 0
		}

		current = dropFailed(current, failures)
		if !errs.IsTransient(err) {
			// Defensive: the repository only ever returns a non-nil error
			// when it is transient, but never silently swallow an
			// unclassified one.
			w.deadLetterBatch(kind, err.Error(), current)
			return false
		}

		if attempt == w.retryMax {
			if len(current) > 0 {
				w.deadLetterBatch(kind, err.Error(), current)
			}
			return false
		}

		zaplogger.Warn("batch write failed, retrying", zaplogger.Fields{
			"kind": kind, "attempt": attempt + 1, "backoff": backoff.String(), "error": err.Error(),
		})
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			zaplogger.Error("batch write abandoned, rows dropped", zaplogger.Fields{
				"kind": kind, "dropped": len(current),
			})
			return false
		}
		backoff *= 2
	}
	return false
}

// dropFailed returns rows with every permanently-failed index removed,
// preserving order of the rest.
func dropFailed[T any](rows []T, failures []repository.RowFailure) []T {
	if len(failures) == 0 {
		return rows
	}
	failedIdx := make(map[int]bool, len(failures))
	for _, f := range failures {
		failedIdx[f.Index] = true
	}
	out := rows[:0:0]
	for i, row := range rows {
		if !failedIdx[i] {
			out = append(out, row)
		}
	}
	return out
}

func (w *Writer) deadLetter(kind, reason string, row interface{}) {
	raw, _ := json.Marshal(row)
	if err := w.dlq.Append(kind, reason, raw); err != nil {
		zaplogger.Error("failed to dead-letter row", zaplogger.Fields{"kind": kind, "error": err.Error()})
	}
}

func (w *Writer) deadLetterBatch(kind, reason string, rows interface{}) {
	raw, _ := json.Marshal(rows)
	if err := w.dlq.Append(kind, reason, raw); err != nil {
		zaplogger.Error("failed to dead-letter batch", zaplogger.Fields{"kind": kind, "error": err.Error()})
	}
}

// drainOnShutdown flushes whatever remains, honoring the overall 15s
// shutdown deadline from the concurrency model: rows still unwritten at
// the deadline are dropped with an error-logged count.
func (w *Writer) drainOnShutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	w.Flush(ctx)
}

func groupBy[T any](rows []T, instrumentOf func(T) string, kindOf KindResolver) map[models.Kind][]T {
	out := make(map[models.Kind][]T)
	for _, r := range rows {
		k := kindOf(instrumentOf(r))
		out[k] = append(out[k], r)
	}
	return out
}
