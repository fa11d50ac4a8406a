// Package snapshotter implements the Depth Snapshotter: periodic
// rate-limited full-depth polls over the currently tracked instrument set.
package snapshotter

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/nsvirk/tickcollector/internal/buffer"
	"github.com/nsvirk/tickcollector/internal/catalog"
	"github.com/nsvirk/tickcollector/internal/errs"
	"github.com/nsvirk/tickcollector/pkg/utils/zaplogger"
)

// TrackedProvider returns the instrument names currently subscribed by the
// pool -- the set the snapshotter sweeps. Consulted once at the start of
// each sweep; a mid-sweep mutation of the tracked set is picked up only on
// the next sweep, never the current one.
type TrackedProvider func() []string

// Snapshotter periodically materializes a full depth snapshot for every
// tracked instrument, pacing fetch_depth calls through the shared catalog
// rate limiter.
type Snapshotter struct {
	client     *catalog.Client
	buf        *buffer.Buffer
	tracked    TrackedProvider
	maxLevels  int
	sweeping   atomic.Bool
}

// New creates a Snapshotter sweeping the set returned by tracked, fetching
// up to maxLevels per side through client, pushing results into buf.
func New(client *catalog.Client, buf *buffer.Buffer, tracked TrackedProvider, maxLevels int) *Snapshotter {
	return &Snapshotter{client: client, buf: buf, tracked: tracked, maxLevels: maxLevels}
}

// Run drives the sweep loop on the given interval until ctx is cancelled.
// If a sweep is still running when the next tick fires, that tick is
// skipped with a warning -- sweeps never stack.
func (s *Snapshotter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.sweeping.CompareAndSwap(false, true) {
				zaplogger.Warn("depth sweep still running, skipping this interval")
				continue
			}
			go func() {
				defer s.sweeping.Store(false)
				s.sweep(ctx)
			}()
		}
	}
}

// sweep walks a snapshot of the tracked set taken at sweep start, issuing
// fetch_depth calls one at a time -- pacing is enforced by the catalog
// client's own rate limiter, so no additional throttling is needed here.
func (s *Snapshotter) sweep(ctx context.Context) {
	instruments := s.tracked()
	if len(instruments) == 0 {
		return
	}

	start := time.Now()
	var fetched, skipped int
	for _, instrument := range instruments {
		select {
		case <-ctx.Done():
			return
		default:
		}

		snap, err := s.client.FetchDepth(ctx, instrument, s.maxLevels)
		if err != nil {
			if err == errs.ErrNotFound {
				skipped++
				continue
			}
			if errs.IsTransient(err) {
				zaplogger.Warn("depth fetch transient failure, skipping instrument this sweep", zaplogger.Fields{
					"instrument": instrument, "error": err.Error(),
				})
				continue
			}
			zaplogger.Error("depth fetch permanent failure", zaplogger.Fields{"instrument": instrument, "error": err.Error()})
			continue
		}

		s.buf.PushDepth(snap)
		fetched++
	}

	zaplogger.Info("depth sweep complete", zaplogger.Fields{
		"instruments": len(instruments), "fetched": fetched, "skipped": skipped, "elapsed": time.Since(start).String(),
	})
}
