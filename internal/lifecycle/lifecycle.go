// Package lifecycle implements the Lifecycle Manager: the component that
// keeps the tracked instrument set aligned with the exchange's live
// universe, one currency at a time, driving subscribe/unsubscribe through
// the Control API and recording every action into the append-only
// lifecycle-event log.
package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nsvirk/tickcollector/internal/catalog"
	"github.com/nsvirk/tickcollector/internal/control"
	"github.com/nsvirk/tickcollector/internal/models"
	"github.com/nsvirk/tickcollector/internal/partition"
	"github.com/nsvirk/tickcollector/internal/repository"
	"github.com/nsvirk/tickcollector/pkg/utils/zaplogger"
	"gorm.io/datatypes"
)

// Manager drives one currency's reconciliation loop. One Manager runs per
// currency the collector tracks, matching the concurrency model's "one
// task per currency" scheduling note.
type Manager struct {
	currency       string
	catalogClient  *catalog.Client
	catalogCache   *catalog.Cache
	instrumentRepo *repository.InstrumentRepository
	lifecycleRepo  *repository.LifecycleRepository
	ctrl           *control.Controller
	partitioner    *partition.Partitioner

	expiryBuffer       time.Duration
	rebalanceInterval  time.Duration
	lastRebalanceCheck time.Time

	log *zaplogger.Scoped
}

// New creates a Manager for currency, reconciling against catalogClient
// (through catalogCache, which may be a cache built over a nil Redis client
// to disable caching entirely) and the given repositories, driving
// mutations through ctrl.
func New(
	currency string,
	catalogClient *catalog.Client,
	catalogCache *catalog.Cache,
	instrumentRepo *repository.InstrumentRepository,
	lifecycleRepo *repository.LifecycleRepository,
	ctrl *control.Controller,
	partitioner *partition.Partitioner,
	expiryBuffer time.Duration,
	rebalanceInterval time.Duration,
) *Manager {
	return &Manager{
		currency:          currency,
		catalogClient:     catalogClient,
		catalogCache:      catalogCache,
		instrumentRepo:    instrumentRepo,
		lifecycleRepo:     lifecycleRepo,
		ctrl:              ctrl,
		partitioner:       partitioner,
		expiryBuffer:      expiryBuffer,
		rebalanceInterval: rebalanceInterval,
		log:               zaplogger.With(zaplogger.Fields{"currency": currency}),
	}
}

// Run drives the reconciliation loop on the given interval until ctx is
// cancelled. The first iteration runs immediately, not after the first
// tick, so a cold-started collector does not sit idle for a full interval.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	m.reconcile(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.reconcile(ctx)
		}
	}
}

// ForceReconcile runs one reconciliation iteration immediately, outside the
// normal interval ticker -- the hook the daily catalog-refresh cron job
// calls to catch drift accumulated from any missed ticks.
func (m *Manager) ForceReconcile(ctx context.Context) {
	m.reconcile(ctx)
}

// reconcile runs one full iteration of spec §4.8 steps 1-7 for options, the
// currency's default instrument kind. The kind is fixed to option for every
// Manager; perpetuals are not reconciled by this loop.
func (m *Manager) reconcile(ctx context.Context) {
	m.reconcileKind(ctx, models.KindOption)

	if time.Since(m.lastRebalanceCheck) >= m.rebalanceInterval {
		m.lastRebalanceCheck = time.Now()
		m.maybeRebalance(ctx)
	}
}

// reconcileKind is one pass of steps 1-6 for a single instrument kind. The
// exchange_active listing is read through catalogCache first so a
// ForceReconcile landing within the same cache window as the regular
// ticker (the daily cron failsafe, in particular) does not re-hit the
// catalog endpoint for a universe that has not had time to change.
func (m *Manager) reconcileKind(ctx context.Context, kind models.Kind) {
	descriptors, cached := m.catalogCache.Get(ctx, m.currency, kind)
	if !cached {
		fetched, err := m.catalogClient.ListActive(ctx, m.currency, kind)
		if err != nil {
			m.log.Warn("lifecycle reconciliation: list_active failed, will retry next iteration", zaplogger.Fields{
				"kind": kind, "error": err.Error(),
			})
			return
		}
		descriptors = fetched
		m.catalogCache.Set(ctx, m.currency, kind, descriptors)
	}

	exchangeSet := make(map[string]catalog.InstrumentDescriptor, len(descriptors))
	for _, d := range descriptors {
		exchangeSet[d.Name] = d
	}

	tracked, err := m.instrumentRepo.TrackedActive(m.currency)
	if err != nil {
		m.log.Error("lifecycle reconciliation: failed to read tracked set", zaplogger.Fields{"error": err.Error()})
		return
	}
	localSet := make(map[string]models.Instrument, len(tracked))
	for _, i := range tracked {
		if i.Kind == kind {
			localSet[i.Name] = i
		}
	}

	now := time.Now()

	var expired, stillTracked []string
	for name := range localSet {
		if _, ok := exchangeSet[name]; !ok {
			expired = append(expired, name)
		} else {
			stillTracked = append(stillTracked, name)
		}
	}
	var listed []string
	for name := range exchangeSet {
		if _, ok := localSet[name]; !ok {
			listed = append(listed, name)
		}
	}

	for _, name := range expired {
		m.handleExpired(ctx, localSet[name], now)
	}
	for _, name := range listed {
		m.handleListed(ctx, exchangeSet[name])
	}
	if err := m.instrumentRepo.TouchLastSeen(stillTracked); err != nil {
		m.log.Warn("lifecycle reconciliation: failed to touch last_seen_at", zaplogger.Fields{"error": err.Error()})
	}
	// An active instrument with no session assignment had its subscribe
	// fail on an earlier iteration; retry it now.
	for _, name := range stillTracked {
		if localSet[name].SessionID != nil {
			continue
		}
		session := m.ctrl.Which(name)
		result := m.ctrl.Subscribe(ctx, []string{name})
		success := len(result.Failed) == 0
		if success {
			_ = m.instrumentRepo.AssignSession(name, sessionLabel(session))
		}
		m.appendEvent(models.EventSubscriptionAdded, &name, sessionLabel(session), success, failureReason(result), nil)
	}

	m.log.Info("lifecycle reconciliation complete", zaplogger.Fields{
		"kind":           kind,
		"exchange_count": len(exchangeSet), "local_count": len(localSet),
		"expired": len(expired), "listed": len(listed),
	})
}

// handleExpired unsubscribes an instrument whose expiry falls within the
// buffer window and marks it inactive. Per spec, an instrument is only
// acted on when expiry_instant <= now + ExpiryBuffer -- an instrument
// merely absent from this listing but with a recorded expiry beyond the
// buffer window is left alone and stays active. An instrument with no
// recorded expiry is treated as eligible and always acted on.
func (m *Manager) handleExpired(ctx context.Context, instr models.Instrument, now time.Time) {
	if instr.ExpiryInstant != nil && instr.ExpiryInstant.After(now.Add(m.expiryBuffer)) {
		return
	}

	session := m.ctrl.Which(instr.Name)
	result := m.ctrl.Unsubscribe(ctx, []string{instr.Name})
	success := len(result.Failed) == 0

	if err := m.instrumentRepo.MarkExpired(instr.Name); err != nil {
		m.log.Error("lifecycle: failed to mark instrument expired", zaplogger.Fields{
			"instrument": instr.Name, "error": err.Error(),
		})
		// The is_active=false write proceeds regardless of unsubscribe
		// outcome per spec; only a repository failure here is fatal to
		// this instrument's reconciliation this iteration.
	}

	m.appendEvent(models.EventInstrumentExpired, &instr.Name, sessionLabel(session), success, failureReason(result), map[string]interface{}{
		"reason": "expiry_buffer_reached",
	})
}

// handleListed upserts a newly-listed instrument, assigns it a target
// session via the partitioner, and subscribes it.
func (m *Manager) handleListed(ctx context.Context, d catalog.InstrumentDescriptor) {
	instr := models.Instrument{
		Name:       d.Name,
		Currency:   m.currency,
		Kind:       d.Kind,
		OptionSide: d.OptionSide,
	}
	if d.Strike != nil {
		instr.Strike = d.Strike
	}
	instr.ExpiryInstant = d.Expiry()

	if err := m.instrumentRepo.UpsertListed(instr); err != nil {
		m.log.Error("lifecycle: failed to upsert listed instrument", zaplogger.Fields{
			"instrument": d.Name, "error": err.Error(),
		})
		return
	}
	m.appendEvent(models.EventInstrumentListed, &d.Name, "", true, nil, nil)

	session := m.ctrl.Which(d.Name)
	result := m.ctrl.Subscribe(ctx, []string{d.Name})
	success := len(result.Failed) == 0

	if success {
		if err := m.instrumentRepo.AssignSession(d.Name, sessionLabel(session)); err != nil {
			m.log.Warn("lifecycle: failed to record session assignment", zaplogger.Fields{
				"instrument": d.Name, "error": err.Error(),
			})
		}
	}
	// A failed subscribe leaves the instrument active with no session
	// assignment; reconcileKind retries such instruments on the next
	// iteration -- the absence of a session_id is the retry signal.

	m.appendEvent(models.EventSubscriptionAdded, &d.Name, sessionLabel(session), success, failureReason(result), nil)
}

// maybeRebalance evaluates the partitioner's rebalance condition and, if
// triggered, executes the resulting moves through the controller.
func (m *Manager) maybeRebalance(ctx context.Context) {
	now := time.Now()
	if !m.partitioner.ShouldRebalance(now) {
		return
	}

	moves := m.partitioner.Rebalance(now)
	if len(moves) == 0 {
		return
	}

	failed := m.ctrl.ApplyMoves(ctx, moves)
	details, _ := json.Marshal(map[string]interface{}{"move_count": len(moves), "failed_count": len(failed)})

	m.appendEvent(models.EventRebalanceTriggered, nil, "", len(failed) == 0, nil, nil)
	m.log.Info("rebalance executed", zaplogger.Fields{"moves": len(moves), "failed": len(failed), "details": string(details)})

	for _, f := range failed {
		name := f.Name
		reason := f.Reason
		m.appendEvent(models.EventSubscriptionAdded, &name, "", false, &reason, nil)
	}
}

func (m *Manager) appendEvent(kind models.EventKind, instrument *string, sessionID string, success bool, errMsg *string, details map[string]interface{}) {
	var sessionPtr *string
	if sessionID != "" {
		sessionPtr = &sessionID
	}
	var detailsJSON datatypes.JSON
	if details != nil {
		if raw, err := json.Marshal(details); err == nil {
			detailsJSON = datatypes.JSON(raw)
		}
	}

	event := models.LifecycleEvent{
		Instant:      time.Now(),
		Kind:         kind,
		Instrument:   instrument,
		Currency:     m.currency,
		SessionID:    sessionPtr,
		Details:      detailsJSON,
		Success:      success,
		ErrorMessage: errMsg,
	}
	if err := m.lifecycleRepo.Append(event); err != nil {
		m.log.Error("lifecycle: failed to append audit event", zaplogger.Fields{"kind": kind, "error": err.Error()})
	}
}

func sessionLabel(session int) string {
	return fmt.Sprintf("session-%d", session)
}

func failureReason(result control.SubscribeResult) *string {
	if len(result.Failed) == 0 {
		return nil
	}
	msg := result.Failed[0].Reason
	return &msg
}
