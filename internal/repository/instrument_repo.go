package repository

import (
	"fmt"
	"time"

	"github.com/nsvirk/tickcollector/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InstrumentRepository persists the instrument-metadata table the
// Lifecycle Manager reconciles against.
type InstrumentRepository struct {
	DB *gorm.DB
}

// NewInstrumentRepository creates a new InstrumentRepository.
func NewInstrumentRepository(db *gorm.DB) *InstrumentRepository {
	return &InstrumentRepository{DB: db}
}

// TrackedActive returns the local_set: every instrument currently marked
// active for the given currency.
func (r *InstrumentRepository) TrackedActive(currency string) ([]models.Instrument, error) {
	var instruments []models.Instrument
	err := r.DB.Where("currency = ? AND is_active = ?", currency, true).Find(&instruments).Error
	return instruments, err
}

// UpsertListed inserts or reactivates a newly-listed instrument. The
// instrument-metadata row may be created concurrently with the first tick
// for the same name; this upsert never blocks on tick ingestion since it
// runs only from the Lifecycle Manager's own goroutine.
func (r *InstrumentRepository) UpsertListed(instr models.Instrument) error {
	now := time.Now()
	instr.ListedAt = now
	instr.LastSeenAt = now
	instr.IsActive = true
	instr.ExpiredAt = nil

	result := r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"currency", "kind", "strike", "expiry_instant", "option_side", "is_active", "last_seen_at", "expired_at"}),
	}).Create(&instr)

	if result.Error != nil {
		return fmt.Errorf("failed to upsert listed instrument %s: %v", instr.Name, result.Error)
	}
	return nil
}

// TouchLastSeen bumps last_seen_at=now for every name present in both the
// local set and the exchange universe this reconciliation iteration.
func (r *InstrumentRepository) TouchLastSeen(names []string) error {
	if len(names) == 0 {
		return nil
	}
	return r.DB.Model(&models.Instrument{}).
		Where("name IN ?", names).
		Update("last_seen_at", time.Now()).Error
}

// MarkExpired transitions an instrument to is_active=false with expired_at
// set. It never deletes historical tick rows.
func (r *InstrumentRepository) MarkExpired(name string) error {
	now := time.Now()
	return r.DB.Model(&models.Instrument{}).
		Where("name = ?", name).
		Updates(map[string]interface{}{"is_active": false, "expired_at": now}).Error
}

// AssignSession records which session a subscribed instrument lives on. The
// partitioner keeps its own in-memory assignment and does not read this
// column.
func (r *InstrumentRepository) AssignSession(name, sessionID string) error {
	return r.DB.Model(&models.Instrument{}).Where("name = ?", name).Update("session_id", sessionID).Error
}

// SessionOf returns the session currently assigned to name, if any.
func (r *InstrumentRepository) SessionOf(name string) (string, error) {
	var instr models.Instrument
	if err := r.DB.Select("session_id").Where("name = ?", name).First(&instr).Error; err != nil {
		return "", err
	}
	if instr.SessionID == nil {
		return "", nil
	}
	return *instr.SessionID, nil
}
