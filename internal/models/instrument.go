// Package models contains the persisted record types for the collector.
package models

import "time"

// InstrumentsTableName is the instrument-metadata table name.
var InstrumentsTableName = "instrument_metadata"

// Kind enumerates the contract kinds the collector tracks.
type Kind string

const (
	KindOption    Kind = "option"
	KindPerpetual Kind = "perpetual"
	KindFuture    Kind = "future"
)

// Side is an option's call/put side.
type Side string

const (
	SideCall Side = "call"
	SidePut  Side = "put"
)

// Instrument is a tradable contract identified by its exchange-assigned
// name. Historical tick data keyed by Name is never deleted as a
// consequence of IsActive transitioning to false; only a separate
// time-based retention policy prunes old rows.
type Instrument struct {
	Name           string     `gorm:"primaryKey" json:"name"`
	Currency       string     `gorm:"index:idx_instr_currency_active,priority:1" json:"currency"`
	Kind           Kind       `gorm:"index" json:"kind"`
	Strike         *float64   `json:"strike,omitempty"`
	ExpiryInstant  *time.Time `gorm:"index" json:"expiry_instant,omitempty"`
	OptionSide     *Side      `json:"option_side,omitempty"`
	IsActive       bool       `gorm:"index:idx_instr_currency_active,priority:2" json:"is_active"`
	ListedAt       time.Time  `json:"listed_at"`
	LastSeenAt     time.Time  `json:"last_seen_at"`
	ExpiredAt      *time.Time `json:"expired_at,omitempty"`
	SessionID      *string    `json:"session_id,omitempty"`
}

// TableName specifies the table name for Instrument.
func (Instrument) TableName() string {
	return InstrumentsTableName
}
