package models

import (
	"time"

	"gorm.io/datatypes"
)

// LifecycleEventsTableName is the append-only audit log table name.
var LifecycleEventsTableName = "lifecycle_events"

// EventKind enumerates the lifecycle audit event kinds.
type EventKind string

const (
	EventSubscriptionAdded   EventKind = "subscription_added"
	EventSubscriptionRemoved EventKind = "subscription_removed"
	EventInstrumentExpired   EventKind = "instrument_expired"
	EventInstrumentListed    EventKind = "instrument_listed"
	EventRebalanceTriggered  EventKind = "rebalance_triggered"
)

// LifecycleEvent is an append-only audit record describing one
// subscription/expiry/rebalance action. Retention is typically 90 days,
// enforced by a separate pruning policy -- this table is never written to
// outside the Lifecycle Manager.
type LifecycleEvent struct {
	ID           string         `gorm:"primaryKey" json:"id"`
	Instant      time.Time      `gorm:"index" json:"instant"`
	Kind         EventKind      `gorm:"index" json:"kind"`
	Instrument   *string        `json:"instrument,omitempty"`
	Currency     string         `gorm:"index" json:"currency"`
	SessionID    *string        `json:"session_id,omitempty"`
	Details      datatypes.JSON `gorm:"type:jsonb" json:"details,omitempty"`
	Success      bool           `json:"success"`
	ErrorMessage *string        `json:"error_message,omitempty"`
}

// TableName specifies the table name for LifecycleEvent.
func (LifecycleEvent) TableName() string {
	return LifecycleEventsTableName
}
