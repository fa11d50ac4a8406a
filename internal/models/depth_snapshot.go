package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// DepthLevel is one (price, size) rung of an orderbook ladder.
type DepthLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// DepthLadder is an ordered list of DepthLevel, stored as a jsonb array.
// Bid ladders are price-descending, ask ladders price-ascending, bounded to
// the exchange's documented depth (<=20 levels/side).
type DepthLadder []DepthLevel

func (d *DepthLadder) Scan(value interface{}) error {
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, d)
}

func (d DepthLadder) Value() (driver.Value, error) {
	return json.Marshal(d)
}

// DepthSnapshot is a full orderbook snapshot taken via a one-shot
// request-response call. Uniqueness key: (instant, instrument).
type DepthSnapshot struct {
	Instant    time.Time   `gorm:"primaryKey;index:idx_depth_instrument_ts,priority:2" json:"instant"`
	Instrument string      `gorm:"primaryKey;index:idx_depth_instrument_ts,priority:1" json:"instrument"`
	Bids       DepthLadder `gorm:"type:jsonb" json:"bids"`
	Asks       DepthLadder `gorm:"type:jsonb" json:"asks"`

	MarkPrice    decimal.NullDecimal `json:"mark_price,omitempty"`
	IndexPrice   decimal.NullDecimal `json:"index_price,omitempty"`
	OpenInterest decimal.NullDecimal `json:"open_interest,omitempty"`
	Volume24h    decimal.NullDecimal `json:"volume_24h,omitempty"`
}
