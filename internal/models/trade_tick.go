package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeSide is a trade's taker side.
type TradeSide string

const (
	TradeBuy  TradeSide = "buy"
	TradeSell TradeSide = "sell"
)

// TradeTick is an executed trade. Uniqueness key: (instant, trade_id,
// instrument) -- the timestamp component is required because the store is
// time-partitioned; a timestamp-less key was the source schema's mistake
// and must not be regressed to.
//
// Invariant: Price > 0, Size > 0, Side in {buy, sell}. Idempotent on
// replay: upsert does-nothing on conflict, trades are immutable once
// acknowledged.
type TradeTick struct {
	Instant    time.Time       `gorm:"primaryKey;index:idx_trade_instrument_ts,priority:2" json:"instant"`
	TradeID    string          `gorm:"primaryKey" json:"trade_id"`
	Instrument string          `gorm:"primaryKey;index:idx_trade_instrument_ts,priority:1" json:"instrument"`
	Price      decimal.Decimal `json:"price"`
	Size       decimal.Decimal `json:"size"`
	Side       TradeSide       `json:"side"`

	IV         decimal.NullDecimal `json:"iv,omitempty"`
	IndexPrice decimal.NullDecimal `json:"index_price,omitempty"`
}

// Valid reports whether the trade satisfies the store's invariants.
func (t TradeTick) Valid() bool {
	if t.Price.Sign() <= 0 || t.Size.Sign() <= 0 {
		return false
	}
	return t.Side == TradeBuy || t.Side == TradeSell
}
