package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuoteTick is a point-in-time best bid/ask observation. Uniqueness key:
// (instant, instrument). Immutable once written; a later re-observation at
// the same (instant, instrument) overwrites via upsert, it is never
// appended as a second row.
//
// Invariant: BidPrice <= AskPrice whenever both are non-null; sizes >= 0.
type QuoteTick struct {
	Instant    time.Time              `gorm:"primaryKey;index:idx_quote_instrument_ts,priority:2" json:"instant"`
	Instrument string                 `gorm:"primaryKey;index:idx_quote_instrument_ts,priority:1" json:"instrument"`
	BidPrice   decimal.NullDecimal    `json:"bid_price,omitempty"`
	BidSize    decimal.NullDecimal    `json:"bid_size,omitempty"`
	AskPrice   decimal.NullDecimal    `json:"ask_price,omitempty"`
	AskSize    decimal.NullDecimal    `json:"ask_size,omitempty"`
	MarkPrice  decimal.NullDecimal    `json:"mark_price,omitempty"`
	IndexPrice decimal.NullDecimal    `json:"index_price,omitempty"`

	Delta decimal.NullDecimal `json:"delta,omitempty"`
	Gamma decimal.NullDecimal `json:"gamma,omitempty"`
	Theta decimal.NullDecimal `json:"theta,omitempty"`
	Vega  decimal.NullDecimal `json:"vega,omitempty"`
	Rho   decimal.NullDecimal `json:"rho,omitempty"`

	IVBid  decimal.NullDecimal `json:"iv_bid,omitempty"`
	IVAsk  decimal.NullDecimal `json:"iv_ask,omitempty"`
	IVMark decimal.NullDecimal `json:"iv_mark,omitempty"`

	OpenInterest   decimal.NullDecimal `json:"open_interest,omitempty"`
	LastTradePrice decimal.NullDecimal `json:"last_trade_price,omitempty"`
}

// Valid reports whether the quote satisfies the store's bid<=ask invariant.
func (q QuoteTick) Valid() bool {
	if !q.BidPrice.Valid || !q.AskPrice.Valid {
		return true
	}
	return q.BidPrice.Decimal.LessThanOrEqual(q.AskPrice.Decimal)
}
