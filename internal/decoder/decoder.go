// Package decoder implements the Stream Decoder: pure translation of raw
// exchange stream frames into typed events. Decoding performs no I/O.
package decoder

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nsvirk/tickcollector/internal/models"
	"github.com/shopspring/decimal"
)

// EventKind tags the variant returned by Decode.
type EventKind int

const (
	// EventNone is returned for frames that carry no event (heartbeats,
	// subscription acks) -- not an error, just nothing to emit.
	EventNone EventKind = iota
	EventQuote
	EventTrade
)

// Event is the tagged variant the decoder emits: exactly one of Quote or
// Trade is populated, selected by Kind.
type Event struct {
	Kind  EventKind
	Quote models.QuoteTick
	Trade models.TradeTick
}

// DecodeError reports a frame the decoder could not interpret. The caller
// increments an error counter and continues; it must never panic the
// session's read loop.
type DecodeError struct {
	Frame []byte
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error: %v", e.Err)
}
func (e *DecodeError) Unwrap() error { return e.Err }

type frameEnvelope struct {
	Type       string          `json:"type"`
	Instrument string          `json:"instrument"`
	Timestamp  int64           `json:"timestamp_ms"`
	Payload    json.RawMessage `json:"payload"`
}

type quotePayload struct {
	BidPrice       *float64 `json:"bid_price"`
	BidSize        *float64 `json:"bid_size"`
	AskPrice       *float64 `json:"ask_price"`
	AskSize        *float64 `json:"ask_size"`
	MarkPrice      *float64 `json:"mark_price"`
	IndexPrice     *float64 `json:"index_price"`
	Delta          *float64 `json:"delta"`
	Gamma          *float64 `json:"gamma"`
	Theta          *float64 `json:"theta"`
	Vega           *float64 `json:"vega"`
	Rho            *float64 `json:"rho"`
	IVBid          *float64 `json:"iv_bid"`
	IVAsk          *float64 `json:"iv_ask"`
	IVMark         *float64 `json:"iv_mark"`
	OpenInterest   *float64 `json:"open_interest"`
	LastTradePrice *float64 `json:"last_trade_price"`
}

type tradePayload struct {
	TradeID    string   `json:"trade_id"`
	Price      float64  `json:"price"`
	Size       float64  `json:"size"`
	Side       string   `json:"side"`
	IV         *float64 `json:"iv"`
	IndexPrice *float64 `json:"index_price"`
}

// Decode translates one raw frame into zero or one Event, or a DecodeError.
// A frame of type "trades" carrying a JSON array is expanded by the caller
// via DecodeBatch; Decode itself handles exactly one logical record.
func Decode(frame []byte) (Event, error) {
	var env frameEnvelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Event{}, &DecodeError{Frame: frame, Err: err}
	}

	instant := time.UnixMilli(env.Timestamp).UTC()

	switch env.Type {
	case "heartbeat", "subscription_ack", "ack":
		return Event{Kind: EventNone}, nil

	case "quote":
		var p quotePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return Event{}, &DecodeError{Frame: frame, Err: err}
		}
		return Event{Kind: EventQuote, Quote: toQuoteTick(instant, env.Instrument, p)}, nil

	case "trade":
		var p tradePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return Event{}, &DecodeError{Frame: frame, Err: err}
		}
		trade, err := toTradeTick(instant, env.Instrument, p)
		if err != nil {
			return Event{}, &DecodeError{Frame: frame, Err: err}
		}
		return Event{Kind: EventTrade, Trade: trade}, nil

	default:
		return Event{}, &DecodeError{Frame: frame, Err: fmt.Errorf("unknown frame type %q", env.Type)}
	}
}

// DecodeBatch handles a frame carrying a list of trades in one delivery,
// emitting them in order. Non-list trade frames are routed through Decode.
func DecodeBatch(frame []byte) ([]Event, []error) {
	var probe struct {
		Type    string            `json:"type"`
		Payload []json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(frame, &probe); err != nil || probe.Type != "trades" {
		ev, err := Decode(frame)
		if err != nil {
			return nil, []error{err}
		}
		if ev.Kind == EventNone {
			return nil, nil
		}
		return []Event{ev}, nil
	}

	var env struct {
		Instrument string `json:"instrument"`
		Timestamp  int64  `json:"timestamp_ms"`
	}
	_ = json.Unmarshal(frame, &env)
	instant := time.UnixMilli(env.Timestamp).UTC()

	events := make([]Event, 0, len(probe.Payload))
	var errors []error
	for _, raw := range probe.Payload {
		var p tradePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			errors = append(errors, &DecodeError{Frame: raw, Err: err})
			continue
		}
		trade, err := toTradeTick(instant, env.Instrument, p)
		if err != nil {
			errors = append(errors, &DecodeError{Frame: raw, Err: err})
			continue
		}
		events = append(events, Event{Kind: EventTrade, Trade: trade})
	}
	return events, errors
}

func toQuoteTick(instant time.Time, instrument string, p quotePayload) models.QuoteTick {
	q := models.QuoteTick{Instant: instant, Instrument: instrument}
	q.BidPrice = fromPtr(p.BidPrice)
	q.BidSize = fromPtr(p.BidSize)
	q.AskPrice = fromPtr(p.AskPrice)
	q.AskSize = fromPtr(p.AskSize)
	q.MarkPrice = fromPtr(p.MarkPrice)
	q.IndexPrice = fromPtr(p.IndexPrice)
	q.Delta = fromPtr(p.Delta)
	q.Gamma = fromPtr(p.Gamma)
	q.Theta = fromPtr(p.Theta)
	q.Vega = fromPtr(p.Vega)
	q.Rho = fromPtr(p.Rho)
	q.IVBid = fromPtr(p.IVBid)
	q.IVAsk = fromPtr(p.IVAsk)
	q.IVMark = fromPtr(p.IVMark)
	q.OpenInterest = fromPtr(p.OpenInterest)
	q.LastTradePrice = fromPtr(p.LastTradePrice)
	return q
}

func toTradeTick(instant time.Time, instrument string, p tradePayload) (models.TradeTick, error) {
	side := models.TradeSide(p.Side)
	if side != models.TradeBuy && side != models.TradeSell {
		return models.TradeTick{}, fmt.Errorf("invalid trade side %q", p.Side)
	}
	t := models.TradeTick{
		Instant:    instant,
		TradeID:    p.TradeID,
		Instrument: instrument,
		Price:      decimal.NewFromFloat(p.Price),
		Size:       decimal.NewFromFloat(p.Size),
		Side:       side,
		IV:         fromPtr(p.IV),
		IndexPrice: fromPtr(p.IndexPrice),
	}
	return t, nil
}

func fromPtr(f *float64) decimal.NullDecimal {
	if f == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: decimal.NewFromFloat(*f), Valid: true}
}
