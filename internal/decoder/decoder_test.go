package decoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeHeartbeatYieldsNoEvent(t *testing.T) {
	frame := []byte(`{"type":"heartbeat","timestamp_ms":1700000000000}`)
	ev, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, EventNone, ev.Kind)
}

func TestDecodeQuote(t *testing.T) {
	frame := []byte(`{
		"type":"quote",
		"instrument":"BTC-31DEC26-100000-C",
		"timestamp_ms":1700000000000,
		"payload":{"bid_price":100.5,"ask_price":101.5,"bid_size":2,"ask_size":3}
	}`)
	ev, err := Decode(frame)
	require.NoError(t, err)
	require.Equal(t, EventQuote, ev.Kind)
	assert.Equal(t, "BTC-31DEC26-100000-C", ev.Quote.Instrument)
	require.True(t, ev.Quote.BidPrice.Valid)
	assert.Equal(t, "100.5", ev.Quote.BidPrice.Decimal.String())
	assert.True(t, ev.Quote.Valid())
}

func TestDecodeTradeRejectsInvalidSide(t *testing.T) {
	frame := []byte(`{
		"type":"trade",
		"instrument":"BTC-31DEC26-100000-C",
		"timestamp_ms":1700000000000,
		"payload":{"trade_id":"t1","price":100,"size":1,"side":"sideways"}
	}`)
	_, err := Decode(frame)
	require.Error(t, err)
	var decodeErr *DecodeError
	assert.ErrorAs(t, err, &decodeErr)
}

func TestDecodeTradeValid(t *testing.T) {
	frame := []byte(`{
		"type":"trade",
		"instrument":"BTC-31DEC26-100000-C",
		"timestamp_ms":1700000000000,
		"payload":{"trade_id":"t1","price":100,"size":1,"side":"buy"}
	}`)
	ev, err := Decode(frame)
	require.NoError(t, err)
	require.Equal(t, EventTrade, ev.Kind)
	assert.True(t, ev.Trade.Valid())
	assert.Equal(t, "t1", ev.Trade.TradeID)
}

func TestDecodeUnknownFrameType(t *testing.T) {
	frame := []byte(`{"type":"nonsense","timestamp_ms":1}`)
	_, err := Decode(frame)
	require.Error(t, err)
}

func TestDecodeMalformedJSON(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	require.Error(t, err)
}

func TestDecodeBatchExpandsTradeList(t *testing.T) {
	frame := []byte(`{
		"type":"trades",
		"instrument":"BTC-31DEC26-100000-C",
		"timestamp_ms":1700000000000,
		"payload":[
			{"trade_id":"t1","price":100,"size":1,"side":"buy"},
			{"trade_id":"t2","price":101,"size":2,"side":"sell"}
		]
	}`)
	events, errs := DecodeBatch(frame)
	require.Empty(t, errs)
	require.Len(t, events, 2)
	assert.Equal(t, "t1", events[0].Trade.TradeID)
	assert.Equal(t, "t2", events[1].Trade.TradeID)
}

func TestDecodeBatchSkipsInvalidEntriesButKeepsRest(t *testing.T) {
	frame := []byte(`{
		"type":"trades",
		"instrument":"BTC-31DEC26-100000-C",
		"timestamp_ms":1700000000000,
		"payload":[
			{"trade_id":"t1","price":100,"size":1,"side":"buy"},
			{"trade_id":"t2","price":101,"size":2,"side":"unknown"}
		]
	}`)
	events, errs := DecodeBatch(frame)
	require.Len(t, events, 1)
	require.Len(t, errs, 1)
	assert.Equal(t, "t1", events[0].Trade.TradeID)
}

func TestDecodeBatchFallsThroughToSingleDecodeForNonListFrames(t *testing.T) {
	frame := []byte(`{"type":"heartbeat","timestamp_ms":1}`)
	events, errs := DecodeBatch(frame)
	assert.Empty(t, errs)
	assert.Empty(t, events)
}
