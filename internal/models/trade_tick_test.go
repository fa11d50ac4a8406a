package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTradeTickValid(t *testing.T) {
	tr := TradeTick{
		Price: decimal.NewFromFloat(100),
		Size:  decimal.NewFromFloat(1),
		Side:  TradeBuy,
	}
	assert.True(t, tr.Valid())
}

func TestTradeTickInvalidZeroPrice(t *testing.T) {
	tr := TradeTick{Price: decimal.Zero, Size: decimal.NewFromFloat(1), Side: TradeBuy}
	assert.False(t, tr.Valid())
}

func TestTradeTickInvalidNegativeSize(t *testing.T) {
	tr := TradeTick{Price: decimal.NewFromFloat(100), Size: decimal.NewFromFloat(-1), Side: TradeSell}
	assert.False(t, tr.Valid())
}

func TestTradeTickInvalidSide(t *testing.T) {
	tr := TradeTick{Price: decimal.NewFromFloat(100), Size: decimal.NewFromFloat(1), Side: "hold"}
	assert.False(t, tr.Valid())
}
