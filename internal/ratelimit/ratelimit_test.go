package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSubSplitsBudgetByShare(t *testing.T) {
	shared := NewShared(10)
	half := shared.Sub(0.5)
	tenth := shared.Sub(0.1)

	assert.InDelta(t, 5.0, float64(half.Limit()), 0.001)
	assert.InDelta(t, 1.0, float64(tenth.Limit()), 0.001)
}

func TestSubNeverReturnsZeroLimit(t *testing.T) {
	shared := NewShared(0)
	lim := shared.Sub(1.0)
	assert.Greater(t, float64(lim.Limit()), 0.0)
}

func TestWaitRespectsContextCancellation(t *testing.T) {
	shared := NewShared(0.001) // effectively never refills within the test window
	lim := shared.Sub(1.0)
	lim.Allow() // consume the initial burst token

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := Wait(ctx, lim)
	assert.Error(t, err)
}
