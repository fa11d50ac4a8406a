package partition

import (
	"fmt"
	"hash/fnv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func naturalSlot(n int, instrument string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(instrument))
	return int(h.Sum32()) % n
}

func TestWhichIsDeterministicAndSticky(t *testing.T) {
	p := New(4, 0)

	first := p.Which("BTC-31DEC26-100000-C")
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, p.Which("BTC-31DEC26-100000-C"))
	}
	assert.GreaterOrEqual(t, first, 0)
	assert.Less(t, first, 4)
}

func TestWhichSpreadsAcrossSessions(t *testing.T) {
	p := New(4, 0)
	for i := 0; i < 200; i++ {
		p.Which(instrumentName(i))
	}
	counts := p.Counts()
	require.Len(t, counts, 4)
	for _, c := range counts {
		assert.Greater(t, c, 0, "every session should receive at least one instrument over 200 names")
	}
}

func TestForgetRemovesAssignment(t *testing.T) {
	p := New(2, 0)
	p.Which("BTC-PERPETUAL")
	p.Forget("BTC-PERPETUAL")

	counts := p.Counts()
	total := 0
	for _, c := range counts {
		total += c
	}
	assert.Equal(t, 0, total)
}

func TestShouldRebalanceRespectsRateLimit(t *testing.T) {
	p := New(2, 0)
	for i := 0; i < 100; i++ {
		p.assignment[instrumentName(i)] = 0
	}

	now := time.Now()
	assert.True(t, p.ShouldRebalance(now), "session 0 holds everything, should trip the imbalance check")

	p.Rebalance(now)
	// Re-skew the assignment so only the rate limit decides the next checks.
	for i := 0; i < 100; i++ {
		p.assignment[instrumentName(i)] = 0
	}
	assert.False(t, p.ShouldRebalance(now.Add(time.Minute)), "rate limit should block a second rebalance inside 10 minutes")
	assert.True(t, p.ShouldRebalance(now.Add(11*time.Minute)), "rate limit should clear after 10 minutes")
}

func TestShouldRebalanceIgnoresSmallImbalance(t *testing.T) {
	p := New(2, 0)
	p.assignment["a"] = 0
	p.assignment["b"] = 0
	p.assignment["c"] = 1

	assert.False(t, p.ShouldRebalance(time.Now()), "a 1-instrument imbalance is below the 20-excess floor")
}

func TestRebalanceProducesBalancedUnsubscribeThenSubscribePairs(t *testing.T) {
	p := New(2, 0)
	for i := 0; i < 100; i++ {
		p.assignment[instrumentName(i)] = 0
	}

	moves := p.Rebalance(time.Now())
	require.NotEmpty(t, moves)

	for i := 0; i+1 < len(moves); i += 2 {
		assert.False(t, moves[i].Subscribe, "unsubscribe-old must precede subscribe-new")
		assert.True(t, moves[i+1].Subscribe)
		assert.Equal(t, moves[i].Instrument, moves[i+1].Instrument)
		assert.Equal(t, 0, moves[i].Session)
		assert.Equal(t, 1, moves[i+1].Session)
	}

	counts := p.Counts()
	diff := counts[0] - counts[1]
	if diff < 0 {
		diff = -diff
	}
	assert.LessOrEqual(t, diff, 1, "rebalance should leave sessions within one instrument of each other")
}

func TestRebalanceOnEmptyPartitionerIsNoop(t *testing.T) {
	p := New(3, 0)
	assert.Nil(t, p.Rebalance(time.Now()))
}

func TestAssignSpillsRoundRobinWhenNaturalSlotIsFull(t *testing.T) {
	p := New(2, 1)

	var name string
	for i := 0; i < 50; i++ {
		if cand := instrumentName(i); naturalSlot(2, cand) == 0 {
			name = cand
			break
		}
	}
	require.NotEmpty(t, name, "no candidate instrument hashed to session 0, cannot exercise spillover")

	p.assignment["already-here"] = 0 // fill session 0 to its cap of 1
	assert.Equal(t, 1, p.assign(name), "a full natural slot must spill to the next session")
}

func TestAssignFallsBackToNaturalSlotWhenEverySessionFull(t *testing.T) {
	p := New(2, 1)
	p.assignment["x"] = 0
	p.assignment["y"] = 1

	s := p.assign("z")
	assert.True(t, s == 0 || s == 1)
}

func TestAssignUnlimitedCapacityIgnoresLoad(t *testing.T) {
	p := New(2, 0)
	p.assignment["a"] = 0
	p.assignment["b"] = 0

	s := p.assign("anything")
	assert.Equal(t, p.assign("anything"), s, "capPerSession <= 0 must always return the natural hash slot")
}

func instrumentName(i int) string {
	return fmt.Sprintf("INSTR-%d", i)
}
