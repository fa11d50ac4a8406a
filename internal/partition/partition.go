// Package partition implements the Subscription Partitioner: the pure
// function (plus rebalance policy) mapping instrument names to session
// ids, subject to the per-session channel cap and a load-balance
// tolerance.
package partition

import (
	"hash/fnv"
	"sort"
	"time"
)

const (
	rebalanceTolerance   = 0.10 // 10% over the mean
	rebalanceMinExcess   = 20   // and more than 20 instruments
	rebalanceRateLimit   = 10 * time.Minute
)

// Move is one (session, subscribe|unsubscribe, instrument) instruction the
// Control API applies in order: unsubscribe-old always precedes
// subscribe-new, never the reverse, to stay within caps.
type Move struct {
	Session    int
	Subscribe  bool
	Instrument string
}

// Partitioner assigns instruments to one of N sessions by a deterministic
// hash, spilling round-robin to the next session when the natural slot is
// at capacity, and rate-limits mean-based rebalances to at most one per 10
// minutes.
type Partitioner struct {
	n             int
	capPerSession int // <= 0 means unlimited, skip capacity checks in assign
	assignment    map[string]int // instrument -> session
	lastRebalance time.Time
}

// New creates a Partitioner over n sessions, each treated as holding at
// most capPerSession instruments for the purposes of initial assignment
// spillover. capPerSession <= 0 disables the capacity check (assign always
// returns the natural hash slot).
func New(n int, capPerSession int) *Partitioner {
	return &Partitioner{n: n, capPerSession: capPerSession, assignment: make(map[string]int)}
}

// Which returns the session currently assigned to instrument, assigning it
// a fresh target (by hash, spilling round-robin) if it has none yet.
func (p *Partitioner) Which(instrument string) int {
	if s, ok := p.assignment[instrument]; ok {
		return s
	}
	s := p.assign(instrument)
	p.assignment[instrument] = s
	return s
}

// Forget removes instrument from the assignment map, e.g. after it expires.
func (p *Partitioner) Forget(instrument string) {
	delete(p.assignment, instrument)
}

// assign computes the deterministic hash-mod-N target, then spills
// round-robin to the next session (wrapping) whenever the natural slot is
// already at capPerSession -- a freshly-listed instrument landing on an
// already-full session gets a home immediately instead of waiting for the
// next rate-limited Rebalance pass. If every session is at capacity, the
// natural hash slot is returned anyway; the session's own CapacityExceeded
// rejection surfaces the problem to the caller rather than this silently
// dropping the instrument.
func (p *Partitioner) assign(instrument string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(instrument))
	start := int(h.Sum32()) % p.n

	if p.capPerSession <= 0 {
		return start
	}

	counts := p.Counts()
	for i := 0; i < p.n; i++ {
		s := (start + i) % p.n
		if counts[s] < p.capPerSession {
			return s
		}
	}
	return start
}

// Counts returns the current per-session instrument count.
func (p *Partitioner) Counts() []int {
	counts := make([]int, p.n)
	for _, s := range p.assignment {
		counts[s]++
	}
	return counts
}

// ShouldRebalance reports whether any session exceeds the mean by more
// than 10% and by more than 20 instruments, and the rate limit allows it.
func (p *Partitioner) ShouldRebalance(now time.Time) bool {
	if now.Sub(p.lastRebalance) < rebalanceRateLimit {
		return false
	}
	counts := p.Counts()
	total := 0
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return false
	}
	mean := float64(total) / float64(p.n)
	for _, c := range counts {
		excess := float64(c) - mean
		if excess > mean*rebalanceTolerance && excess > rebalanceMinExcess {
			return true
		}
	}
	return false
}

// Rebalance computes an incremental diff (not a from-scratch reassignment),
// moving instruments one at a time from the most-loaded session to the
// least-loaded one until the most-loaded session is at or below the
// integer mean or within one instrument of the least-loaded. It does not
// stop early once sessions are merely within tolerance of the mean. It
// updates the internal assignment
// map and marks the rate limit as consumed regardless of whether any
// moves were produced.
func (p *Partitioner) Rebalance(now time.Time) []Move {
	p.lastRebalance = now

	counts := p.Counts()
	total := 0
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return nil
	}
	mean := total / p.n

	bySession := make(map[int][]string)
	for instr, s := range p.assignment {
		bySession[s] = append(bySession[s], instr)
	}
	for s := range bySession {
		sort.Strings(bySession[s])
	}

	var moves []Move
	for {
		src, srcCount := mostLoaded(counts)
		dst, dstCount := leastLoaded(counts)
		if srcCount-dstCount <= 1 || srcCount <= mean {
			break
		}

		instruments := bySession[src]
		if len(instruments) == 0 {
			break
		}
		instr := instruments[len(instruments)-1]
		bySession[src] = instruments[:len(instruments)-1]
		bySession[dst] = append(bySession[dst], instr)

		moves = append(moves,
			Move{Session: src, Subscribe: false, Instrument: instr},
			Move{Session: dst, Subscribe: true, Instrument: instr},
		)

		p.assignment[instr] = dst
		counts[src]--
		counts[dst]++
	}

	return moves
}

func mostLoaded(counts []int) (session, count int) {
	count = -1
	for s, c := range counts {
		if c > count {
			session, count = s, c
		}
	}
	return
}

func leastLoaded(counts []int) (session, count int) {
	count = int(^uint(0) >> 1)
	for s, c := range counts {
		if c < count {
			session, count = s, c
		}
	}
	return
}
