package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLatticeVisitsEveryAllocation(t *testing.T) {
	counts := Counts{Book: 1, Hat: 2, Ball: 3}
	seen := map[string]bool{}
	Lattice(counts, func(a Allocation) bool {
		seen[a.String()] = true
		return true
	})
	require.Len(t, seen, counts.Total())
	require.Equal(t, 24, counts.Total())
	require.True(t, seen[Allocation{Book: 0, Hat: 0, Ball: 0}.String()])
	require.True(t, seen[Allocation{Book: 1, Hat: 2, Ball: 3}.String()])
}

func TestLatticeEmptyItems(t *testing.T) {
	n := 0
	Lattice(Counts{Book: 0, Hat: 0, Ball: 0}, func(Allocation) bool { n++; return true })
	require.Equal(t, 1, n)
}

func TestParetoOptimal(t *testing.T) {
	cfg := DefaultConfig()
	va, vb := cfg.Values[SeatA], cfg.Values[SeatB]

	t.Run("unique joint maximizer is optimal", func(t *testing.T) {
		// A values hats most, B values books and balls most relative to A.
		best := Allocation{Book: 0, Hat: 2, Ball: 0}
		require.Equal(t, MaxJointScore(cfg.Counts, va, vb),
			Score(va, best)+Score(vb, cfg.Counts.Complement(best)))
		require.True(t, ParetoOptimal(cfg.Counts, va, vb, best, SelfInterested))
		require.True(t, ParetoOptimal(cfg.Counts, va, vb, best, Cooperative))
	})

	t.Run("giving A only the book is dominated", func(t *testing.T) {
		// A=1 B=8; A taking the hats instead and giving up the book yields A=6 B=8.
		require.False(t, ParetoOptimal(cfg.Counts, va, vb, Allocation{Book: 1, Hat: 0, Ball: 0}, SelfInterested))
	})

	t.Run("all to one side is undominated under self interest", func(t *testing.T) {
		require.True(t, ParetoOptimal(cfg.Counts, va, vb, Allocation(cfg.Counts), SelfInterested))
		require.True(t, ParetoOptimal(cfg.Counts, va, vb, Allocation{Book: 0, Hat: 0, Ball: 0}, SelfInterested))
	})

	t.Run("competitive outcomes are never dominated", func(t *testing.T) {
		Lattice(cfg.Counts, func(a Allocation) bool {
			require.True(t, ParetoOptimal(cfg.Counts, va, vb, a, Competitive))
			return true
		})
	})

	t.Run("uses both agents' candidate scores", func(t *testing.T) {
		// With equal values every split sums to the same total, so nothing
		// dominates anything. Comparing a candidate score with itself would
		// still report a strict improvement somewhere.
		v := Values{Book: 1, Hat: 1, Ball: 1}
		Lattice(cfg.Counts, func(a Allocation) bool {
			require.True(t, ParetoOptimal(cfg.Counts, v, v, a, SelfInterested), a.String())
			return true
		})
	})

	t.Run("zero outcome is dominated when anything has value", func(t *testing.T) {
		require.False(t, ParetoOptimalScores(cfg.Counts, va, vb, SelfInterested, 0, 0))
	})
}

func TestMaxJointScore(t *testing.T) {
	cfg := DefaultConfig()
	// book->B (2), hats->A (6), balls->B (6)
	require.Equal(t, 14, MaxJointScore(cfg.Counts, cfg.Values[SeatA], cfg.Values[SeatB]))
}
