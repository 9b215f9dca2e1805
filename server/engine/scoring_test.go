package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScoreIsLinear(t *testing.T) {
	v := Values{Book: 2, Hat: 1, Ball: 3}
	x := Allocation{Book: 1, Hat: 0, Ball: 2}
	y := Allocation{Book: 0, Hat: 2, Ball: 1}
	sum := Allocation{Book: 1, Hat: 2, Ball: 3}

	require.Equal(t, Score(v, x)+Score(v, y), Score(v, sum))
	require.Equal(t, 0, Score(v, Allocation{Book: 0, Hat: 0, Ball: 0}))
	require.Equal(t, 2*Score(v, x), Score(v, Allocation{Book: 2, Hat: 0, Ball: 4}))
}

func TestScoreIsSymmetricUnderRelabeling(t *testing.T) {
	v := Values{Book: 2, Hat: 1, Ball: 3}
	a := Allocation{Book: 1, Hat: 4, Ball: 2}
	// book->hat, hat->ball, ball->book on both maps
	rv := Values{Hat: 2, Ball: 1, Book: 3}
	ra := Allocation{Hat: 1, Ball: 4, Book: 2}

	require.Equal(t, Score(v, a), Score(rv, ra))
}

func TestScorePanicsOnKeyMismatch(t *testing.T) {
	require.Panics(t, func() {
		Score(Values{Book: 1, Hat: 1, Ball: 1}, Allocation{Book: 1, Hat: 1})
	})
}

func TestFinalScores(t *testing.T) {
	a, b := FinalScores(SelfInterested, 3, 7)
	require.Equal(t, [2]int{3, 7}, [2]int{a, b})

	a, b = FinalScores(Cooperative, 3, 7)
	require.Equal(t, [2]int{10, 10}, [2]int{a, b})

	a, b = FinalScores(Competitive, 3, 7)
	require.Equal(t, [2]int{-4, 4}, [2]int{a, b})
	require.Equal(t, a, -b)
}

func TestDealScores(t *testing.T) {
	cfg := DefaultConfig()
	va, vb := cfg.Values[SeatA], cfg.Values[SeatB]

	t.Run("valid deal", func(t *testing.T) {
		pa := Allocation{Book: 1, Hat: 0, Ball: 0}
		pb := Allocation{Book: 0, Hat: 2, Ball: 3}
		require.True(t, ValidDeal(cfg.Counts, pa, pb))
		for _, obj := range []Objective{SelfInterested, Cooperative, Competitive} {
			a, b := DealScores(obj, cfg.Counts, va, vb, pa, pb)
			wa, wb := FinalScores(obj, 1, 8)
			require.Equal(t, wa, a, "objective %s", obj)
			require.Equal(t, wb, b, "objective %s", obj)
		}
	})

	t.Run("overlapping proposals score zero under every objective", func(t *testing.T) {
		p := Allocation{Book: 1, Hat: 1, Ball: 1}
		require.False(t, ValidDeal(cfg.Counts, p, p))
		for _, obj := range []Objective{SelfInterested, Cooperative, Competitive} {
			a, b := DealScores(obj, cfg.Counts, va, vb, p, p)
			require.Zero(t, a)
			require.Zero(t, b)
		}
	})

	t.Run("missing proposal", func(t *testing.T) {
		require.False(t, ValidDeal(cfg.Counts, Allocation{Book: 1, Hat: 2, Ball: 3}, nil))
	})
}

func TestParseObjective(t *testing.T) {
	for in, want := range map[string]Objective{
		"self": SelfInterested, "orig": SelfInterested,
		"coop": Cooperative, "Cooperative": Cooperative,
		"comp": Competitive,
	} {
		got, err := ParseObjective(in)
		require.NoError(t, err)
		require.Equal(t, want, got, in)
	}
	_, err := ParseObjective("selfish")
	require.Error(t, err)
}

func TestParseContext(t *testing.T) {
	counts, values, err := ParseContext("1 4 4 1 1 2")
	require.NoError(t, err)
	require.Equal(t, Counts{Book: 1, Hat: 4, Ball: 1}, counts)
	require.Equal(t, Values{Book: 4, Hat: 1, Ball: 2}, values)

	_, _, err = ParseContext("1 4 4 1")
	require.Error(t, err)
	_, _, err = ParseContext("1 4 x 1 1 2")
	require.Error(t, err)
}

func TestAllocationString(t *testing.T) {
	require.Equal(t, "(1 books, 2 hats, 3 balls)", Allocation{Book: 1, Hat: 2, Ball: 3}.String())
}
