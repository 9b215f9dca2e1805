package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestGame(t *testing.T, first Seat) *Game {
	t.Helper()
	cfg := DefaultConfig()
	cfg.First = first
	g, err := NewGame(cfg)
	require.NoError(t, err)
	return g
}

// play checks and applies a response for whoever is to act.
func play(t *testing.T, g *Game, text string) Effect {
	t.Helper()
	turn, err := g.Check(text)
	require.NoError(t, err, text)
	eff, err := g.Apply(turn)
	require.NoError(t, err, text)
	return eff
}

func requireRejected(t *testing.T, g *Game, text string) string {
	t.Helper()
	_, err := g.Check(text)
	var rej *Rejection
	require.True(t, errors.As(err, &rej), "expected rejection for %q, got %v", text, err)
	require.NotEmpty(t, rej.Feedback)
	return rej.Feedback
}

func TestGameValidDeal(t *testing.T) {
	g := newTestGame(t, SeatA)
	play(t, g, "[message] I'd like the book, you can have everything else.")
	play(t, g, "[message] Deal.")
	eff := play(t, g, "[propose] (1 books, 0 hats, 0 balls)")
	require.Equal(t, ProposalRelay, eff.Relay)
	require.False(t, eff.Closed)
	require.True(t, g.DealProposed())

	eff = play(t, g, "[propose] (0 books, 2 hats, 3 balls)")
	require.True(t, eff.Closed)
	require.Equal(t, StatusDealClosed, g.Status())

	out, err := g.Outcome(42)
	require.NoError(t, err)
	require.True(t, out.ValidDeal)
	require.False(t, out.Abort)
	require.Equal(t, 1, out.P0Score)
	require.Equal(t, 8, out.P1Score)
	require.Equal(t, 4, out.MessageCount)
	require.Equal(t, 42, out.TokenCount)
}

func TestGameIncompatibleProposalsStillClose(t *testing.T) {
	g := newTestGame(t, SeatA)
	play(t, g, "[message] Let's each take one of everything.")
	play(t, g, "[propose] (1 books, 1 hats, 1 balls)")
	eff := play(t, g, "[propose] (1 books, 1 hats, 1 balls)")
	require.True(t, eff.Closed)

	out, err := g.Outcome(0)
	require.NoError(t, err)
	require.False(t, out.ValidDeal)
	require.Zero(t, out.P0Score)
	require.Zero(t, out.P1Score)
}

func TestGameObjectivesOnValidDeal(t *testing.T) {
	for _, obj := range []Objective{Cooperative, Competitive} {
		cfg := DefaultConfig()
		cfg.Objective = obj
		g, err := NewGame(cfg)
		require.NoError(t, err)
		play(t, g, "[message] hi")
		play(t, g, "[propose] (0 books, 2 hats, 0 balls)")
		play(t, g, "[propose] (1 books, 0 hats, 3 balls)")
		out, err := g.Outcome(0)
		require.NoError(t, err)
		switch obj {
		case Cooperative:
			require.Equal(t, 14, out.P0Score)
			require.Equal(t, out.P0Score, out.P1Score)
		case Competitive:
			require.Equal(t, -2, out.P0Score)
			require.Equal(t, -out.P0Score, out.P1Score)
		}
	}
}

func TestGameAbortOnFirstTurn(t *testing.T) {
	g := newTestGame(t, SeatB)
	eff := play(t, g, "  [ABORT] ")
	require.True(t, eff.Closed)
	require.Equal(t, StatusAborted, g.Status())

	out, err := g.Outcome(0)
	require.NoError(t, err)
	require.True(t, out.Abort)
	require.Zero(t, out.P0Score)
	require.Zero(t, out.P1Score)
	require.Equal(t, 1, out.MessageCount)

	_, err = g.Check("[message] anyone there?")
	require.ErrorIs(t, err, ErrGameOver)
}

func TestGameMessageLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTurns = 4
	g, err := NewGame(cfg)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.False(t, play(t, g, "[message] hmm").Closed)
	}
	require.True(t, play(t, g, "[message] hmm").Closed)
	require.Equal(t, StatusMessageLimit, g.Status())

	out, err := g.Outcome(0)
	require.NoError(t, err)
	require.False(t, out.ValidDeal)
	require.False(t, out.Abort)
	require.Zero(t, out.P0Score)
}

func TestGameTurnOrder(t *testing.T) {
	g := newTestGame(t, SeatB)
	require.Equal(t, SeatB, g.ToAct())
	play(t, g, "[message] you first")
	require.Equal(t, SeatA, g.ToAct())

	_, err := g.Apply(Turn{Seat: SeatB, Kind: TurnMessage, Text: "[message] again"})
	require.ErrorIs(t, err, ErrNotYourTurn)

	_, err = g.Outcome(0)
	require.ErrorIs(t, err, ErrNotOver)
}

func TestValidatorRules(t *testing.T) {
	t.Run("untagged output", func(t *testing.T) {
		g := newTestGame(t, SeatA)
		fb := requireRejected(t, g, "I want the hats.")
		require.Contains(t, fb, "[message]")
	})

	t.Run("proposal before any message", func(t *testing.T) {
		g := newTestGame(t, SeatA)
		fb := requireRejected(t, g, "[propose] (1 books, 0 hats, 0 balls)")
		require.Contains(t, fb, "begin the dialogue")
	})

	t.Run("smuggled marker in message", func(t *testing.T) {
		g := newTestGame(t, SeatA)
		requireRejected(t, g, "[message] ok [propose] (1 books, 0 hats, 0 balls)")
		requireRejected(t, g, "[message] fine [message] really")
	})

	t.Run("message owed a proposal", func(t *testing.T) {
		g := newTestGame(t, SeatA)
		play(t, g, "[message] hi")
		play(t, g, "[propose] (1 books, 0 hats, 0 balls)")
		fb := requireRejected(t, g, "[message] wait, what did you propose?")
		require.Contains(t, fb, "proposal of your own")
	})

	t.Run("proposal format", func(t *testing.T) {
		g := newTestGame(t, SeatA)
		play(t, g, "[message] hi")
		play(t, g, "[message] hello")

		fb := requireRejected(t, g, "[propose] (2 hats, 1 books, 0 balls)")
		require.Contains(t, fb, "books, hats, and then balls")
		requireRejected(t, g, "[propose] (1 books, 2 hats)")
		requireRejected(t, g, "[propose] (1 books, 1 books, 2 hats, 0 balls)")

		fb = requireRejected(t, g, "[propose] (1 books, 2 hats, 3 balls, 4)")
		require.Contains(t, fb, "only be counts for 3 items")

		fb = requireRejected(t, g, "[propose] (2 books, 0 hats, 0 balls)")
		require.Contains(t, fb, "greater than total")
		fb = requireRejected(t, g, "[propose] (-1 books, 2 hats, 3 balls)")
		require.Contains(t, fb, "invalid based on game context")

		turn, err := g.Check("[propose] (1 book, 2 hats, 0 balls)")
		require.NoError(t, err)
		require.Equal(t, Allocation{Book: 1, Hat: 2, Ball: 0}, turn.Proposal)
		require.Equal(t, SeatA, turn.Seat)
	})
}

func TestNewGameRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Counts = Counts{Book: 1, Hat: 2}
	_, err := NewGame(cfg)
	require.Error(t, err)

	cfg = DefaultConfig()
	cfg.Objective = "greedy"
	_, err = NewGame(cfg)
	require.Error(t, err)
}
