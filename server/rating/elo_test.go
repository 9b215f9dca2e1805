package rating

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEloStartsEven(t *testing.T) {
	e := NewElo(1500, 24)
	require.InDelta(t, 0.5, e.Expected(), 1e-9)
}

func TestEloTieLeavesEvenRatings(t *testing.T) {
	e := NewElo(1500, 24)
	dA, dB := e.UpdateFromGame(0, 10)
	require.Zero(t, dA)
	require.Zero(t, dB)
	require.Equal(t, 1, e.Games)
}

func TestEloWinnerGains(t *testing.T) {
	e := NewElo(1500, 24)
	dA, dB := e.UpdateFromGame(6, 10)
	require.Greater(t, dA, 0.0)
	require.InDelta(t, -dA, dB, 1e-9)
	require.Greater(t, e.A, e.B)
	require.Greater(t, e.Expected(), 0.5)

	// a bigger margin moves ratings further
	small, big := NewElo(1500, 24), NewElo(1500, 24)
	s, _ := small.UpdateFromGame(1, 10)
	b, _ := big.UpdateFromGame(9, 10)
	require.Greater(t, b, s)
}

func TestEloUpdateResult(t *testing.T) {
	e := NewElo(1500, 32)
	dA, dB := e.UpdateResult(1, 0)
	require.InDelta(t, 16, dA, 1e-9)
	require.InDelta(t, -16, dB, 1e-9)
}

func TestEloZeroScale(t *testing.T) {
	e := NewElo(1500, 24)
	dA, _ := e.UpdateFromGame(5, 0)
	require.Zero(t, dA)
}
