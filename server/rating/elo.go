// Package rating tracks Elo between the two models of a cross-play batch.
package rating

import "math"

// Elo holds ratings for model A and B.
type Elo struct {
	A, B  float64 // ratings
	K     float64 // base K
	Games int     // games processed
}

func NewElo(start, k float64) Elo { return Elo{A: start, B: start, K: k} }

func (e Elo) expect() (ea, eb float64) {
	ea = 1.0 / (1.0 + math.Pow(10, (e.B-e.A)/400.0))
	return ea, 1.0 - ea
}

// Expected returns A's expected score against B.
func (e Elo) Expected() float64 {
	ea, _ := e.expect()
	return ea
}

// UpdateFromGame applies one game → returns applied deltas (dA, dB).
// marginA = A's final score minus B's; scale is the most points the game could
// hand out (joint best split), used to normalize the margin.
func (e *Elo) UpdateFromGame(marginA, scale int) (dA, dB float64) {
	ea, eb := e.expect()

	// soft score from the normalized margin; a tie or a failed deal scores 0.5
	sA := 0.5 + 0.5*math.Tanh(norm(marginA, scale)*3.0)
	sB := 1.0 - sA

	kEff := e.K * marginScale(marginA, scale) * decay(e.Games)

	dA = kEff * (sA - ea)
	dB = kEff * (sB - eb)

	e.A += dA
	e.B += dB
	e.Games++
	return dA, dB
}

// UpdateResult applies a plain win/draw/loss (sa + sb == 1).
func (e *Elo) UpdateResult(sa, sb float64) (dA, dB float64) {
	ea, eb := e.expect()
	dA = e.K * (sa - ea)
	dB = e.K * (sb - eb)
	e.A += dA
	e.B += dB
	e.Games++
	return dA, dB
}

// ---- helpers ----

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func norm(margin, scale int) float64 {
	if scale <= 0 {
		return 0
	}
	return clamp(float64(margin)/float64(scale), -1, 1)
}

func marginScale(margin, scale int) float64 {
	return 1.0 + 0.35*math.Abs(norm(margin, scale)) // ≤ 1.35
}

func decay(games int) float64 {
	return 1.0 / (1.0 + 0.01*float64(games)) // slow anneal
}
