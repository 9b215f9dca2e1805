// Package batch runs sequential self-play and cross-play experiments and
// reads and writes their on-disk layout.
package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/exp/rand"

	"negotiation-bench/server/agent"
	"negotiation-bench/server/engine"
	"negotiation-bench/server/rating"
	"negotiation-bench/server/session"
	"negotiation-bench/server/store"
	"negotiation-bench/server/tokens"
)

// NewGenerator builds the generator for one seat's model.
type NewGenerator func(model string) agent.Generator

// Runner plays NumRuns games one after another and persists each as it ends.
type Runner struct {
	Dir       Dir
	Objective engine.Objective
	// Models plays Models[0] as Player 0 and Models[1] as Player 1. Equal names mean self-play.
	Models    [2]string
	NumRuns   int
	MaxTurns  int
	Policy    agent.RetryPolicy
	Scenarios []Scenario
	Rand      *rand.Rand
	Generator NewGenerator
	Tokens    tokens.Counter
	// Sink, when set, receives every finished game after it is on disk.
	Sink store.Sink
	// Elo tracks model A against model B in cross-play. Nil for self-play.
	Elo *rating.Elo
	// OnGame is called after each game is persisted.
	OnGame func(i int, out engine.Outcome)
}

// Summary reports a finished run.
type Summary struct {
	Games    int
	P0Mean   float64
	P1Mean   float64
	Elapsed  time.Duration
	EloA     float64
	EloB     float64
	FirstIdx int
}

func (r *Runner) CrossPlay() bool { return r.Models[0] != r.Models[1] }

// Run plays the batch. Games are numbered after any already in the directory.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	if r.Generator == nil {
		return Summary{}, fmt.Errorf("batch: no generator")
	}
	if len(r.Scenarios) == 0 {
		return Summary{}, fmt.Errorf("batch: no scenarios")
	}
	if r.Rand == nil {
		r.Rand = rand.New(rand.NewSource(uint64(time.Now().UnixNano())))
	}
	if err := r.Dir.Prepare(); err != nil {
		return Summary{}, err
	}
	start, err := r.Dir.NextIndex()
	if err != nil {
		return Summary{}, err
	}

	began := time.Now()
	sum := Summary{FirstIdx: start}
	var p0, p1 int
	for n, sc := range Sample(r.Rand, r.Scenarios, r.NumRuns) {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		i := start + n
		out, err := r.playOne(ctx, i, sc)
		if err != nil {
			return sum, fmt.Errorf("game %s: %w", Index(i), err)
		}
		sum.Games++
		p0 += out.P0Score
		p1 += out.P1Score
		if r.OnGame != nil {
			r.OnGame(i, out)
		}
	}
	if sum.Games > 0 {
		sum.P0Mean = float64(p0) / float64(sum.Games)
		sum.P1Mean = float64(p1) / float64(sum.Games)
	}
	if r.Elo != nil {
		sum.EloA, sum.EloB = r.Elo.A, r.Elo.B
	}
	sum.Elapsed = time.Since(began)
	log.Info().Int("games", sum.Games).Float64("p0_mean", sum.P0Mean).Float64("p1_mean", sum.P1Mean).Dur("elapsed", sum.Elapsed).Msg("batch finished")
	return sum, nil
}

func (r *Runner) playOne(ctx context.Context, i int, sc Scenario) (engine.Outcome, error) {
	cfg := sc.Config(r.Objective, r.MaxTurns, session.FirstSeat(r.Rand, 0.5))
	players := [2]*session.Participant{
		session.NewParticipant(r.Models[0], r.Generator(r.Models[0])),
		session.NewParticipant(r.Models[1], r.Generator(r.Models[1])),
	}
	opts := []session.Option{session.WithPolicy(r.Policy)}
	if r.Tokens != nil {
		opts = append(opts, session.WithTokens(r.Tokens))
	}
	m, err := session.New(cfg, players, opts...)
	if err != nil {
		return engine.Outcome{}, err
	}
	log.Debug().Str("game", Index(i)).Str("counts", cfg.Counts.String()).Str("first", cfg.First.String()).Msg("game started")

	out, err := m.Play(ctx)
	if err != nil {
		return engine.Outcome{}, err
	}
	if err := r.Dir.WriteGame(i, m, out); err != nil {
		return engine.Outcome{}, err
	}
	if r.Elo != nil {
		r.Elo.UpdateFromGame(out.P0Score-out.P1Score, engine.MaxJointScore(cfg.Counts, cfg.Values[0], cfg.Values[1]))
	}
	if r.Sink != nil {
		rec := store.Record{Source: "batch", Batch: string(r.Dir), Index: i, P0Model: r.Models[0], P1Model: r.Models[1], Outcome: out}
		if err := r.Sink.SaveOutcome(ctx, rec); err != nil {
			log.Warn().Err(err).Str("game", Index(i)).Msg("outcome sink failed")
		}
	}
	log.Info().Str("game", Index(i)).Str("status", string(out.Status)).Int("p0", out.P0Score).Int("p1", out.P1Score).Int("messages", out.MessageCount).Msg("game finished")
	return out, nil
}
