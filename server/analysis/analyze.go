// Package analysis reduces a batch of finished games to summary statistics.
// It never modifies the batch.
package analysis

import (
	"fmt"

	"golang.org/x/exp/rand"

	"negotiation-bench/server/batch"
	"negotiation-bench/server/engine"
)

// Cohort describes one subset of the per-player scores.
type Cohort struct {
	Mean         float64 `json:"mean" yaml:"mean"`
	Median       float64 `json:"median" yaml:"median"`
	LengthMsgs   float64 `json:"length_in_msgs" yaml:"length_in_msgs"`
	LengthTokens float64 `json:"length_in_tkns" yaml:"length_in_tkns"`
}

type Total struct {
	Cohort       `yaml:",inline"`
	FilteredMean float64    `json:"filtered_mean" yaml:"filtered_mean"`
	AbortRate    float64    `json:"abort_rate" yaml:"abort_rate"`
	MeanCI       [2]float64 `json:"mean_ci95" yaml:"mean_ci95"`
}

type Agreement struct {
	Cohort              `yaml:",inline"`
	ProportionAgreement float64    `json:"proportion_agreement" yaml:"proportion_agreement"`
	ProportionPareto    float64    `json:"proportion_pareto_opt" yaml:"proportion_pareto_opt"`
	AgreementCI         [2]float64 `json:"agreement_ci95" yaml:"agreement_ci95"`
}

type AboveAvg struct {
	Cohort             `yaml:",inline"`
	Cutoff             float64 `json:"cutoff" yaml:"cutoff"`
	ProportionAboveAvg float64 `json:"proportion_above_avg" yaml:"proportion_above_avg"`
}

// Report is the analysis of one batch.
type Report struct {
	Games     int       `json:"games" yaml:"games"`
	Total     Total     `json:"total" yaml:"total"`
	Agreement Agreement `json:"agreement" yaml:"agreement"`
	AboveAvg  AboveAvg  `json:"above_avg" yaml:"above_avg"`
	// Ceiling is the mean best per-player score the scenarios allow.
	Ceiling float64 `json:"ceiling" yaml:"ceiling"`
}

// Options tune Analyze. Zero values are usable.
type Options struct {
	// Objective is used for games whose result does not record one.
	Objective engine.Objective
	// Resamples for the bootstrap mean CI; 0 means 1000.
	Resamples int
	Rand      *rand.Rand
}

// Analyze reduces results. Scores are pooled across both seats, so every
// proportion over scores counts each game twice.
func Analyze(results []batch.Result, opts Options) Report {
	if opts.Resamples <= 0 {
		opts.Resamples = 1000
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(1))
	}
	n := len(results)
	rep := Report{Games: n}
	if n == 0 {
		return rep
	}

	var (
		all, agreeScores       []int
		msgs, toks             []int
		agreeMsgs, agreeToks   []int
		aborts, valid, optimal int
		ceilingSum             float64
	)
	for _, r := range results {
		all = append(all, r.P0Score)
		msgs = append(msgs, r.MessageCount)
		toks = append(toks, r.TokenCount)
		if r.Abort {
			aborts++
		}
		obj := objectiveOf(r, opts.Objective)
		ceilingSum += Ceiling(r.Counts, r.P0Values, r.P1Values, obj)
		if !r.ValidDeal {
			continue
		}
		valid++
		agreeScores = append(agreeScores, r.P0Score, r.P1Score)
		agreeMsgs = append(agreeMsgs, r.MessageCount)
		agreeToks = append(agreeToks, r.TokenCount)
		if engine.ParetoOptimalScores(r.Counts, r.P0Values, r.P1Values, obj, r.P0Score, r.P1Score) {
			optimal++
		}
	}
	for _, r := range results {
		all = append(all, r.P1Score)
	}

	rep.Total = Total{
		Cohort: Cohort{
			Mean:         Mean(all),
			Median:       Median(all),
			LengthMsgs:   Mean(msgs),
			LengthTokens: Mean(toks),
		},
		FilteredMean: Mean(Positive(all)),
		AbortRate:    float64(aborts) / float64(n),
	}
	rep.Total.MeanCI[0], rep.Total.MeanCI[1] = BootstrapCI95(opts.Rand, all, opts.Resamples)

	rep.Agreement = Agreement{
		Cohort: Cohort{
			Mean:         Mean(agreeScores),
			Median:       Median(agreeScores),
			LengthMsgs:   Mean(agreeMsgs),
			LengthTokens: Mean(agreeToks),
		},
		ProportionAgreement: float64(valid) / float64(n),
	}
	if valid > 0 {
		rep.Agreement.ProportionPareto = float64(optimal) / float64(valid)
	}
	rep.Agreement.AgreementCI[0], rep.Agreement.AgreementCI[1] = WilsonCI95(valid, n)

	cutoff := Mean(all)
	var above, aboveMsgs, aboveToks []int
	for _, seat := range []engine.Seat{engine.SeatA, engine.SeatB} {
		for _, r := range results {
			if s := r.Scores()[seat]; float64(s) > cutoff {
				above = append(above, s)
				aboveMsgs = append(aboveMsgs, r.MessageCount)
				aboveToks = append(aboveToks, r.TokenCount)
			}
		}
	}
	rep.AboveAvg = AboveAvg{
		Cohort: Cohort{
			Mean:         Mean(above),
			Median:       Median(above),
			LengthMsgs:   Mean(aboveMsgs),
			LengthTokens: Mean(aboveToks),
		},
		Cutoff:             cutoff,
		ProportionAboveAvg: float64(len(above)) / float64(len(all)),
	}
	rep.Ceiling = ceilingSum / float64(n)
	return rep
}

func objectiveOf(r batch.Result, fallback engine.Objective) engine.Objective {
	if r.Objective != "" {
		return r.Objective
	}
	if fallback != "" {
		return fallback
	}
	return engine.SelfInterested
}

// Ceiling is the best score one player can expect from a scenario when the
// pair splits the items optimally: half the joint best under self-interest,
// the joint best under cooperation, and 0 in the zero-sum game.
func Ceiling(counts engine.Counts, v0, v1 engine.Values, obj engine.Objective) float64 {
	best := float64(engine.MaxJointScore(counts, v0, v1))
	switch obj {
	case engine.Cooperative:
		return best
	case engine.Competitive:
		return 0
	default:
		return best / 2
	}
}

// AnalyzeDir loads a batch directory and analyzes it. The score ledgers must
// agree with the result files.
func AnalyzeDir(dir batch.Dir, opts Options) (Report, error) {
	results, err := dir.Results()
	if err != nil {
		return Report{}, err
	}
	if len(results) == 0 {
		return Report{}, fmt.Errorf("%s: no results", dir)
	}
	for _, seat := range []engine.Seat{engine.SeatA, engine.SeatB} {
		ledger, err := dir.ReadScores(seat)
		if err != nil {
			return Report{}, err
		}
		if len(ledger) != len(results) {
			return Report{}, fmt.Errorf("%s: %d results but %d %s scores", dir, len(results), len(ledger), seat)
		}
		for i, r := range results {
			if ledger[i] != r.Scores()[seat] {
				return Report{}, fmt.Errorf("%s: game %s: ledger score %d, result score %d", dir, batch.Index(i), ledger[i], r.Scores()[seat])
			}
		}
	}
	return Analyze(results, opts), nil
}
