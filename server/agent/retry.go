package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"negotiation-bench/server/engine"
)

// DefaultMaxAttempts is how many rejected responses a turn tolerates before it aborts.
const DefaultMaxAttempts = 5

// Checker validates a response and parses it into a turn.
type Checker func(response string) (engine.Turn, error)

// Attempt is one rejected response and the feedback it drew.
type Attempt struct {
	Response string `json:"response"`
	Feedback string `json:"feedback"`
}

// RetryPolicy bounds how often an agent may resend a malformed turn.
type RetryPolicy struct {
	MaxAttempts int
	// Correction turns validator feedback into the message the agent sees next.
	Correction func(feedback string) string
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultMaxAttempts, Correction: CorrectionPrompt}
}

// CorrectionPrompt asks the agent to resend without acknowledging the fix.
func CorrectionPrompt(feedback string) string {
	return fmt.Sprintf("An error occurred. Please resend the previous message with the following correction, without indicating in any way that you have made a correction to a prior message: \n \"%s\" ", feedback)
}

const generatorFailure = "Your output was empty or could not be read. Your output should either begin with [message] or a [propose]."

// Respond asks gen for a turn until check accepts it. Every rejected response and its
// correction are appended to history so the next attempt sees them. After MaxAttempts
// rejections the seat aborts. Context errors and non-rejection check errors are returned.
func (p RetryPolicy) Respond(ctx context.Context, seat engine.Seat, gen Generator, history *History, check Checker) (engine.Turn, []Attempt, error) {
	limit := p.MaxAttempts
	if limit <= 0 {
		limit = DefaultMaxAttempts
	}
	correction := p.Correction
	if correction == nil {
		correction = CorrectionPrompt
	}

	var attempts []Attempt
	for len(attempts) < limit {
		if err := ctx.Err(); err != nil {
			return engine.Turn{}, attempts, err
		}
		text, err := gen.Generate(ctx, history.Clone())
		var feedback string
		switch {
		case err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
			return engine.Turn{}, attempts, err
		case err != nil:
			log.Warn().Err(err).Int("seat", int(seat)).Msg("generator failed")
			feedback = generatorFailure
		case strings.TrimSpace(text) == "":
			feedback = generatorFailure
		default:
			turn, cerr := check(text)
			if cerr == nil {
				return turn, attempts, nil
			}
			var rej *engine.Rejection
			if !errors.As(cerr, &rej) {
				return engine.Turn{}, attempts, cerr
			}
			feedback = rej.Feedback
		}

		attempts = append(attempts, Attempt{Response: text, Feedback: feedback})
		log.Debug().Int("seat", int(seat)).Int("attempt", len(attempts)).Str("feedback", feedback).Msg("response rejected")
		if strings.TrimSpace(text) != "" {
			history.Add(RoleAssistant, text)
		}
		history.Add(RoleUser, correction(feedback))
	}
	log.Info().Int("seat", int(seat)).Int("attempts", len(attempts)).Msg("retry budget exhausted, aborting")
	return engine.AbortTurn(seat), attempts, nil
}
