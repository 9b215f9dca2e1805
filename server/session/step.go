package session

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"negotiation-bench/server/engine"
)

// FinalScores is the end-of-game summary sent to an interactive player.
type FinalScores struct {
	UserScore      int  `json:"user_score"`
	AssistantScore int  `json:"assistant_score"`
	ValidDeal      bool `json:"valid_deal"`
	Abort          bool `json:"abort"`
}

type Proposals struct {
	User      engine.Allocation `json:"user"`
	Assistant engine.Allocation `json:"assistant"`
}

// StepResult answers one interactive message.
type StepResult struct {
	// Message is the assistant's reply as the user should see it.
	Message     string       `json:"message"`
	GameOver    bool         `json:"game_over"`
	FinalScores *FinalScores `json:"final_scores,omitempty"`
	Proposals   *Proposals   `json:"proposals,omitempty"`
	// Feedback is set when the user's message was rejected and must be resent.
	Feedback string `json:"feedback,omitempty"`
}

// AbortNotice replaces the raw abort marker when the assistant gives up.
const AbortNotice = "Model errored. Aborting game."

// Interactive is a match between a person at User and a generator in the other seat.
type Interactive struct {
	*Match
	User engine.Seat
}

func (s *Interactive) Assistant() engine.Seat { return s.User.Other() }

// Open lets the assistant move first when the coin gave it the opening turn.
// The returned message is empty when the user opens.
func (s *Interactive) Open(ctx context.Context) (StepResult, error) {
	if s.Game.ToAct() != s.Assistant() || s.Game.Over() {
		return StepResult{}, nil
	}
	return s.assistantTurn(ctx)
}

// Step applies one user message and, unless that ended the game, the assistant's reply.
func (s *Interactive) Step(ctx context.Context, text string) (StepResult, error) {
	eff, err := s.Submit(s.User, text)
	var rej *engine.Rejection
	if errors.As(err, &rej) {
		return StepResult{Feedback: rej.Feedback}, nil
	}
	if err != nil {
		return StepResult{}, err
	}
	if eff.Closed {
		return s.finish("")
	}
	return s.assistantTurn(ctx)
}

// assistantTurn plays the assistant's reply. A reply that runs past the step
// deadline aborts the game for the assistant.
func (s *Interactive) assistantTurn(ctx context.Context) (StepResult, error) {
	eff, err := s.TakeTurn(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		log.Warn().Err(err).Str("player", s.Players[s.Assistant()].Name).Msg("assistant timed out, aborting")
		eff, err = s.apply(engine.AbortTurn(s.Assistant()))
	}
	if err != nil {
		return StepResult{}, err
	}
	if eff.Turn.Kind == engine.TurnAbort {
		return s.finish(AbortNotice)
	}
	if eff.Closed {
		return s.finish(eff.Relay)
	}
	return StepResult{Message: eff.Relay}, nil
}

func (s *Interactive) finish(msg string) (StepResult, error) {
	out, err := s.Outcome()
	if err != nil {
		return StepResult{}, err
	}
	scores := out.Scores()
	return StepResult{
		Message:  msg,
		GameOver: true,
		FinalScores: &FinalScores{
			UserScore:      scores[s.User],
			AssistantScore: scores[s.Assistant()],
			ValidDeal:      out.ValidDeal,
			Abort:          out.Abort,
		},
		Proposals: &Proposals{
			User:      s.Game.Proposal(s.User),
			Assistant: s.Game.Proposal(s.Assistant()),
		},
	}, nil
}
