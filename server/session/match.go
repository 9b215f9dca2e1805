// Package session drives negotiation games. A Match owns one engine.Game and
// the two participants playing it, and is used both by the batch runner (Play)
// and by interactive sessions (Step).
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/exp/rand"

	"negotiation-bench/server/agent"
	"negotiation-bench/server/engine"
	"negotiation-bench/server/prompt"
	"negotiation-bench/server/tokens"
)

// Participant is one side of a match.
type Participant struct {
	// Name identifies the player in logs and ratings (a model id, "human", "web").
	Name string
	Gen  agent.Generator
	// History is what the generator sees, rejected outputs and corrections included.
	History agent.History
	// Log is the clean dialogue: prompt plus accepted turns only.
	Log agent.History
	// Trace lists every raw response and validator error in order.
	Trace []string
}

func NewParticipant(name string, gen agent.Generator) *Participant {
	return &Participant{Name: name, Gen: gen}
}

// Match runs one game between two participants.
type Match struct {
	Config  engine.Config
	Game    *engine.Game
	Players [2]*Participant
	Policy  agent.RetryPolicy
	Tokens  tokens.Counter

	messages []string
	strikes  [2]int
}

type Option func(*Match)

func WithPolicy(p agent.RetryPolicy) Option { return func(m *Match) { m.Policy = p } }

func WithTokens(c tokens.Counter) Option { return func(m *Match) { m.Tokens = c } }

// New starts a match. Each participant's history is seeded with its private prompt.
func New(cfg engine.Config, players [2]*Participant, opts ...Option) (*Match, error) {
	g, err := engine.NewGame(cfg)
	if err != nil {
		return nil, err
	}
	m := &Match{Config: cfg, Game: g, Players: players, Policy: agent.DefaultRetryPolicy()}
	for _, o := range opts {
		o(m)
	}
	if m.Tokens == nil {
		m.Tokens = tokens.Default()
	}
	for _, seat := range []engine.Seat{engine.SeatA, engine.SeatB} {
		p := players[seat]
		if p == nil {
			return nil, fmt.Errorf("no participant in %s", seat)
		}
		text, err := prompt.For(cfg, seat)
		if err != nil {
			return nil, err
		}
		p.History.Add(agent.RoleSystem, text)
		p.Log.Add(agent.RoleSystem, text)
	}
	return m, nil
}

// FirstSeat flips a coin that lands on SeatB with probability probB.
func FirstSeat(r *rand.Rand, probB float64) engine.Seat {
	if r.Float64() < probB {
		return engine.SeatB
	}
	return engine.SeatA
}

// TakeTurn asks the seat to act for a response, retrying rejected output under
// the match policy, and applies the result.
func (m *Match) TakeTurn(ctx context.Context) (engine.Effect, error) {
	if m.Game.Over() {
		return engine.Effect{}, engine.ErrGameOver
	}
	seat := m.Game.ToAct()
	p := m.Players[seat]
	if p.Gen == nil {
		return engine.Effect{}, fmt.Errorf("%s has no generator", seat)
	}
	turn, attempts, err := m.Policy.Respond(ctx, seat, p.Gen, &p.History, m.Game.Check)
	for _, a := range attempts {
		p.Trace = append(p.Trace, a.Response, "Error: "+a.Feedback)
	}
	if err != nil {
		return engine.Effect{}, err
	}
	if turn.Kind != engine.TurnAbort || len(attempts) < m.limit() {
		p.Trace = append(p.Trace, turn.Text)
	}
	return m.apply(turn)
}

// Submit offers a response typed by the seat's player. A rejected response is
// returned as an *engine.Rejection and the seat keeps the turn; once the seat
// has been rejected as often as the policy allows, it aborts instead.
func (m *Match) Submit(seat engine.Seat, text string) (engine.Effect, error) {
	if m.Game.Over() {
		return engine.Effect{}, engine.ErrGameOver
	}
	if seat != m.Game.ToAct() {
		return engine.Effect{}, engine.ErrNotYourTurn
	}
	p := m.Players[seat]
	p.Trace = append(p.Trace, text)
	turn, err := m.Game.Check(text)
	if err != nil {
		var rej *engine.Rejection
		if !errors.As(err, &rej) {
			return engine.Effect{}, err
		}
		p.Trace = append(p.Trace, "Error: "+rej.Feedback)
		m.strikes[seat]++
		if m.strikes[seat] < m.limit() {
			return engine.Effect{}, err
		}
		log.Info().Str("player", p.Name).Int("strikes", m.strikes[seat]).Msg("too many invalid responses, aborting")
		turn = engine.AbortTurn(seat)
	}
	return m.apply(turn)
}

func (m *Match) limit() int {
	if m.Policy.MaxAttempts > 0 {
		return m.Policy.MaxAttempts
	}
	return agent.DefaultMaxAttempts
}

// apply commits an accepted turn and mirrors it into both dialogues: the actor
// sees its own text, the opponent sees the relay.
func (m *Match) apply(turn engine.Turn) (engine.Effect, error) {
	eff, err := m.Game.Apply(turn)
	if err != nil {
		return engine.Effect{}, err
	}
	m.strikes[turn.Seat] = 0
	m.messages = append(m.messages, turn.Text)

	self, other := m.Players[turn.Seat], m.Players[turn.Seat.Other()]
	self.History.Add(agent.RoleAssistant, turn.Text)
	self.Log.Add(agent.RoleAssistant, turn.Text)
	other.History.Add(agent.RoleUser, eff.Relay)
	other.Log.Add(agent.RoleUser, eff.Relay)

	log.Debug().Int("seat", int(turn.Seat)).Str("kind", string(turn.Kind)).Bool("closed", eff.Closed).Msg("turn applied")
	return eff, nil
}

// Messages returns the accepted turn texts in order.
func (m *Match) Messages() []string {
	out := make([]string, len(m.messages))
	copy(out, m.messages)
	return out
}

// Outcome scores a finished match, counting transcript tokens.
func (m *Match) Outcome() (engine.Outcome, error) {
	return m.Game.Outcome(tokens.Total(m.Tokens, m.messages))
}

// Play runs the match to completion, one turn at a time.
func (m *Match) Play(ctx context.Context) (engine.Outcome, error) {
	for !m.Game.Over() {
		if _, err := m.TakeTurn(ctx); err != nil {
			return engine.Outcome{}, err
		}
	}
	return m.Outcome()
}
