package engine

import (
	"errors"
	"fmt"
)

// DefaultMaxTurns is the total number of turns (both agents) before the game is cut off.
const DefaultMaxTurns = 50

var (
	ErrGameOver    = errors.New("game is over")
	ErrNotOver     = errors.New("game is still running")
	ErrNotYourTurn = errors.New("not this seat's turn")
)

// Status is where the game stands.
type Status string

const (
	StatusActive       Status = "active"
	StatusDealClosed   Status = "deal_closed"
	StatusAborted      Status = "aborted"
	StatusMessageLimit Status = "message_limit_exceeded"
)

// ProposalRelay is what the opponent sees in place of a proposal.
const ProposalRelay = "[propose] Proposal made. You must now respond with a proposal of your own. If you've discussed that you should receive a certain combination of items, this proposal should reflect that. Keep in mind that you and your partner's proposals should be complementary - when added, the elementwise sum should exactly equal the total item counts."

// Config fixes everything about a game that does not change while it runs.
type Config struct {
	Counts    Counts
	Values    [2]Values
	Objective Objective
	MaxTurns  int
	First     Seat
}

// DefaultConfig is the reference scenario: 1 book, 2 hats, 3 balls.
func DefaultConfig() Config {
	return Config{
		Counts:    Counts{Book: 1, Hat: 2, Ball: 3},
		Values:    [2]Values{{Book: 1, Hat: 3, Ball: 1}, {Book: 2, Hat: 1, Ball: 2}},
		Objective: SelfInterested,
		MaxTurns:  DefaultMaxTurns,
	}
}

// Game is the negotiation state. It only changes through Apply.
type Game struct {
	Counts    Counts
	Values    [2]Values
	Objective Objective
	MaxTurns  int

	toAct        Seat
	dealProposed bool
	status       Status
	proposals    [2]Allocation
	transcript   []Turn
}

func NewGame(cfg Config) (*Game, error) {
	if err := checkKeys(cfg.Counts); err != nil {
		return nil, fmt.Errorf("counts: %w", err)
	}
	for i, v := range cfg.Values {
		if err := checkKeys(v); err != nil {
			return nil, fmt.Errorf("values[%d]: %w", i, err)
		}
	}
	switch cfg.Objective {
	case SelfInterested, Cooperative, Competitive:
	default:
		return nil, fmt.Errorf("invalid objective %q", cfg.Objective)
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.First != SeatA && cfg.First != SeatB {
		return nil, fmt.Errorf("invalid first seat %d", cfg.First)
	}
	return &Game{
		Counts:    cfg.Counts,
		Values:    cfg.Values,
		Objective: cfg.Objective,
		MaxTurns:  cfg.MaxTurns,
		toAct:     cfg.First,
		status:    StatusActive,
	}, nil
}

func (g *Game) ToAct() Seat        { return g.toAct }
func (g *Game) DealProposed() bool { return g.dealProposed }
func (g *Game) Status() Status     { return g.status }
func (g *Game) Over() bool         { return g.status != StatusActive }

func (g *Game) Proposal(s Seat) Allocation { return g.proposals[s] }

// Transcript returns a copy of the accepted turns so far.
func (g *Game) Transcript() []Turn {
	out := make([]Turn, len(g.transcript))
	copy(out, g.transcript)
	return out
}

// Effect tells the driver what to show each side after a turn.
type Effect struct {
	Turn Turn
	// Relay is the text the opponent receives.
	Relay string
	// Closed is true when this turn ended the game.
	Closed bool
}

// Apply records an accepted turn for the seat to act and hands the turn over.
func (g *Game) Apply(t Turn) (Effect, error) {
	if g.Over() {
		return Effect{}, ErrGameOver
	}
	if t.Seat != g.toAct {
		return Effect{}, ErrNotYourTurn
	}
	eff := Effect{Turn: t, Relay: t.Text}
	switch t.Kind {
	case TurnAbort:
		g.status = StatusAborted
	case TurnMessage:
		if g.dealProposed {
			return Effect{}, fmt.Errorf("message after proposal: %w", reject("a proposal is owed"))
		}
	case TurnProposal:
		if err := checkKeys(t.Proposal); err != nil {
			return Effect{}, fmt.Errorf("proposal from %s: %w", t.Seat, err)
		}
		eff.Relay = ProposalRelay
		g.proposals[t.Seat] = t.Proposal
		if g.dealProposed && g.proposals[t.Seat.Other()] != nil {
			g.status = StatusDealClosed
		}
		g.dealProposed = true
	default:
		return Effect{}, fmt.Errorf("unknown turn kind %q", t.Kind)
	}
	g.transcript = append(g.transcript, t)
	if !g.Over() && len(g.transcript) >= g.MaxTurns {
		g.status = StatusMessageLimit
	}
	g.toAct = t.Seat.Other()
	eff.Closed = g.Over()
	return eff, nil
}

// Outcome is the read-only result of a finished game.
type Outcome struct {
	Counts       Counts     `json:"counts"`
	P0Values     Values     `json:"p0_values"`
	P1Values     Values     `json:"p1_values"`
	P0Allocation Allocation `json:"p0_allocation"`
	P1Allocation Allocation `json:"p1_allocation"`
	P0Score      int        `json:"p0_score"`
	P1Score      int        `json:"p1_score"`
	MessageCount int        `json:"message_count"`
	TokenCount   int        `json:"token_count"`
	ValidDeal    bool       `json:"is_valid_deal"`
	Abort        bool       `json:"abort"`
	Status       Status     `json:"status"`
	Objective    Objective  `json:"objective"`
}

// Scores returns the two final scores indexed by seat.
func (o Outcome) Scores() [2]int { return [2]int{o.P0Score, o.P1Score} }

// Outcome scores the finished game. tokens is the transcript token count,
// which the engine does not compute itself.
func (g *Game) Outcome(tokens int) (Outcome, error) {
	if !g.Over() {
		return Outcome{}, ErrNotOver
	}
	pa, pb := g.proposals[SeatA], g.proposals[SeatB]
	a, b := DealScores(g.Objective, g.Counts, g.Values[SeatA], g.Values[SeatB], pa, pb)
	return Outcome{
		Counts:       g.Counts,
		P0Values:     g.Values[SeatA],
		P1Values:     g.Values[SeatB],
		P0Allocation: pa,
		P1Allocation: pb,
		P0Score:      a,
		P1Score:      b,
		MessageCount: len(g.transcript),
		TokenCount:   tokens,
		ValidDeal:    ValidDeal(g.Counts, pa, pb),
		Abort:        g.status == StatusAborted,
		Status:       g.status,
		Objective:    g.Objective,
	}, nil
}
