package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Protocol markers. Every turn starts with one of them.
const (
	MessageMarker = "[message]"
	ProposeMarker = "[propose]"
	AbortMarker   = "[ABORT]"
)

type TurnKind string

const (
	TurnMessage  TurnKind = "message"
	TurnProposal TurnKind = "propose"
	TurnAbort    TurnKind = "abort"
)

// Turn is one accepted response.
type Turn struct {
	Seat     Seat       `json:"seat"`
	Kind     TurnKind   `json:"kind"`
	Text     string     `json:"text"`
	Proposal Allocation `json:"proposal,omitempty"`
}

// AbortTurn is what a seat plays when it gives up or runs out of retries.
func AbortTurn(seat Seat) Turn {
	return Turn{Seat: seat, Kind: TurnAbort, Text: AbortMarker}
}

// Rejection is a validator verdict. Feedback is meant to be shown to the agent verbatim.
type Rejection struct {
	Feedback string
}

func (r *Rejection) Error() string { return "response rejected: " + r.Feedback }

func reject(feedback string) error { return &Rejection{Feedback: feedback} }

var (
	itemPattern   = regexp.MustCompile(`(?i)\b(` + itemAlternation() + `)s?\b`)
	numberPattern = regexp.MustCompile(`-?\d+`)
)

func itemAlternation() string {
	names := make([]string, len(Items))
	for i, it := range Items {
		names[i] = regexp.QuoteMeta(string(it))
	}
	return strings.Join(names, "|")
}

func itemListText() string {
	names := make([]string, len(Items))
	for i, it := range Items {
		names[i] = it.Plural()
	}
	if len(names) < 2 {
		return strings.Join(names, "")
	}
	return strings.Join(names[:len(names)-1], ", ") + ", and then " + names[len(names)-1]
}

// Check validates a candidate response for the seat to act and parses it into a Turn.
// The game is not modified.
func (g *Game) Check(response string) (Turn, error) {
	if g.Over() {
		return Turn{}, ErrGameOver
	}
	msg := strings.TrimSpace(response)
	seat := g.ToAct()
	switch {
	case msg == AbortMarker:
		return AbortTurn(seat), nil
	case strings.HasPrefix(msg, ProposeMarker):
		return g.checkProposal(seat, msg)
	case strings.HasPrefix(msg, MessageMarker):
		return g.checkMessage(seat, msg)
	}
	return Turn{}, reject("Your output should either begin with [message] or a [propose].")
}

func (g *Game) checkMessage(seat Seat, msg string) (Turn, error) {
	rest := msg[len(MessageMarker):]
	for _, m := range []string{MessageMarker, ProposeMarker, AbortMarker} {
		if strings.Contains(rest, m) {
			return Turn{}, reject("Do not include any mentions of [message] or [propose] after the initial prefix. Please just send a single message, beginning with [message].")
		}
	}
	if g.dealProposed {
		return Turn{}, reject("Opponent's proposal must be followed by a proposal of your own. Please send a proposal, beginning with [propose].")
	}
	return Turn{Seat: seat, Kind: TurnMessage, Text: msg}, nil
}

func (g *Game) checkProposal(seat Seat, msg string) (Turn, error) {
	if !g.hasMessage() {
		return Turn{}, reject("Please begin the dialogue by discussing how you'll divide the items before submitting a private proposal.")
	}
	body := msg[strings.LastIndex(msg, ProposeMarker)+len(ProposeMarker):]

	named := itemPattern.FindAllStringSubmatch(body, -1)
	inOrder := len(named) == len(Items)
	for i := 0; inOrder && i < len(named); i++ {
		inOrder = strings.EqualFold(named[i][1], string(Items[i]))
	}
	if !inOrder {
		return Turn{}, reject(fmt.Sprintf("Item counts must be sequenced in the following order: %s.", itemListText()))
	}

	nums := numberPattern.FindAllString(body, -1)
	if len(nums) != len(Items) {
		return Turn{}, reject(fmt.Sprintf("There should only be counts for %d items in your proposal: %s.", len(Items), itemListText()))
	}
	alloc := make(Allocation, len(Items))
	for i, it := range Items {
		n, err := strconv.Atoi(nums[i])
		if err != nil || n < 0 || n > g.Counts[it] {
			return Turn{}, reject("Item counts suggested are invalid based on game context; some of your proposal's item counts are greater than total items available.")
		}
		alloc[it] = n
	}
	return Turn{Seat: seat, Kind: TurnProposal, Text: msg, Proposal: alloc}, nil
}

func (g *Game) hasMessage() bool {
	for _, t := range g.transcript {
		if t.Kind == TurnMessage {
			return true
		}
	}
	return false
}
