package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
)

// Human reads turns from a terminal. The first read shows the game prompt with
// the item counts and the player's values; every read shows the latest message
// the player has not answered yet.
type Human struct {
	in  *bufio.Scanner
	out io.Writer
	// briefed is the last game prompt shown
	briefed string
}

func NewHuman(in io.Reader, out io.Writer) *Human {
	return &Human{in: bufio.NewScanner(in), out: out}
}

func (h *Human) Generate(ctx context.Context, history History) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(history) > 0 && history[0].Role == RoleSystem && history[0].Content != h.briefed {
		h.briefed = history[0].Content
		fmt.Fprintln(h.out, h.briefed)
		fmt.Fprintln(h.out)
	}
	if last := history.Last(); last.Role == RoleUser {
		fmt.Fprintln(h.out, last.Content)
	}
	fmt.Fprint(h.out, "> ")
	if !h.in.Scan() {
		if err := h.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return h.in.Text(), nil
}

// ErrScriptExhausted is returned by Scripted once its lines run out.
var ErrScriptExhausted = errors.New("script exhausted")

// Scripted replays fixed responses in order. Tests and dry runs use it.
type Scripted struct {
	Lines []string
	next  int
}

func NewScripted(lines ...string) *Scripted { return &Scripted{Lines: lines} }

func (s *Scripted) Generate(ctx context.Context, _ History) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.next >= len(s.Lines) {
		return "", ErrScriptExhausted
	}
	line := s.Lines[s.next]
	s.next++
	return line, nil
}
