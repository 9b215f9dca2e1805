package agent

import "context"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a chat history, in the shape chat APIs and
// fine-tuning files expect.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// History is an agent's view of the dialogue. The agent's own turns are
// assistant messages, the opponent's are user messages.
type History []Message

func (h *History) Add(role Role, content string) {
	*h = append(*h, Message{Role: role, Content: content})
}

// Last returns the most recent message, or a zero Message.
func (h History) Last() Message {
	if len(h) == 0 {
		return Message{}
	}
	return h[len(h)-1]
}

// Clone copies the history so callers can't mutate ours.
func (h History) Clone() History {
	out := make(History, len(h))
	copy(out, h)
	return out
}

// Generator produces a candidate response for a history. It is the only place a
// game waits on the outside world.
type Generator interface {
	Generate(ctx context.Context, history History) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, history History) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, history History) (string, error) {
	return f(ctx, history)
}
