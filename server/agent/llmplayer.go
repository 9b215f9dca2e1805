package agent

import (
	"context"
	"strings"

	"negotiation-bench/server/engine"
	"negotiation-bench/server/llm"
)

// ChatFunc is the completion call an LLM player makes. llm.Chat satisfies it.
type ChatFunc func(ctx context.Context, model string, messages []llm.Message, opts llm.ChatOptions) (string, error)

// LLM generates turns with a chat-completions model.
type LLM struct {
	Model       string
	Temperature float64
	MaxTokens   int
	// ReasoningEffort is passed through for reasoning models; empty leaves it unset.
	ReasoningEffort string
	Chat            ChatFunc
}

func NewLLM(model string, temperature float64) *LLM {
	return &LLM{Model: model, Temperature: temperature, MaxTokens: llm.DefaultMaxOutputTokens, Chat: llm.Chat}
}

func (p *LLM) Generate(ctx context.Context, history History) (string, error) {
	msgs := make([]llm.Message, len(history))
	for i, m := range history {
		msgs[i] = llm.Message{Role: string(m.Role), Content: m.Content}
	}
	temp := p.Temperature
	limit := p.MaxTokens
	if limit <= 0 {
		limit = llm.DefaultMaxOutputTokens
	}
	chat := p.Chat
	if chat == nil {
		chat = llm.Chat
	}
	out, err := chat(ctx, p.Model, msgs, llm.ChatOptions{Temperature: &temp, MaxOutputTokens: &limit, ReasoningEffort: p.ReasoningEffort})
	if err != nil {
		return "", err
	}
	return Clean(out), nil
}

// Clean cuts model output at the first end marker and keeps only the first
// line of a proposal.
func Clean(out string) string {
	text := strings.TrimSpace(out)
	for _, end := range []string{"[END]", "[end]"} {
		if i := strings.Index(text, end); i >= 0 {
			text = strings.TrimSpace(text[:i])
			break
		}
	}
	if strings.HasPrefix(text, engine.ProposeMarker) {
		if i := strings.IndexByte(text, '\n'); i >= 0 {
			text = strings.TrimSpace(text[:i])
		}
	}
	return text
}
