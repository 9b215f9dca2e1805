// Package tokens counts transcript tokens with the GPT-2 byte-pair encoding.
package tokens

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
	"github.com/rs/zerolog/log"
)

// Encoding is the GPT-2 vocabulary.
const Encoding = "r50k_base"

// Counter counts tokens in one message.
type Counter interface {
	Count(text string) int
}

type bpe struct{ enc *tiktoken.Tiktoken }

func (b bpe) Count(text string) int { return len(b.enc.Encode(text, nil, nil)) }

// Words approximates tokens by whitespace-separated fields.
type Words struct{}

func (Words) Count(text string) int { return len(strings.Fields(text)) }

var (
	once   sync.Once
	shared Counter
)

// Default returns the shared GPT-2 counter. The vocabulary is compiled in, so
// no network access is needed. If it cannot be loaded the word counter is used.
func Default() Counter {
	once.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
		enc, err := tiktoken.GetEncoding(Encoding)
		if err != nil {
			log.Warn().Err(err).Msg("gpt-2 encoding unavailable, counting words")
			shared = Words{}
			return
		}
		shared = bpe{enc: enc}
	})
	return shared
}

// Total sums the token counts of messages.
func Total(c Counter, messages []string) int {
	n := 0
	for _, m := range messages {
		n += c.Count(m)
	}
	return n
}
