package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/sirupsen/logrus"
)

const (
	encodingName = "cl100k_base"
	// runesPerToken approximates token counts when the encoding is unavailable.
	runesPerToken = 4
)

// Tokenizer counts and truncates text by model tokens.
type Tokenizer struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
	log  *logrus.Logger
}

// NewTokenizer creates a Tokenizer. The encoding loads lazily; when it cannot
// be loaded a rune-based estimate is used instead.
func NewTokenizer(log *logrus.Logger) *Tokenizer {
	return &Tokenizer{log: log}
}

func (t *Tokenizer) encoding() *tiktoken.Tiktoken {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(encodingName)
		if err != nil {
			if t.log != nil {
				t.log.WithError(err).Warn("tiktoken encoding unavailable, estimating tokens from runes")
			}

			return
		}

		t.enc = enc
	})

	return t.enc
}

// Count returns the number of tokens in text.
func (t *Tokenizer) Count(text string) int {
	if enc := t.encoding(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}

	return (len([]rune(text)) + runesPerToken - 1) / runesPerToken
}

// Truncate returns the longest prefix of text that fits in maxTokens.
func (t *Tokenizer) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}

	if enc := t.encoding(); enc != nil {
		tokens := enc.Encode(text, nil, nil)
		if len(tokens) <= maxTokens {
			return text
		}

		return enc.Decode(tokens[:maxTokens])
	}

	runes := []rune(text)
	if limit := maxTokens * runesPerToken; len(runes) > limit {
		return string(runes[:limit])
	}

	return text
}
