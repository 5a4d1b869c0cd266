package completion

import (
	"github.com/pkg/errors"
	"github.com/tiktoken-go/tokenizer"
)

// perTurnOverhead approximates the role/separator tokens the chat format adds.
const perTurnOverhead = 4

// TokenCounter counts prompt tokens for a piece of text.
type TokenCounter interface {
	Count(text string) int
}

type tiktokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter returns a cl100k_base counter, the encoding used by gpt-4.
func NewTokenCounter() (TokenCounter, error) {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, errors.Wrap(err, "load cl100k_base encoding")
	}
	return &tiktokenCounter{codec: codec}, nil
}

func (c *tiktokenCounter) Count(text string) int {
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		// rough fallback: ~4 characters per token
		return len(text)/4 + 1
	}
	return len(ids)
}

// Window selects which turns of a conversation are sent.
type Window struct {
	// Limit keeps at most this many newest turns. Zero keeps all.
	Limit int
	// MaxTokens drops the oldest turns until the prompt fits. Zero disables.
	MaxTokens int
	Counter   TokenCounter
}

// Apply returns the trimmed conversation. The newest turn is always kept.
func (w Window) Apply(turns []Turn) []Turn {
	if len(turns) == 0 {
		return nil
	}

	start := 0
	if w.Limit > 0 && len(turns) > w.Limit {
		start = len(turns) - w.Limit
	}
	kept := append([]Turn(nil), turns[start:]...)

	if w.MaxTokens <= 0 || w.Counter == nil {
		return kept
	}

	total := 0
	for i := len(kept) - 1; i >= 0; i-- {
		total += w.Counter.Count(kept[i].Content) + perTurnOverhead
		if total > w.MaxTokens && i < len(kept)-1 {
			return kept[i+1:]
		}
	}
	return kept
}
