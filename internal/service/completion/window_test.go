package completion_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/jac-chat/backend/internal/service/completion"
)

// wordCounter counts whitespace-separated words.
type wordCounter struct{}

func (wordCounter) Count(text string) int { return len(strings.Fields(text)) }

func turns(contents ...string) []completion.Turn {
	out := make([]completion.Turn, 0, len(contents))
	for _, c := range contents {
		out = append(out, completion.Turn{Role: "user", Content: c})
	}
	return out
}

func TestWindowLimit(t *testing.T) {
	w := completion.Window{Limit: 2}

	got := w.Apply(turns("a", "b", "c"))
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Content)
	assert.Equal(t, "c", got[1].Content)
}

func TestWindowUnlimited(t *testing.T) {
	assert.Len(t, completion.Window{}.Apply(turns("a", "b", "c")), 3)
	assert.Nil(t, completion.Window{Limit: 3}.Apply(nil))
}

func TestWindowTokenBudgetDropsOldest(t *testing.T) {
	// each turn costs words + 4
	w := completion.Window{MaxTokens: 12, Counter: wordCounter{}}

	got := w.Apply(turns("one two three", "four five", "six"))
	require.Len(t, got, 2)
	assert.Equal(t, "four five", got[0].Content)
	assert.Equal(t, "six", got[1].Content)
}

func TestWindowAlwaysKeepsNewestTurn(t *testing.T) {
	w := completion.Window{MaxTokens: 1, Counter: wordCounter{}}

	got := w.Apply(turns("old", "a very long newest prompt"))
	require.Len(t, got, 1)
	assert.Equal(t, "a very long newest prompt", got[0].Content)
}

func TestTiktokenCounter(t *testing.T) {
	counter, err := completion.NewTokenCounter()
	require.NoError(t, err)

	assert.Greater(t, counter.Count("what is 2+2?"), 0)
	assert.Greater(t, counter.Count(strings.Repeat("hello ", 50)), counter.Count("hello"))
}
