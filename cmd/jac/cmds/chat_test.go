package cmds

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chatService "github.com/zhouzirui/jac-chat/backend/internal/service/chat"
	"github.com/zhouzirui/jac-chat/backend/internal/service/completion"
)

type upperCompleter struct{}

func (upperCompleter) Complete(_ context.Context, req completion.Request) (*completion.Response, error) {
	last := req.Messages[len(req.Messages)-1]
	return &completion.Response{Choices: []completion.Choice{{Message: completion.Turn{Content: strings.ToUpper(last.Content)}}}}, nil
}

func TestRunChatPrintsGreetingAndReplies(t *testing.T) {
	clock := time.Date(2024, 1, 1, 9, 5, 0, 0, time.UTC)
	controller, err := chatService.NewController(chatService.Options{
		Completer: upperCompleter{},
		Now:       func() time.Time { return clock },
	})
	require.NoError(t, err)

	var out bytes.Buffer
	in := strings.NewReader("hello\n   \n/quit\nnever sent\n")
	require.NoError(t, runChat(context.Background(), in, &out, controller, false))

	got := out.String()
	assert.Contains(t, got, "JAC  09:05 AM\nHey there! Ask Away!")
	assert.Contains(t, got, "HELLO")
	assert.NotContains(t, got, "NEVER SENT")
	assert.Equal(t, 3, controller.Log().Len())
}

func TestRunChatStopsAtEOF(t *testing.T) {
	controller, err := chatService.NewController(chatService.Options{Completer: upperCompleter{}})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, runChat(context.Background(), strings.NewReader("hi"), &out, controller, false))
	assert.Equal(t, 3, controller.Log().Len())
}
