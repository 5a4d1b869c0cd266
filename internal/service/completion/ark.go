package completion

import (
	"context"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/pkg/errors"
)

// ArkClient adapts an eino chat model to the Completer contract.
type ArkClient struct {
	chatModel model.BaseChatModel
}

// NewArkClient wraps chatModel.
func NewArkClient(chatModel model.BaseChatModel) *ArkClient {
	return &ArkClient{chatModel: chatModel}
}

// Complete runs a single non-streaming generation. The Ark endpoint is fixed
// when the chat model is built, so req.Model is not forwarded.
func (c *ArkClient) Complete(ctx context.Context, req Request) (*Response, error) {
	if c.chatModel == nil {
		return nil, errors.New("ark chat model is not configured")
	}

	input := make([]*schema.Message, 0, len(req.Messages))
	for _, turn := range req.Messages {
		switch turn.Role {
		case string(schema.Assistant):
			input = append(input, schema.AssistantMessage(turn.Content, nil))
		case string(schema.System):
			input = append(input, schema.SystemMessage(turn.Content))
		default:
			input = append(input, schema.UserMessage(turn.Content))
		}
	}

	opts := []model.Option{
		model.WithTemperature(float32(req.Temperature)),
		model.WithMaxTokens(req.MaxTokens),
	}

	msg, err := c.chatModel.Generate(ctx, input, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "ark generate")
	}

	out := &Response{Model: req.Model, Choices: []Choice{}}
	if msg == nil {
		return out, nil
	}

	choice := Choice{Message: Turn{Role: string(schema.Assistant), Content: msg.Content}}
	if msg.ResponseMeta != nil {
		choice.FinishReason = msg.ResponseMeta.FinishReason
		if usage := msg.ResponseMeta.Usage; usage != nil {
			out.Usage = Usage{
				PromptTokens:     usage.PromptTokens,
				CompletionTokens: usage.CompletionTokens,
				TotalTokens:      usage.TotalTokens,
			}
		}
	}
	out.Choices = append(out.Choices, choice)
	return out, nil
}
