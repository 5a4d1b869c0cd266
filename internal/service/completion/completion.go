// Package completion talks to remote chat-completion services.
package completion

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

const (
	DefaultModel       = "gpt-4"
	DefaultMaxTokens   = 100
	DefaultTemperature = 0.7
)

var (
	// ErrNoChoices is returned when the service answered with an empty choices array.
	ErrNoChoices = errors.New("completion returned no choices")
	// ErrMalformedResponse is returned when the body is not a usable completion.
	ErrMalformedResponse = errors.New("malformed completion response")
)

// Completer produces a completion for a conversation.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Turn is one message in the wire format shared by the supported services.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Params are the fixed generation parameters sent with every request.
type Params struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// DefaultParams returns gpt-4 with a 100 token budget at temperature 0.7.
func DefaultParams() Params {
	return Params{
		Model:       DefaultModel,
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
	}
}

// Request is the body POSTed to /chat/completions.
type Request struct {
	Model       string  `json:"model"`
	Messages    []Turn  `json:"messages"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

// NewRequest pairs the conversation with generation parameters.
func NewRequest(params Params, turns []Turn) Request {
	return Request{
		Model:       params.Model,
		Messages:    turns,
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
	}
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Choice struct {
	Index        int    `json:"index"`
	Message      Turn   `json:"message"`
	FinishReason string `json:"finish_reason"`
}

// Response is the subset of the completion payload the controller reads.
type Response struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// FirstContent returns choices[0].message.content.
func (r *Response) FirstContent() (string, error) {
	if r == nil || len(r.Choices) == 0 {
		return "", ErrNoChoices
	}
	content := r.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", errors.Wrap(ErrMalformedResponse, "first choice has no content")
	}
	return content, nil
}

// StatusError reports a non-2xx answer from the service.
type StatusError struct {
	Code    int
	Type    string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("completion request failed: status code %d", e.Code)
	}
	return fmt.Sprintf("completion request failed: status code %d, message %s", e.Code, e.Message)
}
