package completion

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

const DefaultBaseURL = "https://api.openai.com/v1"

// OpenAIClient calls an OpenAI-compatible chat completion endpoint.
type OpenAIClient struct {
	client *openai.Client
	log    zerolog.Logger
}

type openAIOptions struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// OpenAIOption customises an OpenAIClient.
type OpenAIOption func(*openAIOptions)

// WithBaseURL points the client at another OpenAI-compatible host.
func WithBaseURL(url string) OpenAIOption {
	return func(o *openAIOptions) {
		if url != "" {
			o.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) OpenAIOption {
	return func(o *openAIOptions) {
		if hc != nil {
			o.httpClient = hc
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(log zerolog.Logger) OpenAIOption {
	return func(o *openAIOptions) {
		o.log = log
	}
}

// NewOpenAIClient builds a client authenticating with apiKey. An empty key is
// accepted; the service rejects the request and the caller sees a StatusError.
func NewOpenAIClient(apiKey string, opts ...OpenAIOption) *OpenAIClient {
	o := &openAIOptions{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 90 * time.Second},
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = o.baseURL
	cfg.HTTPClient = o.httpClient

	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		log:    o.log,
	}
}

// Complete sends req to /chat/completions.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (*Response, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, turn := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: turn.Role, Content: turn.Content})
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		c.log.Debug().Err(err).Int("turns", len(req.Messages)).Dur("elapsed", time.Since(start)).Msg("completion failed")
		return nil, classifyOpenAIError(err)
	}

	c.log.Debug().
		Int("turns", len(req.Messages)).
		Int("total_tokens", resp.Usage.TotalTokens).
		Dur("elapsed", time.Since(start)).
		Msg("completion response")

	if resp.Choices == nil {
		return nil, errors.Wrap(ErrMalformedResponse, "missing choices")
	}

	out := &Response{
		ID:      resp.ID,
		Model:   resp.Model,
		Choices: make([]Choice, 0, len(resp.Choices)),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, choice := range resp.Choices {
		out.Choices = append(out.Choices, Choice{
			Index:        choice.Index,
			Message:      Turn{Role: choice.Message.Role, Content: choice.Message.Content},
			FinishReason: string(choice.FinishReason),
		})
	}
	return out, nil
}

// classifyOpenAIError maps go-openai failures onto StatusError,
// ErrMalformedResponse or a wrapped transport error.
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &StatusError{Code: apiErr.HTTPStatusCode, Type: apiErr.Type, Message: apiErr.Message}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &StatusError{Code: reqErr.HTTPStatusCode}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return errors.Wrap(err, "chat request")
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return errors.Wrapf(ErrMalformedResponse, "parse response: %v", err)
	}

	return errors.Wrap(err, "chat request")
}
