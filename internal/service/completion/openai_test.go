package completion_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/jac-chat/backend/internal/service/completion"
)

func newServer(t *testing.T, handler http.HandlerFunc) *completion.OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return completion.NewOpenAIClient("test-key", completion.WithBaseURL(srv.URL))
}

func sampleRequest() completion.Request {
	return completion.NewRequest(completion.DefaultParams(), []completion.Turn{
		{Role: "assistant", Content: "Hey there! Ask Away!"},
		{Role: "user", Content: "what is 2+2?"},
	})
}

func TestCompleteSendsExpectedRequest(t *testing.T) {
	var (
		gotPath   string
		gotAuth   string
		gotCType  string
		gotMethod string
		gotBody   map[string]any
	)
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotCType = r.Header.Get("Content-Type")
		gotMethod = r.Method
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"4"}}]}`))
	})

	resp, err := client.Complete(context.Background(), sampleRequest())
	require.NoError(t, err)

	content, err := resp.FirstContent()
	require.NoError(t, err)
	assert.Equal(t, "4", content)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/chat/completions", gotPath)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Contains(t, gotCType, "application/json")
	assert.Equal(t, "gpt-4", gotBody["model"])
	assert.EqualValues(t, 100, gotBody["max_tokens"])
	assert.InDelta(t, 0.7, gotBody["temperature"], 1e-9)
	require.Len(t, gotBody["messages"], 2)
}

func TestCompleteNon2xxReturnsStatusError(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
	})

	_, err := client.Complete(context.Background(), sampleRequest())
	require.Error(t, err)

	var statusErr *completion.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.Code)
	assert.Equal(t, "Incorrect API key provided", statusErr.Message)
	assert.Equal(t, "invalid_request_error", statusErr.Type)
}

func TestCompleteNon2xxWithoutEnvelope(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	})

	_, err := client.Complete(context.Background(), sampleRequest())

	var statusErr *completion.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.Code)
	assert.Empty(t, statusErr.Message)
}

func TestCompleteMalformedBody(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": [`))
	})

	_, err := client.Complete(context.Background(), sampleRequest())
	assert.True(t, errors.Is(err, completion.ErrMalformedResponse))
}

func TestCompleteMissingChoicesIsMalformed(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"x"}`))
	})

	_, err := client.Complete(context.Background(), sampleRequest())
	assert.True(t, errors.Is(err, completion.ErrMalformedResponse))
}

func TestCompleteEmptyChoices(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})

	resp, err := client.Complete(context.Background(), sampleRequest())
	require.NoError(t, err)

	_, err = resp.FirstContent()
	assert.True(t, errors.Is(err, completion.ErrNoChoices))
}

func TestCompleteHonoursContext(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Complete(ctx, sampleRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestFirstContentBlankIsMalformed(t *testing.T) {
	resp := &completion.Response{Choices: []completion.Choice{{Message: completion.Turn{Content: "  "}}}}

	_, err := resp.FirstContent()
	assert.True(t, errors.Is(err, completion.ErrMalformedResponse))
}

func TestCompleteTransportErrorIsNotStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()
	client := completion.NewOpenAIClient("test-key", completion.WithBaseURL(url))

	_, err := client.Complete(context.Background(), sampleRequest())
	require.Error(t, err)

	var statusErr *completion.StatusError
	assert.False(t, errors.As(err, &statusErr))
	assert.False(t, errors.Is(err, completion.ErrMalformedResponse))
}
