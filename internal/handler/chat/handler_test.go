package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/jac-chat/backend/internal/model/chat"
	"github.com/zhouzirui/jac-chat/backend/internal/model/persona"
	chatservice "github.com/zhouzirui/jac-chat/backend/internal/service/chat"
	"github.com/zhouzirui/jac-chat/backend/internal/service/completion"
)

type stubCompleter struct {
	content string
	err     error
	block   chan struct{}
}

func (s *stubCompleter) Complete(ctx context.Context, _ completion.Request) (*completion.Response, error) {
	if s.block != nil {
		<-s.block
	}
	if s.err != nil {
		return nil, s.err
	}
	return &completion.Response{Choices: []completion.Choice{{Message: completion.Turn{Role: "assistant", Content: s.content}}}}, nil
}

func setupRouter(c completion.Completer) (*chi.Mux, *chatservice.Service) {
	chatSvc := chatservice.NewService(chatservice.Options{
		Completer: c,
		Personas:  persona.NewMemoryStore(persona.Seed()),
	})
	handler := New(chatSvc)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, chatSvc
}

func createSession(t *testing.T, r http.Handler) sessionResponse {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/session", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	require.Equal(t, http.StatusCreated, resp.Code)

	var created sessionResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))
	return created
}

func postMessage(r http.Handler, sessionID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sessionID+"/messages", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestCreateSessionReturnsGreeting(t *testing.T) {
	r, _ := setupRouter(&stubCompleter{content: "4"})

	created := createSession(t, r)

	assert.NotEmpty(t, created.Session.ID)
	assert.Equal(t, chat.StateIdle, created.Session.State)
	require.Len(t, created.Messages, 1)
	assert.Equal(t, "Hey there! Ask Away!", created.Messages[0].Text)
}

func TestSubmitReturnsReplyAndLog(t *testing.T) {
	r, _ := setupRouter(&stubCompleter{content: "4"})
	created := createSession(t, r)

	resp := postMessage(r, created.Session.ID, `{"text":"what is 2+2?"}`)
	require.Equal(t, http.StatusOK, resp.Code)

	var got submitResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
	assert.Equal(t, chatservice.OutcomeReply, got.Outcome.Kind)
	assert.Empty(t, got.Outcome.Cause)
	require.NotNil(t, got.Outcome.Reply)
	assert.Equal(t, "4", got.Outcome.Reply.Text)

	require.Len(t, got.Messages, 3)
	assert.Equal(t, "what is 2+2?", got.Messages[1].Text)
	assert.Equal(t, "4", got.Messages[2].Text)
}

func TestSubmitFailureReturnsFallbackWithoutRawError(t *testing.T) {
	r, _ := setupRouter(&stubCompleter{err: errors.New("dial tcp 10.0.0.1:443: secret detail")})
	created := createSession(t, r)

	resp := postMessage(r, created.Session.ID, `{"text":"hi"}`)
	require.Equal(t, http.StatusOK, resp.Code)

	assert.NotContains(t, resp.Body.String(), "secret detail")

	var got submitResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
	assert.Equal(t, chatservice.OutcomeFallback, got.Outcome.Kind)
	assert.Equal(t, "transport", got.Outcome.Cause)
	assert.Equal(t, chatservice.DefaultFallbackMessage, got.Messages[2].Text)
}

func TestSubmitBlankTextIsNoop(t *testing.T) {
	r, _ := setupRouter(&stubCompleter{content: "4"})
	created := createSession(t, r)

	resp := postMessage(r, created.Session.ID, `{"text":"   "}`)
	require.Equal(t, http.StatusOK, resp.Code)

	var got submitResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
	assert.Equal(t, chatservice.OutcomeNoop, got.Outcome.Kind)
	assert.Len(t, got.Messages, 1)
}

func TestSubmitInvalidBody(t *testing.T) {
	r, _ := setupRouter(&stubCompleter{content: "4"})
	created := createSession(t, r)

	resp := postMessage(r, created.Session.ID, `{`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestSubmitUnknownSession(t *testing.T) {
	r, _ := setupRouter(&stubCompleter{content: "4"})

	resp := postMessage(r, "missing", `{"text":"hi"}`)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestSubmitWhileReplyInFlightConflicts(t *testing.T) {
	block := make(chan struct{})
	r, svc := setupRouter(&stubCompleter{content: "4", block: block})
	created := createSession(t, r)

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- postMessage(r, created.Session.ID, `{"text":"first"}`) }()

	require.Eventually(t, func() bool {
		s, err := svc.GetSession(context.Background(), created.Session.ID)
		return err == nil && s.State == chat.StateAwaitingReply
	}, time.Second, 5*time.Millisecond)

	resp := postMessage(r, created.Session.ID, `{"text":"second"}`)
	assert.Equal(t, http.StatusConflict, resp.Code)

	close(block)
	assert.Equal(t, http.StatusOK, (<-done).Code)
}

func TestListMessagesAndEndSession(t *testing.T) {
	r, _ := setupRouter(&stubCompleter{content: "4"})
	created := createSession(t, r)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/sessions/"+created.Session.ID+"/messages", nil))
	require.Equal(t, http.StatusOK, resp.Code)

	var messages []chat.Message
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &messages))
	assert.Len(t, messages, 1)

	require.Equal(t, http.StatusOK, postMessage(r, created.Session.ID, `{"text":"hi"}`).Code)

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/sessions/"+created.Session.ID+"/messages?limit=1", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &messages))
	require.Len(t, messages, 1)
	assert.Equal(t, "4", messages[0].Text)

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/sessions/"+created.Session.ID+"/messages?limit=x", nil))
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodDelete, "/sessions/"+created.Session.ID, nil))
	assert.Equal(t, http.StatusNoContent, resp.Code)

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/sessions/"+created.Session.ID, nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
