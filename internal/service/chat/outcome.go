package chat

import (
	"context"

	"github.com/pkg/errors"

	"github.com/zhouzirui/jac-chat/backend/internal/model/chat"
	"github.com/zhouzirui/jac-chat/backend/internal/service/completion"
)

// OutcomeKind classifies what a Submit call appended.
type OutcomeKind string

const (
	// OutcomeNoop means the input was empty and the log is unchanged.
	OutcomeNoop OutcomeKind = "noop"
	// OutcomeReply means the completion text was appended.
	OutcomeReply OutcomeKind = "reply"
	// OutcomeFallback means the request failed and the fallback message was appended.
	OutcomeFallback OutcomeKind = "fallback"
	// OutcomeEmpty means the service returned no choices and nothing was appended after the user message.
	OutcomeEmpty OutcomeKind = "empty"
)

// Outcome is the structured result of one Submit call. Cause carries the
// underlying error for fallback and empty outcomes; it is never shown in the log.
type Outcome struct {
	Kind  OutcomeKind   `json:"kind"`
	User  *chat.Message `json:"user,omitempty"`
	Reply *chat.Message `json:"reply,omitempty"`
	Cause error         `json:"-"`
}

// Failed reports whether the remote call did not produce a usable reply.
func (o Outcome) Failed() bool {
	return o.Kind == OutcomeFallback || o.Kind == OutcomeEmpty
}

// CauseLabel names the failure class of o for logs and API clients.
func (o Outcome) CauseLabel() string {
	if o.Cause == nil {
		return ""
	}
	var statusErr *completion.StatusError
	switch {
	case errors.Is(o.Cause, ErrTimeout):
		return "timeout"
	case errors.Is(o.Cause, context.Canceled):
		return "canceled"
	case errors.As(o.Cause, &statusErr):
		return "status"
	case errors.Is(o.Cause, completion.ErrNoChoices):
		return "no_choices"
	case errors.Is(o.Cause, completion.ErrMalformedResponse):
		return "malformed"
	default:
		return "transport"
	}
}
