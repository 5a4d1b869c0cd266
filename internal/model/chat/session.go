package chat

import "time"

// State is the controller's request state.
type State string

const (
	StateIdle          State = "idle"
	StateAwaitingReply State = "awaiting-reply"
)

// Session captures a transient anonymous conversation.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	State     State     `json:"state"`
}
