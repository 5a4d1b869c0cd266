package chat

import "strings"

// Input is what a chat surface hands to Submit: either one new user message
// or nothing at all.
type Input interface {
	isInput()
}

// UserMessage is a freshly composed message from the user.
type UserMessage struct {
	Text string
}

// Empty is a send event that carries no message.
type Empty struct{}

func (UserMessage) isInput() {}
func (Empty) isInput()       {}

// InputFrom converts raw composer text into an Input. Blank text is Empty.
func InputFrom(text string) Input {
	text = strings.TrimSpace(text)
	if text == "" {
		return Empty{}
	}
	return UserMessage{Text: text}
}
