package chat

import (
	"time"

	"github.com/zhouzirui/jac-chat/backend/internal/model/persona"
)

// Author identifies who wrote a message.
type Author struct {
	ID     int64        `json:"id"`
	Name   string       `json:"name"`
	Avatar string       `json:"avatar"`
	Role   persona.Role `json:"role"`
}

// AuthorFromPersona projects a persona onto the fields a message carries.
func AuthorFromPersona(p persona.Persona) Author {
	return Author{
		ID:     p.ID,
		Name:   p.Name,
		Avatar: p.Avatar,
		Role:   p.Role,
	}
}

// Message is a single turn in the chat log.
type Message struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	Author    Author    `json:"author"`
}

// Role reports the completion-API role for the message author.
func (m Message) Role() string {
	if m.Author.Role == persona.RoleAssistant {
		return string(persona.RoleAssistant)
	}
	return string(persona.RoleUser)
}

// FromAssistant reports whether the assistant wrote the message.
func (m Message) FromAssistant() bool {
	return m.Author.Role == persona.RoleAssistant
}
