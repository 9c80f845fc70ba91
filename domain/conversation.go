package domain

import "time"

type ConversationType string

const (
	ConversationPrivate ConversationType = "private"
	ConversationGroup   ConversationType = "group"
)

// Conversation is the aggregate shared by every message sender:
// LastMessage and UnreadCount are the only fields written by more than
// one logical writer and must only be mutated inside a store transaction.
type Conversation struct {
	ID           string           `json:"id"`
	Participants []string         `json:"participants"`
	Type         ConversationType `json:"type"`
	Name         string           `json:"name,omitempty"`
	Image        string           `json:"image,omitempty"`
	Admin        string           `json:"admin,omitempty"`
	LastMessage  *Message         `json:"lastMessage,omitempty"`
	UnreadCount  map[string]int   `json:"unreadCount"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

func (c Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}
