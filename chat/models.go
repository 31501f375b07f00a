package chat

import (
	"time"

	"timebank/handshake"
)

// Message is one entry of a handshake conversation.
type Message struct {
	ID             int64        `json:"id"`
	HandshakeID    handshake.ID `json:"handshake"`
	SenderID       *int64       `json:"sender,omitempty"`
	SenderUsername string       `json:"sender_username"`
	Content        string       `json:"content"`
	CreatedAt      time.Time    `json:"created_at"`
	IsRead         bool         `json:"is_read"`
}

// Mine reports whether the message was sent by username.
func (m Message) Mine(username string) bool {
	return username != "" && m.SenderUsername == username
}
