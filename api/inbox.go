package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"timebank/chat"
	"timebank/handshake"
)

// InboxHandshake is the slim handshake shape the inbox endpoints return.
type InboxHandshake struct {
	ID             handshake.ID     `json:"id"`
	Status         handshake.Status `json:"status"`
	OfferID        *int64           `json:"offer,omitempty"`
	RequestID      *int64           `json:"request,omitempty"`
	OfferTitle     string           `json:"offer_title,omitempty"`
	RequestTitle   string           `json:"request_title,omitempty"`
	SeekerUsername string           `json:"seeker_username,omitempty"`
	Hours          float64          `json:"hours"`
	CreatedAt      time.Time        `json:"created_at"`
}

// Title is the post title shown next to the handshake.
func (h InboxHandshake) Title() string {
	switch {
	case h.OfferTitle != "":
		return "Offer: " + h.OfferTitle
	case h.RequestTitle != "":
		return "Request: " + h.RequestTitle
	default:
		return "Handshake " + h.ID.String()
	}
}

type Conversation struct {
	Handshake     InboxHandshake `json:"handshake"`
	OtherUsername string         `json:"other_username"`
	LatestMessage *chat.Message  `json:"latest_message,omitempty"`
	UnreadCount   int            `json:"unread_count"`
	TotalMessages int            `json:"total_messages"`
}

func (c *Client) PendingHandshakes(ctx context.Context) ([]InboxHandshake, error) {
	return inboxList[InboxHandshake](ctx, c, "/inbox/pending-handshakes/", "inbox.pending")
}

func (c *Client) UnreadMessages(ctx context.Context) ([]chat.Message, error) {
	return inboxList[chat.Message](ctx, c, "/inbox/unread-messages/", "inbox.unread")
}

func (c *Client) Conversations(ctx context.Context) ([]Conversation, error) {
	return inboxList[Conversation](ctx, c, "/inbox/conversations/", "inbox.conversations")
}

func inboxList[T any](ctx context.Context, c *Client, path, endpoint string) ([]T, error) {
	var raw json.RawMessage
	if err := c.do(ctx, call{method: http.MethodGet, path: path, endpoint: endpoint}, &raw); err != nil {
		return nil, err
	}
	out, err := decodeList[T](raw)
	if err != nil {
		return nil, listError(endpoint, err)
	}
	return out, nil
}
