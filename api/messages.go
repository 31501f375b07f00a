package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"timebank/chat"
	"timebank/handshake"
)

func (c *Client) Messages(ctx context.Context, id handshake.ID) ([]chat.Message, error) {
	var raw json.RawMessage
	req := call{
		method:   http.MethodGet,
		path:     "/messages/",
		endpoint: "messages.list",
		query:    url.Values{"handshake": []string{id.String()}},
	}
	if err := c.do(ctx, req, &raw); err != nil {
		return nil, err
	}
	msgs, err := decodeList[chat.Message](raw)
	if err != nil {
		return nil, listError(req.endpoint, err)
	}
	return msgs, nil
}

func (c *Client) SendMessage(ctx context.Context, id handshake.ID, content string) (chat.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return chat.Message{}, Validation("Message cannot be empty.", chat.ErrEmptyMessage)
	}
	body := struct {
		Handshake handshake.ID `json:"handshake"`
		Content   string       `json:"content"`
	}{Handshake: id, Content: content}

	var msg chat.Message
	if err := c.do(ctx, call{method: http.MethodPost, path: "/messages/", endpoint: "messages.send", body: body}, &msg); err != nil {
		return chat.Message{}, err
	}
	return msg, nil
}
