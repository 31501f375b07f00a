package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"timebank/handshake"
)

type TransactionType string

const (
	TransactionEarned TransactionType = "earned"
	TransactionSpent  TransactionType = "spent"
)

type Transaction struct {
	ID               int64           `json:"id"`
	Type             TransactionType `json:"transaction_type"`
	Amount           float64         `json:"amount"`
	SenderUsername   string          `json:"sender_username"`
	ReceiverUsername string          `json:"receiver_username"`
	RelatedPostTitle string          `json:"related_post_title,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

func (t *Transaction) UnmarshalJSON(data []byte) error {
	type plain Transaction
	wire := struct {
		*plain
		Amount handshake.Decimal `json:"amount"`
	}{plain: (*plain)(t)}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	t.Amount = float64(wire.Amount)
	return nil
}

// Counterparty describes the other side of the transaction from the user's
// point of view.
func (t Transaction) Counterparty() string {
	switch t.Type {
	case TransactionEarned:
		return "Received from " + t.SenderUsername
	case TransactionSpent:
		return "Paid to " + t.ReceiverUsername
	default:
		return t.SenderUsername + " -> " + t.ReceiverUsername
	}
}

// Ledger is the user's time-bank balance and history. Balance is in hours.
type Ledger struct {
	Balance      float64       `json:"balance"`
	Transactions []Transaction `json:"transactions"`
}

func (l *Ledger) UnmarshalJSON(data []byte) error {
	type plain Ledger
	wire := struct {
		*plain
		Balance handshake.Decimal `json:"balance"`
	}{plain: (*plain)(l)}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	l.Balance = float64(wire.Balance)
	return nil
}

func (c *Client) TimeBank(ctx context.Context) (Ledger, error) {
	var l Ledger
	if err := c.do(ctx, call{method: http.MethodGet, path: "/timebank/", endpoint: "timebank"}, &l); err != nil {
		return Ledger{}, err
	}
	return l, nil
}
