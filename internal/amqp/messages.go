package amqp

import (
	"encoding/json"
	"time"

	"fintrack/internal/core"
)

const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// TransactionEventMessage announces that a transaction changed. It carries
// just enough for the worker to recompute the affected budget; the worker
// reads current totals from the database, not from the message.
type TransactionEventMessage struct {
	ID        string               `json:"id"`
	UserID    string               `json:"user_id"`
	Category  string               `json:"category"`
	Type      core.TransactionType `json:"type"`
	Action    string               `json:"action"`
	Timestamp time.Time            `json:"timestamp"`
}

func NewTransactionEventMessage(t core.Transaction, action string) *TransactionEventMessage {
	return &TransactionEventMessage{
		ID:        t.ID,
		UserID:    t.UserID,
		Category:  t.Category,
		Type:      t.Type,
		Action:    action,
		Timestamp: time.Now(),
	}
}

func (m *TransactionEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func TransactionEventMessageFromJSON(data []byte) (*TransactionEventMessage, error) {
	var msg TransactionEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
