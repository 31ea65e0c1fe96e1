// Package notify carries ledger change notifications over AMQP, Redis
// pub/sub or an in-process fan-out.
package notify

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"ledger/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LedgerChangedMessage is the wire form of a store.Change. It carries ids
// only; consumers reload whatever they need from the store.
type LedgerChangedMessage struct {
	Op             string    `json:"op"`
	AccountIDs     []string  `json:"account_ids,omitempty"`
	TransactionIDs []string  `json:"transaction_ids,omitempty"`
	CategoryIDs    []string  `json:"category_ids,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Handler processes one message. Returning an error asks the transport to
// redeliver when it can.
type Handler func(ctx context.Context, msg *LedgerChangedMessage) error

// Consumer delivers messages to a handler until ctx is done.
type Consumer interface {
	Consume(ctx context.Context, handler Handler) error
}

// Bus both publishes and consumes changes.
type Bus interface {
	store.Notifier
	Consumer
	Close() error
}

func NewLedgerChangedMessage(c store.Change) *LedgerChangedMessage {
	ts := c.At
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &LedgerChangedMessage{
		Op:             c.Op,
		AccountIDs:     c.AccountIDs,
		TransactionIDs: c.TransactionIDs,
		CategoryIDs:    c.CategoryIDs,
		Timestamp:      ts,
	}
}

// Change converts the message back to the store form.
func (m *LedgerChangedMessage) Change() store.Change {
	return store.Change{
		Op:             m.Op,
		AccountIDs:     m.AccountIDs,
		TransactionIDs: m.TransactionIDs,
		CategoryIDs:    m.CategoryIDs,
		At:             m.Timestamp,
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerChangedMessageFromJSON decodes a message and checks it names an op.
func LedgerChangedMessageFromJSON(data []byte) (*LedgerChangedMessage, error) {
	var msg LedgerChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Op == "" {
		return nil, fmt.Errorf("decode ledger change: missing op")
	}
	return &msg, nil
}
