// Package queue carries match requests from order placement to the
// dispatch workers. Every transport delivers at least once.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrClosed is returned by a closed queue.
var ErrClosed = errors.New("queue closed")

// Message asks for one match attempt on OrderID.
type Message struct {
	ID         uuid.UUID `json:"id"`
	OrderID    uint64    `json:"order_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewMessage stamps a fresh message for orderID.
func NewMessage(orderID uint64) Message {
	return Message{ID: uuid.New(), OrderID: orderID, EnqueuedAt: time.Now()}
}

// Delivery is a received message. Ack must be called once the handler
// returned; an unacked delivery may be redelivered.
type Delivery struct {
	Message Message
	ack     func(ctx context.Context) error
}

// Ack confirms the delivery.
func (d Delivery) Ack(ctx context.Context) error {
	if d.ack == nil {
		return nil
	}
	return d.ack(ctx)
}

// Queue is a message transport.
type Queue interface {
	Publish(ctx context.Context, msg Message) error
	// Receive blocks until a message is available or ctx is done.
	Receive(ctx context.Context) (Delivery, error)
	Close() error
}

func encodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

func decodeMessage(b []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(b, &msg); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if msg.OrderID == 0 {
		return Message{}, errors.New("decode message: missing order id")
	}
	return msg, nil
}
