package queue

import (
	"context"
	"sync"
)

// Memory is an in-process queue backed by a buffered channel.
type Memory struct {
	inbox chan Message
	done  chan struct{}
	once  sync.Once
}

// NewMemory creates a queue holding up to size pending messages.
func NewMemory(size int) *Memory {
	return &Memory{
		inbox: make(chan Message, size),
		done:  make(chan struct{}),
	}
}

// Publish blocks while the buffer is full.
func (m *Memory) Publish(ctx context.Context, msg Message) error {
	select {
	case <-m.done:
		return ErrClosed
	default:
	}

	select {
	case m.inbox <- msg:
		return nil
	case <-m.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Memory) Receive(ctx context.Context) (Delivery, error) {
	select {
	case msg := <-m.inbox:
		return Delivery{Message: msg}, nil
	case <-m.done:
		return Delivery{}, ErrClosed
	case <-ctx.Done():
		return Delivery{}, ctx.Err()
	}
}

// Len returns the number of pending messages.
func (m *Memory) Len() int {
	return len(m.inbox)
}

func (m *Memory) Close() error {
	m.once.Do(func() { close(m.done) })
	return nil
}
