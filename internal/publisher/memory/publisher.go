// Package memory implements an in-process publisher for development/testing.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Message is one captured publish call.
type Message struct {
	Topic   string
	Payload any
}

// Publisher records published messages in memory.
type Publisher struct {
	mu       sync.Mutex
	messages []Message
}

// New constructs a Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the payload and returns a synthetic message id.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, Message{Topic: topic, Payload: payload})
	return fmt.Sprintf("mem-%d", len(p.messages)), nil
}

// Messages returns a copy of everything published so far.
func (p *Publisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}
