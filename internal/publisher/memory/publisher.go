// Package memory keeps published notifications in process, for local runs
// without Pub/Sub and for tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Publisher stores published payloads for inspection.
type Publisher struct {
	mu       sync.RWMutex
	messages []PublishedMessage
	failWith error
}

// PublishedMessage captures one publish call. Data is the JSON body a real
// topic would have received.
type PublishedMessage struct {
	Topic   string
	Payload any
	Data    []byte
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// FailWith makes every later Publish return err. nil restores normal behavior.
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	p.failWith = err
	p.mu.Unlock()
}

// Publish records the message and returns a pseudo ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return "", p.failWith
	}
	p.messages = append(p.messages, PublishedMessage{Topic: topic, Payload: payload, Data: data})
	return fmt.Sprintf("memory-%d", len(p.messages)), nil
}

// Messages returns the recorded publishes.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}

// Topic returns the messages published to topic, in order.
func (p *Publisher) Topic(topic string) []PublishedMessage {
	var out []PublishedMessage
	for _, m := range p.Messages() {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}
