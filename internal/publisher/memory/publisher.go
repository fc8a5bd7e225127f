// Package memory provides an in-process publisher that records run
// notifications in the same JSON form the Pub/Sub publisher sends.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// Message is one recorded publish: the topic, the JSON body and the
// attributes a Pub/Sub subscriber would see.
type Message struct {
	ID         string
	Topic      string
	Data       []byte
	Attributes map[string]string
}

// Decode unmarshals the message body into v.
func (m Message) Decode(v any) error {
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode message %s: %w", m.ID, err)
	}
	return nil
}

// Publisher records published notifications for later inspection.
type Publisher struct {
	mu       sync.RWMutex
	messages []Message
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish marshals payload to JSON and records it under topic.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	if topic == "" {
		return "", errors.New("topic is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	id := fmt.Sprintf("memory-%d", len(p.messages)+1)
	p.messages = append(p.messages, Message{
		ID:         id,
		Topic:      topic,
		Data:       data,
		Attributes: map[string]string{"content_type": "application/json"},
	})
	return id, nil
}

// Messages returns copies of the recorded messages, optionally limited to the
// given topic.
func (p *Publisher) Messages(topic ...string) []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Message, 0, len(p.messages))
	for _, m := range p.messages {
		if len(topic) > 0 && m.Topic != topic[0] {
			continue
		}
		m.Data = append([]byte(nil), m.Data...)
		attrs := make(map[string]string, len(m.Attributes))
		for k, v := range m.Attributes {
			attrs[k] = v
		}
		m.Attributes = attrs
		out = append(out, m)
	}
	return out
}
