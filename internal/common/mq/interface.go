package mq

import (
	"context"
	"time"
)

// Producer publishes messages to a topic.
// Implementations must be safe for concurrent use.
type Producer interface {
	Publish(ctx context.Context, topic string, message *Message) error

	// Close flushes pending messages and releases connections
	Close() error
}

// Message represents a message in the queue
type Message struct {
	// ID doubles as the partition key, so messages with one ID stay ordered
	ID string `json:"id"`

	Body []byte `json:"body"`

	// Headers contains metadata about the message
	Headers map[string]string `json:"headers"`

	// Timestamp is when the message was created
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates a new message with the given body
func NewMessage(body []byte) *Message {
	return &Message{
		Body:      body,
		Headers:   make(map[string]string),
		Timestamp: time.Now(),
	}
}

// SetHeader sets a header value
func (m *Message) SetHeader(key, value string) {
	if m.Headers == nil {
		m.Headers = make(map[string]string)
	}
	m.Headers[key] = value
}
