package domain

import (
	"context"
	"encoding/json"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (Community) or NATS (Pro).
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Request sends a message and waits for a response (request-reply pattern).
	Request(ctx context.Context, topic string, payload []byte) ([]byte, error)

	// Reply answers a message received through Request.
	Reply(ctx context.Context, msg *Message, payload []byte) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	ReplyTo   string            `json:"replyTo,omitempty"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string `json:"type" validate:"oneof=channel nats"`

	// Channel settings (Community tier)
	ChannelBufferSize int `json:"channelBufferSize" validate:"gte=0"`

	// NATS settings (Pro tier)
	NATSUrl           string `json:"natsUrl" validate:"required_if=Type nats"`
	NATSToken         string `json:"-"`
	NATSMaxReconnects int    `json:"natsMaxReconnects"`
	NATSReconnectWait int    `json:"natsReconnectWait"` // seconds
	NATSQueueGroup    string `json:"natsQueueGroup"`
}

// Topic names of the pipeline.
const (
	TopicTransactionIngested = "sentinel.transaction.ingested"
	TopicAssessmentRequest   = "sentinel.assessment.request"
	TopicDecision            = "sentinel.decision"
	TopicAlert               = "sentinel.alert"
)

// IngestMessage is the payload of TopicTransactionIngested. Transaction is
// the raw request body; consumers validate it themselves.
type IngestMessage struct {
	RunKey      string          `json:"runKey,omitempty"`
	Transaction json.RawMessage `json:"transaction"`
}
