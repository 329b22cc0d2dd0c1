package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (Community) or NATS (Pro).
// All methods require tenantID for strict multi-tenancy isolation.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, tenantID string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, tenantID string, topic string, handler MessageHandler) (Subscription, error)

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
	TenantID  string            `json:"tenantId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
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

// Standard topic names.
const (
	// TopicDecision carries every scoring outcome; the alert worker watches
	// it for DECLINE decisions.
	TopicDecision = "decision.scored"

	// TopicUsage carries request metering events persisted off the request
	// path.
	TopicUsage = "usage.recorded"
)

// DecisionEvent is the payload published on TopicDecision after a
// transaction is scored and durably recorded.
type DecisionEvent struct {
	TransactionID string   `json:"transactionId"`
	RequestID     string   `json:"requestId"`
	TenantID      string   `json:"tenantId"`
	AccountID     string   `json:"accountId"`
	Decision      Decision `json:"decision"`
	RiskScore     int      `json:"riskScore"`
}
