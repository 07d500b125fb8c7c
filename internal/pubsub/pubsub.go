// Package pubsub carries relay-internal events (presence transitions,
// incident lifecycle changes) between publishers and the hubs that fan
// them out to live connections. The in-memory backend serves a single
// instance; the Redis backend lets several relay instances see each
// other's events.
package pubsub

import (
	"context"
	"encoding/json"
)

// Message is one published event with a typed payload.
type Message struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Handler is a callback invoked for each message on a subscribed topic.
type Handler func(ctx context.Context, msg *Message)

// Subscription is an active subscription that can be torn down.
type Subscription interface {
	Unsubscribe() error
}

// PubSub is the publish/subscribe contract. All implementations must be
// safe for concurrent use.
type PubSub interface {
	// Publish sends a message to every subscriber of the topic.
	Publish(ctx context.Context, topic string, msg *Message) error

	// Subscribe registers a handler for messages on the topic.
	Subscribe(ctx context.Context, topic string, handler Handler) (Subscription, error)

	// Close shuts down the pub/sub system and releases resources.
	Close() error
}

// TopicBuilder constructs consistent topic names.
type TopicBuilder struct{}

// Presence is the topic for user_online/user_offline announcements.
func (TopicBuilder) Presence() string {
	return "presence"
}

// User is the topic for events addressed to one identity.
func (TopicBuilder) User(userID string) string {
	return "user:" + userID
}

// Incident is the topic for one SOS case's lifecycle events.
func (TopicBuilder) Incident(sosID string) string {
	return "sos:" + sosID
}

// Topics is a helper for building topic names.
var Topics = TopicBuilder{}
