package pubsub

import (
	"context"
	"log/slog"
	"sync"
)

// memorySubscription is one handler registered on a topic.
type memorySubscription struct {
	ps      *MemoryPubSub
	topic   string
	handler Handler
	id      uint64
}

func (s *memorySubscription) Unsubscribe() error {
	s.ps.unsubscribe(s.topic, s.id)
	return nil
}

// MemoryPubSub implements PubSub with an in-process map. Suitable for a
// single relay instance; events never leave the process.
type MemoryPubSub struct {
	mu          sync.RWMutex
	subscribers map[string]map[uint64]*memorySubscription
	nextID      uint64
	closed      bool
	logger      *slog.Logger
}

func NewMemoryPubSub() *MemoryPubSub {
	return &MemoryPubSub{
		subscribers: make(map[string]map[uint64]*memorySubscription),
		logger:      slog.Default().With("component", "pubsub"),
	}
}

// Publish sends a message to every subscriber of the topic. A topic with
// no subscribers is not an error; the event is simply unobserved.
func (ps *MemoryPubSub) Publish(ctx context.Context, topic string, msg *Message) error {
	ps.mu.RLock()
	if ps.closed {
		ps.mu.RUnlock()
		return ErrClosed
	}

	subs := ps.subscribers[topic]

	// Copy handlers so the lock is not held during callbacks.
	handlers := make([]Handler, 0, len(subs))
	for _, sub := range subs {
		handlers = append(handlers, sub.handler)
	}
	ps.mu.RUnlock()

	for _, h := range handlers {
		// Deliver asynchronously so a slow handler cannot stall the publisher.
		go h(ctx, msg)
	}

	return nil
}

// Subscribe registers a handler for the given topic.
func (ps *MemoryPubSub) Subscribe(ctx context.Context, topic string, handler Handler) (Subscription, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.closed {
		return nil, ErrClosed
	}

	ps.nextID++
	sub := &memorySubscription{
		ps:      ps,
		topic:   topic,
		handler: handler,
		id:      ps.nextID,
	}

	if ps.subscribers[topic] == nil {
		ps.subscribers[topic] = make(map[uint64]*memorySubscription)
	}
	ps.subscribers[topic][sub.id] = sub

	return sub, nil
}

func (ps *MemoryPubSub) unsubscribe(topic string, id uint64) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if subs, ok := ps.subscribers[topic]; ok {
		delete(subs, id)
		if len(subs) == 0 {
			delete(ps.subscribers, topic)
		}
	}
}

// Close shuts down the pub/sub and rejects further operations.
func (ps *MemoryPubSub) Close() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ps.closed = true
	ps.subscribers = make(map[string]map[uint64]*memorySubscription)
	return nil
}

// SubscriberCount returns the number of subscribers for a topic.
func (ps *MemoryPubSub) SubscriberCount(topic string) int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.subscribers[topic])
}
