package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// RedisPubSub implements PubSub over Redis channels so that presence and
// incident events published by one relay instance reach the connections
// held by every other instance.
type RedisPubSub struct {
	client        *redis.Client
	mu            sync.RWMutex
	subscriptions map[uint64]*redisSubscription
	nextID        atomic.Uint64
	closed        bool
	logger        *slog.Logger
}

type redisSubscription struct {
	ps      *RedisPubSub
	id      uint64
	topic   string
	pubsub  *redis.PubSub
	cancel  context.CancelFunc
	handler Handler
}

func (s *redisSubscription) Unsubscribe() error {
	s.cancel()
	if s.pubsub != nil {
		_ = s.pubsub.Close()
	}
	s.ps.removeSub(s.id)
	return nil
}

// NewRedisPubSub connects to Redis. url is in redis://[:password@]host:port form.
func NewRedisPubSub(url string) (*RedisPubSub, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	logger := slog.Default().With("component", "pubsub", "backend", "redis")
	logger.Info("connected to redis", "addr", opts.Addr)

	return &RedisPubSub{
		client:        client,
		subscriptions: make(map[uint64]*redisSubscription),
		logger:        logger,
	}, nil
}

// Publish sends a message to all subscribers of the topic across all instances.
func (ps *RedisPubSub) Publish(ctx context.Context, topic string, msg *Message) error {
	ps.mu.RLock()
	if ps.closed {
		ps.mu.RUnlock()
		return ErrClosed
	}
	ps.mu.RUnlock()

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := ps.client.Publish(ctx, topic, data).Err(); err != nil {
		return fmt.Errorf("publish to redis: %w", err)
	}
	return nil
}

// Subscribe registers a handler for messages on the topic. Messages from
// any publisher in the cluster are received.
func (ps *RedisPubSub) Subscribe(ctx context.Context, topic string, handler Handler) (Subscription, error) {
	ps.mu.Lock()
	if ps.closed {
		ps.mu.Unlock()
		return nil, ErrClosed
	}

	redisPubSub := ps.client.Subscribe(ctx, topic)

	// Wait until Redis acknowledges the subscription so no event published
	// immediately afterwards is missed.
	if _, err := redisPubSub.Receive(ctx); err != nil {
		ps.mu.Unlock()
		_ = redisPubSub.Close()
		return nil, fmt.Errorf("subscribe to redis channel: %w", err)
	}

	subCtx, cancel := context.WithCancel(context.Background())

	sub := &redisSubscription{
		ps:      ps,
		id:      ps.nextID.Add(1),
		topic:   topic,
		pubsub:  redisPubSub,
		cancel:  cancel,
		handler: handler,
	}
	ps.subscriptions[sub.id] = sub
	ps.mu.Unlock()

	go ps.receiveMessages(subCtx, sub)

	return sub, nil
}

func (ps *RedisPubSub) receiveMessages(ctx context.Context, sub *redisSubscription) {
	ch := sub.pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case redisMsg, ok := <-ch:
			if !ok {
				return
			}

			var msg Message
			if err := json.Unmarshal([]byte(redisMsg.Payload), &msg); err != nil {
				ps.logger.Error("failed to unmarshal message", "error", err, "topic", sub.topic)
				continue
			}

			go sub.handler(ctx, &msg)
		}
	}
}

func (ps *RedisPubSub) removeSub(id uint64) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	delete(ps.subscriptions, id)
}

// Close shuts down the pub/sub and all subscriptions.
func (ps *RedisPubSub) Close() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.closed {
		return nil
	}
	ps.closed = true

	for _, sub := range ps.subscriptions {
		sub.cancel()
		if sub.pubsub != nil {
			_ = sub.pubsub.Close()
		}
	}
	ps.subscriptions = make(map[uint64]*redisSubscription)

	if err := ps.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}
