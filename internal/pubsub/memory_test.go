package pubsub

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemoryPubSub_PublishSubscribe(t *testing.T) {
	ps := NewMemoryPubSub()
	defer ps.Close()

	topic := Topics.Presence()
	received := make(chan *Message, 1)

	sub, err := ps.Subscribe(context.Background(), topic, func(ctx context.Context, msg *Message) {
		received <- msg
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	payload, _ := json.Marshal(map[string]string{"user_id": "u-1"})
	msg := &Message{Topic: topic, Type: "user_online", Payload: payload}

	if err := ps.Publish(context.Background(), topic, msg); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case got := <-received:
		if got.Type != msg.Type {
			t.Errorf("got type %q, want %q", got.Type, msg.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestMemoryPubSub_MultipleSubscribers(t *testing.T) {
	ps := NewMemoryPubSub()
	defer ps.Close()

	topic := Topics.Incident("sos-1")
	var count atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 3; i++ {
		wg.Add(1)
		sub, err := ps.Subscribe(context.Background(), topic, func(ctx context.Context, msg *Message) {
			count.Add(1)
			wg.Done()
		})
		if err != nil {
			t.Fatalf("Subscribe %d failed: %v", i, err)
		}
		defer sub.Unsubscribe()
	}

	ps.Publish(context.Background(), topic, &Message{Topic: topic, Type: "confirm-sos"})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if count.Load() != 3 {
			t.Errorf("got %d deliveries, want 3", count.Load())
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout: only got %d deliveries", count.Load())
	}
}

func TestMemoryPubSub_Unsubscribe(t *testing.T) {
	ps := NewMemoryPubSub()
	defer ps.Close()

	topic := Topics.User("u-2")
	received := make(chan struct{}, 10)

	sub, err := ps.Subscribe(context.Background(), topic, func(ctx context.Context, msg *Message) {
		received <- struct{}{}
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	if got := ps.SubscriberCount(topic); got != 0 {
		t.Errorf("got %d subscribers after unsubscribe, want 0", got)
	}

	ps.Publish(context.Background(), topic, &Message{Topic: topic, Type: "fetch-message"})

	select {
	case <-received:
		t.Fatal("received message after unsubscribe")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMemoryPubSub_Closed(t *testing.T) {
	ps := NewMemoryPubSub()
	ps.Close()

	if err := ps.Publish(context.Background(), "t", &Message{}); err != ErrClosed {
		t.Errorf("Publish on closed: got %v, want ErrClosed", err)
	}
	if _, err := ps.Subscribe(context.Background(), "t", func(context.Context, *Message) {}); err != ErrClosed {
		t.Errorf("Subscribe on closed: got %v, want ErrClosed", err)
	}
}
