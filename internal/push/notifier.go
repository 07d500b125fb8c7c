// Package push delivers fire-and-forget push notifications. Delivery is
// decoupled from the caller through a buffered dispatcher so a slow or
// failing notifier can never delay an incident state transition.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Notification is one outbound push message.
type Notification struct {
	Title    string
	Body     string
	Token    string
	Category string
}

// Notifier sends a single notification. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// FCMClient sends notifications through the FCM HTTP API.
type FCMClient struct {
	endpoint  string
	serverKey string
	client    *http.Client
	logger    *slog.Logger
}

func NewFCMClient(endpoint, serverKey string, logger *slog.Logger) *FCMClient {
	return &FCMClient{
		endpoint:  endpoint,
		serverKey: serverKey,
		client:    &http.Client{Timeout: 10 * time.Second},
		logger:    logger.With("component", "push"),
	}
}

type fcmRequest struct {
	To           string          `json:"to"`
	Notification fcmNotification `json:"notification"`
	Data         fcmData         `json:"data"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmData struct {
	Category string `json:"category"`
}

func (c *FCMClient) Send(ctx context.Context, n Notification) error {
	if n.Token == "" || n.Token == "-" {
		// Recipient never registered a device token.
		return nil
	}

	body, err := json.Marshal(fcmRequest{
		To:           n.Token,
		Notification: fcmNotification{Title: n.Title, Body: n.Body},
		Data:         fcmData{Category: n.Category},
	})
	if err != nil {
		return fmt.Errorf("marshal fcm request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build fcm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+c.serverKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send fcm request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("fcm responded with status %d", resp.StatusCode)
	}
	return nil
}

// NopNotifier drops every notification. Used when no FCM server key is
// configured, e.g. in development.
type NopNotifier struct{}

func (NopNotifier) Send(context.Context, Notification) error { return nil }

// Dispatcher queues notifications and delivers them on a background
// goroutine. Enqueue never blocks; when the buffer is full the
// notification is dropped with a log line.
type Dispatcher struct {
	notifier Notifier
	queue    chan Notification
	logger   *slog.Logger
}

func NewDispatcher(notifier Notifier, buffer int, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		notifier: notifier,
		queue:    make(chan Notification, buffer),
		logger:   logger.With("component", "push"),
	}
}

// Run delivers queued notifications until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-d.queue:
			if err := d.notifier.Send(ctx, n); err != nil {
				d.logger.Error("push delivery failed", "category", n.Category, "error", err)
			}
		}
	}
}

// Enqueue hands a notification to the dispatcher without blocking.
func (d *Dispatcher) Enqueue(n Notification) {
	select {
	case d.queue <- n:
	default:
		d.logger.Warn("push queue full, dropping notification", "category", n.Category)
	}
}
