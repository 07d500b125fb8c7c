package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a frame to the peer
	writeWait = 10 * time.Second

	// Maximum frame size allowed from peer (SOS frames carry media URLs,
	// not media itself)
	maxFrameSize = 32768

	// Outbound frame buffer per connection
	sendBuffer = 256
)

// ErrSendBufferFull is returned when a connection's outbound buffer is
// saturated. A fan-out loop treats it as a per-recipient failure; the
// offline queue uses it to re-queue the frame.
var ErrSendBufferFull = errors.New("websocket: send buffer full")

// Client is one live transport connection. It may be bound to at most one
// identity, set on join.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	pings  chan struct{}
	limit  *rate.Limiter
	logger *slog.Logger

	mu     sync.RWMutex
	userID string

	// alive is cleared by the liveness monitor on each probe and set again
	// by the peer's pong (or any ping frame it sends).
	alive     atomic.Bool
	closeOnce sync.Once
	cancel    context.CancelFunc
}

// NewClient wraps an upgraded connection. framesPerMin throttles inbound
// frames; exceeding it drops frames rather than the connection.
func NewClient(hub *Hub, conn *websocket.Conn, framesPerMin int, logger *slog.Logger) *Client {
	c := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		pings:  make(chan struct{}, 1),
		limit:  rate.NewLimiter(rate.Limit(float64(framesPerMin)/60.0), max(framesPerMin/10, 5)),
		logger: logger,
	}
	c.alive.Store(true)
	return c
}

// SetCancelFunc sets the context cancel function for teardown.
func (c *Client) SetCancelFunc(cancel context.CancelFunc) {
	c.cancel = cancel
}

// UserID returns the identity bound to this connection, or empty.
func (c *Client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Client) setUserID(userID string) {
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()
}

// Alive reports whether the peer answered since the last liveness probe.
func (c *Client) Alive() bool {
	return c.alive.Load()
}

// MarkUnconfirmed clears the alive flag ahead of a probe.
func (c *Client) MarkUnconfirmed() {
	c.alive.Store(false)
}

// Probe asks the write pump to emit a ping control frame. Non-blocking: a
// probe already in flight is enough.
func (c *Client) Probe() {
	select {
	case c.pings <- struct{}{}:
	default:
	}
}

// Terminate force-closes the connection. The read pump unwinds and runs
// the same disconnect cleanup as a peer-initiated close.
func (c *Client) Terminate() {
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// Send queues a frame for delivery. Fails without blocking when the
// peer cannot drain its buffer.
func (c *Client) Send(frame []byte) error {
	select {
	case c.send <- frame:
		return nil
	default:
		c.logger.Warn("send buffer full, dropping frame", "user_id", c.UserID())
		return ErrSendBufferFull
	}
}

// sendEvent marshals and queues an outbound frame.
func (c *Client) sendEvent(v any) {
	frame, err := encodeFrame(v)
	if err != nil {
		c.logger.Error("failed to encode frame", "error", err)
		return
	}
	_ = c.Send(frame)
}

// sendError reports a handler failure back to the originating connection.
func (c *Client) sendError(code, message string) {
	c.sendEvent(ErrorEvent{Type: EventTypeError, Code: code, Message: message})
}

// ReadPump pumps frames from the connection into the hub's router.
// Runs on its own goroutine per connection, so one connection's slow
// handler never stalls another's.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.handleDisconnect(ctx, c)
		c.Terminate()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetPongHandler(func(string) error {
		c.alive.Store(true)
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, frame, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
					c.logger.Warn("websocket read error", "error", err, "user_id", c.UserID())
				}
				return
			}

			// Any traffic proves the peer is alive.
			c.alive.Store(true)

			if !c.limit.Allow() {
				c.logger.Warn("inbound frame rate exceeded, dropping frame", "user_id", c.UserID())
				continue
			}

			c.hub.route(ctx, c, frame)
		}
	}
}

// WritePump pumps queued frames and liveness probes to the connection.
// It is the only goroutine writing to the socket.
func (c *Client) WritePump(ctx context.Context) {
	defer c.Terminate()

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-c.pings:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// decodeType probes a raw inbound frame for its discriminant.
func decodeType(frame []byte) (string, bool) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return "", false
	}
	return env.Type, true
}
