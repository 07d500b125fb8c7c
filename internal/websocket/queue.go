package websocket

import (
	"log/slog"
	"sync"
)

// OfflineQueue buffers frames addressed to identities with no live
// connection, per identity and in FIFO order, until the next join drains
// them. A frame delivered live is never also queued; that decision is the
// sender's (see Hub.deliverMessage).
type OfflineQueue struct {
	mu      sync.Mutex
	pending map[string][][]byte
	logger  *slog.Logger
}

func NewOfflineQueue(logger *slog.Logger) *OfflineQueue {
	return &OfflineQueue{
		pending: make(map[string][][]byte),
		logger:  logger.With("component", "offline_queue"),
	}
}

// Enqueue appends a frame to the identity's pending sequence.
func (q *OfflineQueue) Enqueue(userID string, frame []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending[userID] = append(q.pending[userID], frame)
}

// Flush delivers the identity's pending frames to the connection in
// enqueue order. A failed item is kept for the next flush; the rest of
// the sequence still goes out. Flushing an empty queue is a no-op.
func (q *OfflineQueue) Flush(userID string, c *Client) {
	q.mu.Lock()
	frames := q.pending[userID]
	delete(q.pending, userID)
	q.mu.Unlock()

	if len(frames) == 0 {
		return
	}

	q.logger.Info("delivering queued messages", "user_id", userID, "count", len(frames))

	var failed [][]byte
	for _, frame := range frames {
		if err := c.Send(frame); err != nil {
			q.logger.Error("queued delivery failed", "user_id", userID, "error", err)
			failed = append(failed, frame)
		}
	}

	if len(failed) > 0 {
		q.mu.Lock()
		// Failed items go back in front of anything enqueued during the flush.
		q.pending[userID] = append(failed, q.pending[userID]...)
		q.mu.Unlock()
	}
}

// Len returns the number of frames pending for an identity.
func (q *OfflineQueue) Len(userID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending[userID])
}
