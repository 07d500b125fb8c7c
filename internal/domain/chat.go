package domain

import "time"

// Thread is a persisted one-to-one conversation, created either lazily on
// the first direct message between a pair or when an agent confirms an SOS.
type Thread struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	SosID      *string   `json:"sos_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Counterpart returns the other participant of the thread.
func (t *Thread) Counterpart(userID string) string {
	if t.SenderID == userID {
		return t.ReceiverID
	}
	return t.SenderID
}

// ChatMessage is one persisted message inside a thread.
type ChatMessage struct {
	ID         string    `json:"id"`
	ThreadID   string    `json:"chat_id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Content    string    `json:"text"`
	IsRead     bool      `json:"is_read"`
	CreatedAt  time.Time `json:"created_at"`
}

// ThreadSummary is what get-chat returns per thread: the counterpart's
// profile plus last-message preview and unread count.
type ThreadSummary struct {
	ID          string     `json:"chat_id"`
	SosID       *string    `json:"sos_id,omitempty"`
	Counterpart Profile    `json:"user"`
	LastMessage string     `json:"last_message"`
	LastAt      *time.Time `json:"last_at,omitempty"`
	Unread      int        `json:"unread"`
}
