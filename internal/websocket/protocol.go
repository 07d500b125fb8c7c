package websocket

import (
	"encoding/json"
	"time"

	"github.com/NKRI-78/websockets-rakhsa/internal/domain"
)

// Frames are flat JSON objects discriminated by a "type" field, e.g.
// {"type":"join","user_id":"..."}. The router probes the discriminant
// first, then decodes the full typed frame.

// Event types for client -> server
const (
	EventTypeJoin       = "join"
	EventTypeLeave      = "leave"
	EventTypeMessage    = "message"
	EventTypeSos        = "sos"
	EventTypeConfirmSos = "agent-confirm-sos"
	EventTypeResolveSos = "user-resolved-sos"
	EventTypeCloseSos   = "agent-closed-sos"
	EventTypeTyping     = "typing"
	EventTypeStopTyping = "stop-typing"
	EventTypeAckRead    = "ack-read"
	EventTypeGetChat    = "get-chat"
	EventTypeContact    = "contact"
	EventTypePing       = "ping"
)

// Event types for server -> client
const (
	EventTypeUserOnline   = "user_online"
	EventTypeUserOffline  = "user_offline"
	EventTypeFetchMessage = "fetch-message"
	EventTypeSosBroadcast = "sos"
	EventTypeSosConfirmed = "confirm-sos"
	EventTypeSosResolved  = "resolved-sos"
	EventTypeSosClosed    = "closed-sos"
	EventTypeChats        = "chats"
	EventTypeContacts     = "contacts"
	EventTypePong         = "pong"
	EventTypeError        = "error"
)

// envelope probes only the discriminant.
type envelope struct {
	Type string `json:"type"`
}

// ============================================================================
// Client -> Server frames
// ============================================================================

type JoinFrame struct {
	UserID string `json:"user_id"`
}

type LeaveFrame struct {
	UserID string `json:"user_id"`
}

type MessageFrame struct {
	ChatID    string `json:"chat_id,omitempty"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Text      string `json:"text"`
}

type SosFrame struct {
	SosID    string `json:"sos_id"`
	UserID   string `json:"user_id"`
	Media    string `json:"media"`
	Ext      string `json:"ext"`
	Location string `json:"location"`
	Lat      string `json:"lat"`
	Lng      string `json:"lng"`
	Country  string `json:"country"`
	Time     string `json:"time"`
	Platform string `json:"platform_type"`
}

type ConfirmSosFrame struct {
	SosID   string `json:"sos_id"`
	AgentID string `json:"user_agent_id"`
}

type ResolveSosFrame struct {
	SosID string `json:"sos_id"`
}

type CloseSosFrame struct {
	SosID string `json:"sos_id"`
	Note  string `json:"note"`
}

type TypingFrame struct {
	ChatID    string `json:"chat_id"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
}

type AckReadFrame struct {
	ChatID    string `json:"chat_id"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
}

type GetChatFrame struct {
	Sender string `json:"sender"`
}

type ContactFrame struct {
	Sender string `json:"sender"`
}

// ============================================================================
// Server -> Client frames
// ============================================================================

// PresenceEvent announces an identity's online/offline transition.
type PresenceEvent struct {
	Type   string `json:"type"` // user_online | user_offline
	UserID string `json:"user_id"`
}

// PartyRef names one side of a conversation or incident.
type PartyRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SosEvent is the new-incident broadcast delivered to the agent roster
// (or everyone, under the broadcast-all policy).
type SosEvent struct {
	Type      string   `json:"type"` // sos
	ID        string   `json:"id"`
	Sender    PartyRef `json:"sender"`
	Media     string   `json:"media"`
	MediaType string   `json:"media_type"`
	Created   string   `json:"created"`
	CreatedAt string   `json:"created_at"`
	Country   string   `json:"country"`
	Location  string   `json:"location"`
	Time      string   `json:"time"`
	Lat       string   `json:"lat"`
	Lng       string   `json:"lng"`
	Platform  string   `json:"platform_type"`
}

// ConfirmSosEvent announces an agent taking a case, carrying the thread
// that now pairs agent and reporter.
type ConfirmSosEvent struct {
	Type        string `json:"type"` // confirm-sos
	SosID       string `json:"sos_id"`
	ChatID      string `json:"chat_id"`
	Status      string `json:"status"`
	AgentID     string `json:"agent_id"`
	AgentName   string `json:"agent_name"`
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id"`
}

// FinishSosEvent announces a terminal transition (resolved-sos/closed-sos).
type FinishSosEvent struct {
	Type    string `json:"type"`
	ChatID  string `json:"chat_id"`
	SosID   string `json:"sos_id"`
	Message string `json:"message"`
}

// MessageUser is the counterpart block inside a relayed chat message; the
// is_me flag is flipped per receiving connection.
type MessageUser struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
	IsMe   bool   `json:"is_me"`
}

// MessagePayload is the data block of a fetch-message event.
type MessagePayload struct {
	ID       string      `json:"id"`
	ChatID   string      `json:"chat_id"`
	PairRoom string      `json:"pair_room"`
	User     MessageUser `json:"user"`
	Sender   PartyRef    `json:"sender"`
	IsRead   bool        `json:"is_read"`
	SentTime string      `json:"sent_time"`
	Text     string      `json:"text"`
	Kind     string      `json:"type"` // always "text"
}

// FetchMessageEvent relays one chat message, live or from the offline queue.
type FetchMessageEvent struct {
	Type string         `json:"type"` // fetch-message
	Data MessagePayload `json:"data"`
}

// TypingEvent relays typing/stop-typing without echo to the originator.
type TypingEvent struct {
	Type      string `json:"type"`
	ChatID    string `json:"chat_id"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
}

// AckReadEvent tells the counterpart their messages were read.
type AckReadEvent struct {
	Type      string `json:"type"` // ack-read
	ChatID    string `json:"chat_id"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
}

// ChatsEvent answers get-chat with the caller's thread list.
type ChatsEvent struct {
	Type string                 `json:"type"` // chats
	Data []domain.ThreadSummary `json:"data"`
}

// ContactsEvent answers contact with the caller's known counterparts.
type ContactsEvent struct {
	Type string           `json:"type"` // contacts
	Data []domain.Profile `json:"data"`
}

type PongEvent struct {
	Type string `json:"type"` // pong
}

// ErrorEvent tells the originating connection why its frame failed.
type ErrorEvent struct {
	Type    string `json:"type"` // error
	Code    string `json:"code"`
	Message string `json:"message"`
}

// encodeFrame marshals an outbound frame to its wire form.
func encodeFrame(v any) ([]byte, error) {
	return json.Marshal(v)
}

// sosTimestamp formats the created/created_at fields of an SOS broadcast.
func sosTimestamp(t time.Time) string {
	return t.Format("2006/01/02 15:04:05")
}

// sentTime formats a chat message's sent_time field.
func sentTime(t time.Time) string {
	return t.Format("15:04")
}
