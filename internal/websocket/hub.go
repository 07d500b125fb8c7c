package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NKRI-78/websockets-rakhsa/internal/domain"
	"github.com/NKRI-78/websockets-rakhsa/internal/pubsub"
	"github.com/NKRI-78/websockets-rakhsa/internal/push"
	"github.com/NKRI-78/websockets-rakhsa/internal/sos"
)

// ChatStore is the chat persistence surface the hub depends on.
type ChatStore interface {
	FindThread(ctx context.Context, a, b string) (*domain.Thread, error)
	CreateThread(ctx context.Context, t *domain.Thread) error
	InsertMessage(ctx context.Context, m *domain.ChatMessage) error
	MarkRead(ctx context.Context, chatID, userID string) error
	ListThreads(ctx context.Context, userID string) ([]domain.ThreadSummary, error)
}

// UserStore resolves identities to profiles, presence and device tokens.
type UserStore interface {
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
	GetPushToken(ctx context.Context, userID string) (string, error)
	SetPresence(ctx context.Context, userID string, online bool) error
	ListContacts(ctx context.Context, userID string) ([]domain.Profile, error)
}

// Pusher accepts fire-and-forget notifications.
type Pusher interface {
	Enqueue(n push.Notification)
}

// IncidentCoordinator drives SOS lifecycle transitions and tells the hub
// who to notify.
type IncidentCoordinator interface {
	Report(ctx context.Context, rep sos.Report) (*sos.ReportResult, error)
	Confirm(ctx context.Context, sosID, agentID string) (*sos.ConfirmResult, error)
	Resolve(ctx context.Context, sosID string) (*sos.FinishResult, error)
	Close(ctx context.Context, sosID, note string) (*sos.FinishResult, error)
}

// Hub owns the connection registry, room index and offline queue, routes
// every inbound frame to its handler, and fans outbound events out to the
// right subset of connections. Handlers run on each connection's read
// goroutine, so connections stay concurrent with each other while every
// piece of shared state here is guarded by its own short critical section.
type Hub struct {
	registry  *Registry
	rooms     *RoomIndex
	queue     *OfflineQueue
	incidents IncidentCoordinator
	chats     ChatStore
	users     UserStore
	pusher    Pusher
	ps        pubsub.PubSub
	logger    *slog.Logger

	// broadcastAllSos switches new-incident fan-out from the geo-matched
	// roster to every connected identity.
	broadcastAllSos bool

	mu    sync.RWMutex
	conns map[*Client]bool

	presenceSub pubsub.Subscription
}

func NewHub(incidents IncidentCoordinator, chats ChatStore, users UserStore, pusher Pusher, ps pubsub.PubSub, broadcastAllSos bool, logger *slog.Logger) *Hub {
	return &Hub{
		registry:        NewRegistry(logger),
		rooms:           NewRoomIndex(),
		queue:           NewOfflineQueue(logger),
		incidents:       incidents,
		chats:           chats,
		users:           users,
		pusher:          pusher,
		ps:              ps,
		logger:          logger.With("component", "hub"),
		broadcastAllSos: broadcastAllSos,
		conns:           make(map[*Client]bool),
	}
}

// Registry exposes the identity-to-connection mapping.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Start subscribes the hub to the presence topic so transitions published
// by any relay instance reach this instance's connections.
func (h *Hub) Start(ctx context.Context) error {
	sub, err := h.ps.Subscribe(ctx, pubsub.Topics.Presence(), func(ctx context.Context, msg *pubsub.Message) {
		h.registry.BroadcastAll(msg.Payload)
	})
	if err != nil {
		return err
	}
	h.presenceSub = sub
	return nil
}

// Stop tears down the hub's subscriptions.
func (h *Hub) Stop() {
	if h.presenceSub != nil {
		_ = h.presenceSub.Unsubscribe()
	}
}

// Connections returns every live connection, joined or not.
func (h *Hub) Connections() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conns := make([]*Client, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	return conns
}

// handleConnect tracks a freshly upgraded, not-yet-joined connection.
func (h *Hub) handleConnect(c *Client) {
	h.mu.Lock()
	h.conns[c] = true
	h.mu.Unlock()
}

// handleDisconnect runs the full cleanup for a closed connection,
// whether the peer closed, the monitor terminated it, or a read failed.
func (h *Hub) handleDisconnect(ctx context.Context, c *Client) {
	// On eviction the connection's context is already cancelled by
	// Terminate; the presence write and publish still have to go through.
	ctx = context.WithoutCancel(ctx)

	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()

	h.rooms.RemoveConnection(c)

	userID, last := h.registry.RemoveConnection(c)
	if userID == "" {
		return
	}
	h.logger.Info("connection closed", "user_id", userID, "offline", last)

	if last {
		if err := h.users.SetPresence(ctx, userID, false); err != nil {
			h.logger.Error("failed to record presence", "user_id", userID, "error", err)
		}
		h.publishPresence(ctx, EventTypeUserOffline, userID)
	}
}

// route dispatches one inbound frame. Malformed frames are dropped with a
// log line; unknown event types are ignored.
func (h *Hub) route(ctx context.Context, c *Client, frame []byte) {
	eventType, ok := decodeType(frame)
	if !ok {
		h.logger.Warn("dropping malformed frame", "user_id", c.UserID())
		return
	}

	switch eventType {
	case EventTypeJoin:
		h.handleJoin(ctx, c, frame)
	case EventTypeLeave:
		h.handleLeave(ctx, c, frame)
	case EventTypeMessage:
		h.handleMessage(ctx, c, frame)
	case EventTypeSos:
		h.handleSos(ctx, c, frame)
	case EventTypeConfirmSos:
		h.handleConfirmSos(ctx, c, frame)
	case EventTypeResolveSos:
		h.handleResolveSos(ctx, c, frame)
	case EventTypeCloseSos:
		h.handleCloseSos(ctx, c, frame)
	case EventTypeTyping:
		h.handleTyping(ctx, c, frame, EventTypeTyping)
	case EventTypeStopTyping:
		h.handleTyping(ctx, c, frame, EventTypeStopTyping)
	case EventTypeAckRead:
		h.handleAckRead(ctx, c, frame)
	case EventTypeGetChat:
		h.handleGetChat(ctx, c, frame)
	case EventTypeContact:
		h.handleContact(ctx, c, frame)
	case EventTypePing:
		c.sendEvent(PongEvent{Type: EventTypePong})
	default:
		// Unknown event types are ignored, not errors.
	}
}

func (h *Hub) handleJoin(ctx context.Context, c *Client, frame []byte) {
	var f JoinFrame
	if err := json.Unmarshal(frame, &f); err != nil || f.UserID == "" {
		h.logger.Warn("dropping malformed join frame", "error", err)
		return
	}

	h.registry.Join(f.UserID, c)
	h.logger.Info("identity joined", "user_id", f.UserID)

	// Drain anything addressed to this identity while it was away.
	h.queue.Flush(f.UserID, c)

	if err := h.users.SetPresence(ctx, f.UserID, true); err != nil {
		h.logger.Error("failed to record presence", "user_id", f.UserID, "error", err)
	}
	h.publishPresence(ctx, EventTypeUserOnline, f.UserID)
}

func (h *Hub) handleLeave(ctx context.Context, c *Client, frame []byte) {
	var f LeaveFrame
	if err := json.Unmarshal(frame, &f); err != nil || f.UserID == "" {
		h.logger.Warn("dropping malformed leave frame", "error", err)
		return
	}

	last := h.registry.Leave(f.UserID, c)
	h.logger.Info("identity left", "user_id", f.UserID, "offline", last)

	if last {
		if err := h.users.SetPresence(ctx, f.UserID, false); err != nil {
			h.logger.Error("failed to record presence", "user_id", f.UserID, "error", err)
		}
		h.publishPresence(ctx, EventTypeUserOffline, f.UserID)
	}
}

func (h *Hub) handleMessage(ctx context.Context, c *Client, frame []byte) {
	var f MessageFrame
	if err := json.Unmarshal(frame, &f); err != nil || f.Sender == "" || f.Recipient == "" {
		h.logger.Warn("dropping malformed message frame", "error", err)
		return
	}

	thread, err := h.resolveThread(ctx, &f)
	if err != nil {
		h.logger.Error("failed to resolve thread", "sender", f.Sender, "recipient", f.Recipient, "error", err)
		c.sendError("save_failed", "Failed to resolve conversation")
		return
	}

	msg := &domain.ChatMessage{
		ID:         uuid.NewString(),
		ThreadID:   thread.ID,
		SenderID:   f.Sender,
		ReceiverID: f.Recipient,
		Content:    f.Text,
		CreatedAt:  time.Now(),
	}
	if err := h.chats.InsertMessage(ctx, msg); err != nil {
		h.logger.Error("failed to save message", "chat_id", thread.ID, "error", err)
		c.sendError("save_failed", "Failed to save message")
		return
	}

	sender := h.profileOrPlaceholder(ctx, f.Sender)
	recipient := h.profileOrPlaceholder(ctx, f.Recipient)

	h.deliverMessage(msg, sender, recipient)

	// Push wakes the recipient's device even with no live connection.
	h.notifyUser(ctx, f.Recipient, push.Notification{
		Title:    sender.Username,
		Body:     f.Text,
		Category: "send-msg",
	})
}

// resolveThread finds the conversation for a direct message, creating it
// lazily on the pair's first contact.
func (h *Hub) resolveThread(ctx context.Context, f *MessageFrame) (*domain.Thread, error) {
	if f.ChatID != "" {
		return &domain.Thread{ID: f.ChatID, SenderID: f.Sender, ReceiverID: f.Recipient}, nil
	}

	thread, err := h.chats.FindThread(ctx, f.Sender, f.Recipient)
	if err == nil {
		return thread, nil
	}
	if !errors.Is(err, domain.ErrThreadNotFound) {
		return nil, err
	}

	thread = &domain.Thread{
		ID:         uuid.NewString(),
		SenderID:   f.Sender,
		ReceiverID: f.Recipient,
	}
	if err := h.chats.CreateThread(ctx, thread); err != nil {
		return nil, err
	}
	return thread, nil
}

// deliverMessage fans a chat message out to both parties' connections,
// flipping the is_me view per receiver. A recipient with no live
// connection gets the frame queued for their next join instead, never
// both.
func (h *Hub) deliverMessage(msg *domain.ChatMessage, sender, recipient domain.Profile) {
	senderConns := h.registry.Lookup(msg.SenderID)
	recipientConns := h.registry.Lookup(msg.ReceiverID)
	h.rooms.AddParticipant(msg.ThreadID, senderConns...)
	h.rooms.AddParticipant(msg.ThreadID, recipientConns...)

	base := MessagePayload{
		ID:       msg.ID,
		ChatID:   msg.ThreadID,
		PairRoom: msg.ReceiverID,
		Sender:   PartyRef{ID: sender.UserID, Name: sender.Username},
		IsRead:   false,
		SentTime: sentTime(msg.CreatedAt),
		Text:     msg.Content,
		Kind:     "text",
	}

	recipientFrame, err := encodeFrame(FetchMessageEvent{
		Type: EventTypeFetchMessage,
		Data: withUserView(base, recipient, false),
	})
	if err != nil {
		h.logger.Error("failed to encode message frame", "error", err)
		return
	}
	senderFrame, _ := encodeFrame(FetchMessageEvent{
		Type: EventTypeFetchMessage,
		Data: withUserView(base, sender, true),
	})

	for _, member := range h.rooms.Members(msg.ThreadID) {
		if member.UserID() == msg.ReceiverID {
			_ = member.Send(recipientFrame)
		} else {
			_ = member.Send(senderFrame)
		}
	}

	if len(recipientConns) == 0 {
		h.queue.Enqueue(msg.ReceiverID, recipientFrame)
	}
}

func withUserView(base MessagePayload, p domain.Profile, isMe bool) MessagePayload {
	base.User = MessageUser{ID: p.UserID, Name: p.Username, Avatar: p.Avatar, IsMe: isMe}
	return base
}

func (h *Hub) handleSos(ctx context.Context, c *Client, frame []byte) {
	var f SosFrame
	if err := json.Unmarshal(frame, &f); err != nil || f.SosID == "" || f.UserID == "" {
		h.logger.Warn("dropping malformed sos frame", "error", err)
		return
	}

	res, err := h.incidents.Report(ctx, sos.Report{
		SosID:    f.SosID,
		UserID:   f.UserID,
		Media:    f.Media,
		Ext:      f.Ext,
		Location: f.Location,
		Lat:      f.Lat,
		Lng:      f.Lng,
		Country:  f.Country,
		Time:     f.Time,
		Platform: f.Platform,
	})
	if err != nil {
		h.logger.Error("failed to report sos", "sos_id", f.SosID, "error", err)
		c.sendError("sos_failed", "Failed to report SOS")
		return
	}

	now := time.Now()
	out, err := encodeFrame(SosEvent{
		Type:      EventTypeSosBroadcast,
		ID:        res.Incident.ID,
		Sender:    PartyRef{ID: res.Reporter.UserID, Name: res.Reporter.Username},
		Media:     f.Media,
		MediaType: string(res.Incident.Type),
		Created:   sosTimestamp(now),
		CreatedAt: sosTimestamp(now),
		Country:   f.Country,
		Location:  f.Location,
		Time:      f.Time,
		Lat:       f.Lat,
		Lng:       f.Lng,
		Platform:  f.Platform,
	})
	if err != nil {
		h.logger.Error("failed to encode sos frame", "error", err)
		return
	}

	if h.broadcastAllSos {
		h.registry.BroadcastAll(out)
		return
	}

	// Zero matched agents is fine: the incident persists silently.
	for _, agentID := range res.AgentIDs {
		h.registry.SendToUser(agentID, out)
	}
	h.logger.Info("sos broadcast", "sos_id", f.SosID, "region", res.Region, "agents", len(res.AgentIDs))
}

func (h *Hub) handleConfirmSos(ctx context.Context, c *Client, frame []byte) {
	var f ConfirmSosFrame
	if err := json.Unmarshal(frame, &f); err != nil || f.SosID == "" || f.AgentID == "" {
		h.logger.Warn("dropping malformed confirm frame", "error", err)
		return
	}

	res, err := h.incidents.Confirm(ctx, f.SosID, f.AgentID)
	if err != nil {
		h.sendTransitionError(c, f.SosID, err)
		return
	}

	chatID := res.Thread.ID

	// Union both parties' current connections into the case room; the
	// confirming connection is included even if it joined as a different
	// identity than the payload claims.
	h.rooms.AddParticipant(chatID, c)
	h.rooms.AddParticipant(chatID, h.registry.Lookup(res.Incident.UserID)...)
	h.rooms.AddParticipant(chatID, h.registry.Lookup(f.AgentID)...)

	out, err := encodeFrame(ConfirmSosEvent{
		Type:        EventTypeSosConfirmed,
		SosID:       f.SosID,
		ChatID:      chatID,
		Status:      string(res.Incident.Status),
		AgentID:     res.Agent.UserID,
		AgentName:   res.Agent.Username,
		SenderID:    res.Incident.UserID,
		RecipientID: f.AgentID,
	})
	if err != nil {
		h.logger.Error("failed to encode confirm frame", "error", err)
		return
	}
	h.rooms.Broadcast(chatID, out, nil)
	h.logger.Info("sos confirmed", "sos_id", f.SosID, "agent_id", f.AgentID, "chat_id", chatID)
}

func (h *Hub) handleResolveSos(ctx context.Context, c *Client, frame []byte) {
	var f ResolveSosFrame
	if err := json.Unmarshal(frame, &f); err != nil || f.SosID == "" {
		h.logger.Warn("dropping malformed resolve frame", "error", err)
		return
	}

	res, err := h.incidents.Resolve(ctx, f.SosID)
	if err != nil {
		h.sendTransitionError(c, f.SosID, err)
		return
	}
	h.finishBroadcast(c, EventTypeSosResolved, f.SosID, res)
}

func (h *Hub) handleCloseSos(ctx context.Context, c *Client, frame []byte) {
	var f CloseSosFrame
	if err := json.Unmarshal(frame, &f); err != nil || f.SosID == "" {
		h.logger.Warn("dropping malformed close frame", "error", err)
		return
	}

	res, err := h.incidents.Close(ctx, f.SosID, f.Note)
	if err != nil {
		h.sendTransitionError(c, f.SosID, err)
		return
	}
	h.finishBroadcast(c, EventTypeSosClosed, f.SosID, res)
}

// finishBroadcast announces a terminal transition into the case room, or
// directly to the involved identities if no thread was ever created.
func (h *Hub) finishBroadcast(c *Client, eventType, sosID string, res *sos.FinishResult) {
	chatID := "-"
	if res.Thread != nil {
		chatID = res.Thread.ID
	}

	out, err := encodeFrame(FinishSosEvent{
		Type:    eventType,
		ChatID:  chatID,
		SosID:   sosID,
		Message: res.Message,
	})
	if err != nil {
		h.logger.Error("failed to encode finish frame", "error", err)
		return
	}

	if res.Thread != nil {
		h.rooms.AddParticipant(chatID, c)
		for _, userID := range res.Recipients {
			h.rooms.AddParticipant(chatID, h.registry.Lookup(userID)...)
		}
		h.rooms.Broadcast(chatID, out, nil)
	} else {
		delivered := false
		for _, userID := range res.Recipients {
			h.registry.SendToUser(userID, out)
			if userID == c.UserID() {
				delivered = true
			}
		}
		// The caller always gets a response, bound identity or not.
		if !delivered {
			_ = c.Send(out)
		}
	}
	h.logger.Info("sos finished", "sos_id", sosID, "event", eventType, "chat_id", chatID)
}

// sendTransitionError maps a lifecycle failure to the error frame sent
// back to the originating connection.
func (h *Hub) sendTransitionError(c *Client, sosID string, err error) {
	switch {
	case errors.Is(err, domain.ErrIncidentNotFound):
		c.sendError("not_found", "Incident not found")
	case errors.Is(err, domain.ErrAlreadyConfirmed):
		c.sendError("already_confirmed", "Incident already confirmed by another agent")
	case errors.Is(err, domain.ErrNotConfirmed):
		c.sendError("not_confirmed", "Incident has not been confirmed")
	case errors.Is(err, domain.ErrIncidentTerminal):
		c.sendError("already_finished", "Incident already resolved or closed")
	default:
		h.logger.Error("incident transition failed", "sos_id", sosID, "error", err)
		c.sendError("transition_failed", "Failed to update incident")
	}
}

// handleTyping relays typing and stop-typing into the thread's room,
// suppressing the echo to the originator. Nothing is persisted.
func (h *Hub) handleTyping(_ context.Context, c *Client, frame []byte, eventType string) {
	var f TypingFrame
	if err := json.Unmarshal(frame, &f); err != nil || f.ChatID == "" {
		return
	}

	h.rooms.AddParticipant(f.ChatID, h.registry.Lookup(f.Sender)...)
	h.rooms.AddParticipant(f.ChatID, h.registry.Lookup(f.Recipient)...)

	out, err := encodeFrame(TypingEvent{
		Type:      eventType,
		ChatID:    f.ChatID,
		Sender:    f.Sender,
		Recipient: f.Recipient,
	})
	if err != nil {
		return
	}
	h.rooms.Broadcast(f.ChatID, out, c)
}

func (h *Hub) handleAckRead(ctx context.Context, c *Client, frame []byte) {
	var f AckReadFrame
	if err := json.Unmarshal(frame, &f); err != nil || f.ChatID == "" {
		h.logger.Warn("dropping malformed ack-read frame", "error", err)
		return
	}

	if err := h.chats.MarkRead(ctx, f.ChatID, f.Sender); err != nil {
		h.logger.Error("failed to mark messages read", "chat_id", f.ChatID, "error", err)
		return
	}

	h.rooms.AddParticipant(f.ChatID, h.registry.Lookup(f.Sender)...)
	h.rooms.AddParticipant(f.ChatID, h.registry.Lookup(f.Recipient)...)

	out, err := encodeFrame(AckReadEvent{
		Type:      EventTypeAckRead,
		ChatID:    f.ChatID,
		Sender:    f.Sender,
		Recipient: f.Recipient,
	})
	if err != nil {
		return
	}
	h.rooms.Broadcast(f.ChatID, out, c)
}

func (h *Hub) handleGetChat(ctx context.Context, c *Client, frame []byte) {
	var f GetChatFrame
	if err := json.Unmarshal(frame, &f); err != nil || f.Sender == "" {
		h.logger.Warn("dropping malformed get-chat frame", "error", err)
		return
	}

	threads, err := h.chats.ListThreads(ctx, f.Sender)
	if err != nil {
		// Degrade to an empty listing; the caller still gets a response.
		h.logger.Error("failed to list threads", "user_id", f.Sender, "error", err)
	}
	c.sendEvent(ChatsEvent{Type: EventTypeChats, Data: threads})
}

func (h *Hub) handleContact(ctx context.Context, c *Client, frame []byte) {
	var f ContactFrame
	if err := json.Unmarshal(frame, &f); err != nil || f.Sender == "" {
		h.logger.Warn("dropping malformed contact frame", "error", err)
		return
	}

	contacts, err := h.users.ListContacts(ctx, f.Sender)
	if err != nil {
		h.logger.Error("failed to list contacts", "user_id", f.Sender, "error", err)
	}
	c.sendEvent(ContactsEvent{Type: EventTypeContacts, Data: contacts})
}

// publishPresence routes an online/offline transition through the pubsub
// layer; the local subscription (and any peer instance's) fans it out.
func (h *Hub) publishPresence(ctx context.Context, eventType, userID string) {
	frame, err := encodeFrame(PresenceEvent{Type: eventType, UserID: userID})
	if err != nil {
		return
	}
	msg := &pubsub.Message{
		Topic:   pubsub.Topics.Presence(),
		Type:    eventType,
		Payload: frame,
	}
	if err := h.ps.Publish(ctx, msg.Topic, msg); err != nil {
		h.logger.Error("failed to publish presence", "user_id", userID, "error", err)
	}
}

func (h *Hub) profileOrPlaceholder(ctx context.Context, userID string) domain.Profile {
	p, err := h.users.GetProfile(ctx, userID)
	if err != nil {
		h.logger.Warn("profile lookup failed", "user_id", userID, "error", err)
		return domain.PlaceholderProfile(userID)
	}
	return *p
}

func (h *Hub) notifyUser(ctx context.Context, userID string, n push.Notification) {
	token, err := h.users.GetPushToken(ctx, userID)
	if err != nil {
		h.logger.Warn("push token lookup failed", "user_id", userID, "error", err)
		return
	}
	if token == "" {
		return
	}
	n.Token = token
	h.pusher.Enqueue(n)
}
