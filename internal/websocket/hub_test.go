package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NKRI-78/websockets-rakhsa/internal/domain"
	"github.com/NKRI-78/websockets-rakhsa/internal/pubsub"
	"github.com/NKRI-78/websockets-rakhsa/internal/push"
	"github.com/NKRI-78/websockets-rakhsa/internal/sos"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeChats struct {
	mu        sync.Mutex
	threads   map[string]*domain.Thread
	created   []*domain.Thread
	inserted  []*domain.ChatMessage
	readMarks [][2]string
	summaries []domain.ThreadSummary
	markErr   error
	listErr   error
}

func newFakeChats() *fakeChats {
	return &fakeChats{threads: make(map[string]*domain.Thread)}
}

func (f *fakeChats) FindThread(_ context.Context, a, b string) (*domain.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.threads[a+"|"+b]; ok {
		return t, nil
	}
	if t, ok := f.threads[b+"|"+a]; ok {
		return t, nil
	}
	return nil, domain.ErrThreadNotFound
}

func (f *fakeChats) CreateThread(_ context.Context, t *domain.Thread) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *t
	f.threads[t.SenderID+"|"+t.ReceiverID] = &cp
	f.created = append(f.created, &cp)
	return nil
}

func (f *fakeChats) InsertMessage(_ context.Context, m *domain.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *m
	f.inserted = append(f.inserted, &cp)
	return nil
}

func (f *fakeChats) MarkRead(_ context.Context, chatID, userID string) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readMarks = append(f.readMarks, [2]string{chatID, userID})
	return nil
}

func (f *fakeChats) ListThreads(_ context.Context, _ string) ([]domain.ThreadSummary, error) {
	return f.summaries, f.listErr
}

type fakeUsers struct {
	mu       sync.Mutex
	profiles map[string]domain.Profile
	tokens   map[string]string
	contacts []domain.Profile
	presence map[string]bool
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		profiles: map[string]domain.Profile{
			"user-1":  {UserID: "user-1", Username: "budi", Avatar: "budi.png"},
			"user-2":  {UserID: "user-2", Username: "sari", Avatar: "sari.png"},
			"agent-1": {UserID: "agent-1", Username: "agent_tokyo", Avatar: "agent.png"},
		},
		tokens:   make(map[string]string),
		presence: make(map[string]bool),
	}
}

func (f *fakeUsers) GetProfile(_ context.Context, userID string) (*domain.Profile, error) {
	p, ok := f.profiles[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &p, nil
}

func (f *fakeUsers) GetPushToken(_ context.Context, userID string) (string, error) {
	return f.tokens[userID], nil
}

func (f *fakeUsers) SetPresence(ctx context.Context, userID string, online bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presence[userID] = online
	return nil
}

func (f *fakeUsers) ListContacts(_ context.Context, _ string) ([]domain.Profile, error) {
	return f.contacts, nil
}

func (f *fakeUsers) online(userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.presence[userID]
}

type fakeCoordinator struct {
	reportRes  *sos.ReportResult
	reportErr  error
	confirmRes *sos.ConfirmResult
	confirmErr error
	finishRes  *sos.FinishResult
	finishErr  error

	mu       sync.Mutex
	reported []sos.Report
}

func (f *fakeCoordinator) Report(_ context.Context, rep sos.Report) (*sos.ReportResult, error) {
	f.mu.Lock()
	f.reported = append(f.reported, rep)
	f.mu.Unlock()
	return f.reportRes, f.reportErr
}

func (f *fakeCoordinator) Confirm(_ context.Context, _, _ string) (*sos.ConfirmResult, error) {
	return f.confirmRes, f.confirmErr
}

func (f *fakeCoordinator) Resolve(_ context.Context, _ string) (*sos.FinishResult, error) {
	return f.finishRes, f.finishErr
}

func (f *fakeCoordinator) Close(_ context.Context, _, _ string) (*sos.FinishResult, error) {
	return f.finishRes, f.finishErr
}

type recordingPusher struct {
	mu   sync.Mutex
	sent []push.Notification
}

func (p *recordingPusher) Enqueue(n push.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, n)
}

func (p *recordingPusher) notifications() []push.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]push.Notification(nil), p.sent...)
}

type hubFixture struct {
	hub         *Hub
	chats       *fakeChats
	users       *fakeUsers
	coordinator *fakeCoordinator
	pusher      *recordingPusher
}

// newHubFixture wires a hub against in-memory fakes. The presence
// subscription is not started; presence delivery has its own test.
func newHubFixture(broadcastAllSos bool) *hubFixture {
	chats := newFakeChats()
	users := newFakeUsers()
	coordinator := &fakeCoordinator{}
	pusher := &recordingPusher{}
	hub := NewHub(coordinator, chats, users, pusher, pubsub.NewMemoryPubSub(), broadcastAllSos, testLogger())
	return &hubFixture{hub: hub, chats: chats, users: users, coordinator: coordinator, pusher: pusher}
}

// connect upgrades-and-joins a test client in one step.
func (f *hubFixture) connect(userID string) *Client {
	c := newTestClient()
	c.hub = f.hub
	f.hub.handleConnect(c)
	f.hub.route(context.Background(), c, []byte(fmt.Sprintf(`{"type":"join","user_id":%q}`, userID)))
	return c
}

// =============================================================================
// Join / Leave / Disconnect
// =============================================================================

func TestHub_Join_BindsIdentityAndRecordsPresence(t *testing.T) {
	f := newHubFixture(false)

	c := f.connect("user-1")

	assert.Equal(t, "user-1", c.UserID())
	assert.True(t, f.hub.Registry().Online("user-1"))
	assert.True(t, f.users.online("user-1"))
}

func TestHub_Join_FlushesOfflineQueue(t *testing.T) {
	f := newHubFixture(false)
	f.hub.queue.Enqueue("user-1", []byte(`{"type":"fetch-message"}`))

	c := f.connect("user-1")

	assert.Equal(t, []byte(`{"type":"fetch-message"}`), recvFrame(t, c))
	assert.Zero(t, f.hub.queue.Len("user-1"))
}

func TestHub_Leave_LastConnectionGoesOffline(t *testing.T) {
	f := newHubFixture(false)
	c := f.connect("user-1")

	f.hub.route(context.Background(), c, []byte(`{"type":"leave","user_id":"user-1"}`))

	assert.False(t, f.hub.Registry().Online("user-1"))
	assert.False(t, f.users.online("user-1"))
}

func TestHub_Leave_OtherDeviceStaysOnline(t *testing.T) {
	f := newHubFixture(false)
	c1 := f.connect("user-1")
	f.connect("user-1")

	f.hub.route(context.Background(), c1, []byte(`{"type":"leave","user_id":"user-1"}`))

	assert.True(t, f.hub.Registry().Online("user-1"))
	assert.True(t, f.users.online("user-1"))
}

func TestHub_Disconnect_CleansUp(t *testing.T) {
	f := newHubFixture(false)
	c := f.connect("user-1")
	f.hub.rooms.AddParticipant("chat-1", c)

	f.hub.handleDisconnect(context.Background(), c)

	assert.False(t, f.hub.Registry().Online("user-1"))
	assert.False(t, f.users.online("user-1"))
	assert.Zero(t, f.hub.rooms.Size("chat-1"))
	assert.Empty(t, f.hub.Connections())
}

func TestHub_Disconnect_TerminatedConnectionStillGoesOffline(t *testing.T) {
	f := newHubFixture(false)
	c := f.connect("user-1")

	// Monitor-style eviction: Terminate cancels the connection's context
	// before the read pump unwinds into cleanup.
	ctx, cancel := context.WithCancel(context.Background())
	c.SetCancelFunc(cancel)
	c.Terminate()
	require.Error(t, ctx.Err())

	f.hub.handleDisconnect(ctx, c)

	assert.False(t, f.hub.Registry().Online("user-1"))
	assert.False(t, f.users.online("user-1"))
}

func TestHub_Disconnect_NeverJoined(t *testing.T) {
	f := newHubFixture(false)
	c := newTestClient()
	c.hub = f.hub
	f.hub.handleConnect(c)

	f.hub.handleDisconnect(context.Background(), c)

	assert.Empty(t, f.hub.Connections())
}

func TestHub_Presence_ReachesAllConnectionsViaPubSub(t *testing.T) {
	f := newHubFixture(false)
	require.NoError(t, f.hub.Start(context.Background()))
	defer f.hub.Stop()

	observer := f.connect("user-1")
	f.connect("user-2")

	// The in-memory pubsub hands frames to the hub asynchronously.
	require.Eventually(t, func() bool {
		for {
			select {
			case frame := <-observer.send:
				var ev PresenceEvent
				if json.Unmarshal(frame, &ev) == nil &&
					ev.Type == EventTypeUserOnline && ev.UserID == "user-2" {
					return true
				}
			default:
				return false
			}
		}
	}, time.Second, 10*time.Millisecond)
}

// =============================================================================
// Direct messages
// =============================================================================

func messageFrame(chatID string) []byte {
	return []byte(fmt.Sprintf(
		`{"type":"message","chat_id":%q,"sender":"user-1","recipient":"user-2","text":"are you safe?"}`,
		chatID))
}

func TestHub_Message_DeliveredLiveToBothSides(t *testing.T) {
	f := newHubFixture(false)
	sender := f.connect("user-1")
	recipient := f.connect("user-2")

	f.hub.route(context.Background(), sender, messageFrame("chat-1"))

	senderView := recvEvent(t, sender)
	assert.Equal(t, EventTypeFetchMessage, senderView["type"])
	senderData := senderView["data"].(map[string]any)
	assert.Equal(t, "chat-1", senderData["chat_id"])
	assert.Equal(t, "are you safe?", senderData["text"])
	assert.Equal(t, true, senderData["user"].(map[string]any)["is_me"])

	recipientView := recvEvent(t, recipient)
	recipientData := recipientView["data"].(map[string]any)
	assert.Equal(t, false, recipientData["user"].(map[string]any)["is_me"])
	assert.Equal(t, "sari", recipientData["user"].(map[string]any)["name"])
	assert.Equal(t, "budi", recipientData["sender"].(map[string]any)["name"])

	// Delivered live, so nothing was queued.
	assert.Zero(t, f.hub.queue.Len("user-2"))
	require.Len(t, f.chats.inserted, 1)
	assert.Equal(t, "are you safe?", f.chats.inserted[0].Content)
}

func TestHub_Message_OfflineRecipientQueued(t *testing.T) {
	f := newHubFixture(false)
	sender := f.connect("user-1")

	f.hub.route(context.Background(), sender, messageFrame("chat-1"))

	recvEvent(t, sender)
	assert.Equal(t, 1, f.hub.queue.Len("user-2"))

	// The queued copy arrives on the recipient's next join.
	recipient := f.connect("user-2")
	view := recvEvent(t, recipient)
	assert.Equal(t, EventTypeFetchMessage, view["type"])
	assert.Equal(t, false, view["data"].(map[string]any)["user"].(map[string]any)["is_me"])
	assert.Zero(t, f.hub.queue.Len("user-2"))
}

func TestHub_Message_LazyThreadCreation(t *testing.T) {
	f := newHubFixture(false)
	sender := f.connect("user-1")

	f.hub.route(context.Background(), sender, messageFrame(""))

	require.Len(t, f.chats.created, 1)
	thread := f.chats.created[0]
	assert.Equal(t, "user-1", thread.SenderID)
	assert.Equal(t, "user-2", thread.ReceiverID)
	require.Len(t, f.chats.inserted, 1)
	assert.Equal(t, thread.ID, f.chats.inserted[0].ThreadID)
}

func TestHub_Message_ReusesExistingThread(t *testing.T) {
	f := newHubFixture(false)
	existing := &domain.Thread{ID: "chat-9", SenderID: "user-2", ReceiverID: "user-1"}
	require.NoError(t, f.chats.CreateThread(context.Background(), existing))
	f.chats.created = nil
	sender := f.connect("user-1")

	f.hub.route(context.Background(), sender, messageFrame(""))

	assert.Empty(t, f.chats.created)
	require.Len(t, f.chats.inserted, 1)
	assert.Equal(t, "chat-9", f.chats.inserted[0].ThreadID)
}

func TestHub_Message_PushesToRecipientDevice(t *testing.T) {
	f := newHubFixture(false)
	f.users.tokens["user-2"] = "device-token-2"
	sender := f.connect("user-1")

	f.hub.route(context.Background(), sender, messageFrame("chat-1"))

	sent := f.pusher.notifications()
	require.Len(t, sent, 1)
	assert.Equal(t, "budi", sent[0].Title)
	assert.Equal(t, "are you safe?", sent[0].Body)
	assert.Equal(t, "send-msg", sent[0].Category)
	assert.Equal(t, "device-token-2", sent[0].Token)
}

func TestHub_Message_NoTokenNoPush(t *testing.T) {
	f := newHubFixture(false)
	sender := f.connect("user-1")

	f.hub.route(context.Background(), sender, messageFrame("chat-1"))

	assert.Empty(t, f.pusher.notifications())
}

// =============================================================================
// SOS report
// =============================================================================

func sosFrame() []byte {
	return []byte(`{"type":"sos","sos_id":"sos-1","user_id":"user-1","media":"https://cdn.example.com/e.jpg","ext":"jpg","location":"Shibuya","lat":"35.658","lng":"139.701","country":"Japan","time":"10:30","platform_type":"android"}`)
}

func reportResult() *sos.ReportResult {
	return &sos.ReportResult{
		Incident: &domain.Incident{
			ID:     "sos-1",
			UserID: "user-1",
			Status: domain.IncidentReported,
			Type:   domain.MediaTypeImage,
		},
		Reporter: domain.Profile{UserID: "user-1", Username: "budi"},
		Region:   "Asia",
		AgentIDs: []string{"agent-1"},
	}
}

func TestHub_Sos_ReachesMatchedAgentsOnly(t *testing.T) {
	f := newHubFixture(false)
	f.coordinator.reportRes = reportResult()

	reporter := f.connect("user-1")
	agent := f.connect("agent-1")
	bystander := f.connect("user-2")

	f.hub.route(context.Background(), reporter, sosFrame())

	ev := recvEvent(t, agent)
	assert.Equal(t, EventTypeSosBroadcast, ev["type"])
	assert.Equal(t, "sos-1", ev["id"])
	assert.Equal(t, "budi", ev["sender"].(map[string]any)["name"])
	assert.Equal(t, "image", ev["media_type"])
	assert.Equal(t, "Japan", ev["country"])

	assertNoFrame(t, bystander)
	assertNoFrame(t, reporter)
}

func TestHub_Sos_BroadcastAllPolicy(t *testing.T) {
	f := newHubFixture(true)
	f.coordinator.reportRes = reportResult()

	reporter := f.connect("user-1")
	bystander := f.connect("user-2")

	f.hub.route(context.Background(), reporter, sosFrame())

	recvEvent(t, reporter)
	recvEvent(t, bystander)
}

func TestHub_Sos_NoMatchedAgents(t *testing.T) {
	f := newHubFixture(false)
	res := reportResult()
	res.AgentIDs = nil
	f.coordinator.reportRes = res

	reporter := f.connect("user-1")
	f.hub.route(context.Background(), reporter, sosFrame())

	// The incident persisted; nobody was notified.
	assertNoFrame(t, reporter)
	require.Len(t, f.coordinator.reported, 1)
	assert.Equal(t, "sos-1", f.coordinator.reported[0].SosID)
}

func TestHub_Sos_ReportFailure(t *testing.T) {
	f := newHubFixture(false)
	f.coordinator.reportErr = assert.AnError

	reporter := f.connect("user-1")
	f.hub.route(context.Background(), reporter, sosFrame())

	ev := recvEvent(t, reporter)
	assert.Equal(t, EventTypeError, ev["type"])
	assert.Equal(t, "sos_failed", ev["code"])
}

// =============================================================================
// Confirm / Resolve / Close
// =============================================================================

func confirmResult() *sos.ConfirmResult {
	sosID := "sos-1"
	agentID := "agent-1"
	return &sos.ConfirmResult{
		Incident: &domain.Incident{
			ID:      "sos-1",
			UserID:  "user-1",
			AgentID: &agentID,
			Status:  domain.IncidentConfirmed,
		},
		Thread:   &domain.Thread{ID: "chat-1", SenderID: "user-1", ReceiverID: "agent-1", SosID: &sosID},
		Agent:    domain.Profile{UserID: "agent-1", Username: "agent_tokyo"},
		Reporter: domain.Profile{UserID: "user-1", Username: "budi"},
	}
}

func TestHub_ConfirmSos_OpensRoomForBothParties(t *testing.T) {
	f := newHubFixture(false)
	f.coordinator.confirmRes = confirmResult()

	reporter := f.connect("user-1")
	agent := f.connect("agent-1")

	f.hub.route(context.Background(), agent, []byte(`{"type":"agent-confirm-sos","sos_id":"sos-1","user_agent_id":"agent-1"}`))

	agentView := recvEvent(t, agent)
	reporterView := recvEvent(t, reporter)

	assert.Equal(t, EventTypeSosConfirmed, agentView["type"])
	assert.Equal(t, agentView["chat_id"], reporterView["chat_id"])
	assert.Equal(t, "chat-1", agentView["chat_id"])
	assert.Equal(t, "confirmed", agentView["status"])
	assert.Equal(t, "agent_tokyo", reporterView["agent_name"])

	assert.Equal(t, 2, f.hub.rooms.Size("chat-1"))
}

func TestHub_ConfirmSos_AlreadyConfirmed(t *testing.T) {
	f := newHubFixture(false)
	f.coordinator.confirmErr = domain.ErrAlreadyConfirmed

	agent := f.connect("agent-1")
	f.hub.route(context.Background(), agent, []byte(`{"type":"agent-confirm-sos","sos_id":"sos-1","user_agent_id":"agent-1"}`))

	ev := recvEvent(t, agent)
	assert.Equal(t, EventTypeError, ev["type"])
	assert.Equal(t, "already_confirmed", ev["code"])
}

func TestHub_ConfirmSos_NotFound(t *testing.T) {
	f := newHubFixture(false)
	f.coordinator.confirmErr = domain.ErrIncidentNotFound

	agent := f.connect("agent-1")
	f.hub.route(context.Background(), agent, []byte(`{"type":"agent-confirm-sos","sos_id":"missing","user_agent_id":"agent-1"}`))

	ev := recvEvent(t, agent)
	assert.Equal(t, "not_found", ev["code"])
}

func TestHub_ResolveSos_BroadcastsIntoRoom(t *testing.T) {
	f := newHubFixture(false)
	agentID := "agent-1"
	f.coordinator.finishRes = &sos.FinishResult{
		Incident:   &domain.Incident{ID: "sos-1", UserID: "user-1", AgentID: &agentID, Status: domain.IncidentResolved},
		Thread:     &domain.Thread{ID: "chat-1", SenderID: "user-1", ReceiverID: "agent-1"},
		Message:    "Terima kasih telah menggunakan layanan Raksha",
		Recipients: []string{"user-1", "agent-1"},
	}

	reporter := f.connect("user-1")
	agent := f.connect("agent-1")

	f.hub.route(context.Background(), reporter, []byte(`{"type":"user-resolved-sos","sos_id":"sos-1"}`))

	reporterView := recvEvent(t, reporter)
	agentView := recvEvent(t, agent)

	assert.Equal(t, EventTypeSosResolved, reporterView["type"])
	assert.Equal(t, "chat-1", agentView["chat_id"])
	assert.Equal(t, "Terima kasih telah menggunakan layanan Raksha", agentView["message"])
}

func TestHub_CloseSos_NoThreadFallsBackToDirectSends(t *testing.T) {
	f := newHubFixture(false)
	f.coordinator.finishRes = &sos.FinishResult{
		Incident:   &domain.Incident{ID: "sos-1", UserID: "user-1", Status: domain.IncidentClosed},
		Message:    "Situation handled on site",
		Recipients: []string{"user-1"},
	}

	reporter := f.connect("user-1")
	agent := f.connect("agent-1")

	f.hub.route(context.Background(), agent, []byte(`{"type":"agent-closed-sos","sos_id":"sos-1","note":"Situation handled on site"}`))

	reporterView := recvEvent(t, reporter)
	assert.Equal(t, EventTypeSosClosed, reporterView["type"])
	assert.Equal(t, "-", reporterView["chat_id"])

	// The caller is not among the recipients but still gets the response.
	agentView := recvEvent(t, agent)
	assert.Equal(t, EventTypeSosClosed, agentView["type"])
	assert.Equal(t, "Situation handled on site", agentView["message"])
}

func TestHub_ResolveSos_NotConfirmed(t *testing.T) {
	f := newHubFixture(false)
	f.coordinator.finishErr = domain.ErrNotConfirmed

	reporter := f.connect("user-1")
	f.hub.route(context.Background(), reporter, []byte(`{"type":"user-resolved-sos","sos_id":"sos-1"}`))

	ev := recvEvent(t, reporter)
	assert.Equal(t, "not_confirmed", ev["code"])
}

// =============================================================================
// Typing / read receipts
// =============================================================================

func TestHub_Typing_RelayedWithoutEcho(t *testing.T) {
	f := newHubFixture(false)
	sender := f.connect("user-1")
	recipient := f.connect("user-2")

	f.hub.route(context.Background(), sender, []byte(`{"type":"typing","chat_id":"chat-1","sender":"user-1","recipient":"user-2"}`))

	ev := recvEvent(t, recipient)
	assert.Equal(t, EventTypeTyping, ev["type"])
	assert.Equal(t, "chat-1", ev["chat_id"])
	assertNoFrame(t, sender)

	f.hub.route(context.Background(), sender, []byte(`{"type":"stop-typing","chat_id":"chat-1","sender":"user-1","recipient":"user-2"}`))

	ev = recvEvent(t, recipient)
	assert.Equal(t, EventTypeStopTyping, ev["type"])
	assertNoFrame(t, sender)
}

func TestHub_AckRead_MarksAndNotifiesCounterpart(t *testing.T) {
	f := newHubFixture(false)
	reader := f.connect("user-2")
	counterpart := f.connect("user-1")

	f.hub.route(context.Background(), reader, []byte(`{"type":"ack-read","chat_id":"chat-1","sender":"user-2","recipient":"user-1"}`))

	require.Len(t, f.chats.readMarks, 1)
	assert.Equal(t, [2]string{"chat-1", "user-2"}, f.chats.readMarks[0])

	ev := recvEvent(t, counterpart)
	assert.Equal(t, EventTypeAckRead, ev["type"])
	assertNoFrame(t, reader)
}

func TestHub_AckRead_StoreFailureStopsBroadcast(t *testing.T) {
	f := newHubFixture(false)
	f.chats.markErr = assert.AnError
	reader := f.connect("user-2")
	counterpart := f.connect("user-1")

	f.hub.route(context.Background(), reader, []byte(`{"type":"ack-read","chat_id":"chat-1","sender":"user-2","recipient":"user-1"}`))

	assertNoFrame(t, counterpart)
}

// =============================================================================
// Listings / ping
// =============================================================================

func TestHub_GetChat_ReturnsThreadSummaries(t *testing.T) {
	f := newHubFixture(false)
	f.chats.summaries = []domain.ThreadSummary{
		{ID: "chat-1", Counterpart: domain.Profile{UserID: "user-2", Username: "sari"}, LastMessage: "hi", Unread: 2},
	}

	c := f.connect("user-1")
	f.hub.route(context.Background(), c, []byte(`{"type":"get-chat","sender":"user-1"}`))

	ev := recvEvent(t, c)
	assert.Equal(t, EventTypeChats, ev["type"])
	data := ev["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, "chat-1", data[0].(map[string]any)["chat_id"])
}

func TestHub_GetChat_StoreFailureDegradesToEmpty(t *testing.T) {
	f := newHubFixture(false)
	f.chats.listErr = assert.AnError

	c := f.connect("user-1")
	f.hub.route(context.Background(), c, []byte(`{"type":"get-chat","sender":"user-1"}`))

	ev := recvEvent(t, c)
	assert.Equal(t, EventTypeChats, ev["type"])
}

func TestHub_Contact_ReturnsProfiles(t *testing.T) {
	f := newHubFixture(false)
	f.users.contacts = []domain.Profile{{UserID: "user-2", Username: "sari"}}

	c := f.connect("user-1")
	f.hub.route(context.Background(), c, []byte(`{"type":"contact","sender":"user-1"}`))

	ev := recvEvent(t, c)
	assert.Equal(t, EventTypeContacts, ev["type"])
	assert.Len(t, ev["data"].([]any), 1)
}

func TestHub_Ping_AnsweredWithPong(t *testing.T) {
	f := newHubFixture(false)
	c := f.connect("user-1")

	f.hub.route(context.Background(), c, []byte(`{"type":"ping"}`))

	ev := recvEvent(t, c)
	assert.Equal(t, EventTypePong, ev["type"])
}

// =============================================================================
// Robustness
// =============================================================================

func TestHub_MalformedFrame_Dropped(t *testing.T) {
	f := newHubFixture(false)
	c := f.connect("user-1")

	f.hub.route(context.Background(), c, []byte(`not json at all`))
	f.hub.route(context.Background(), c, []byte(`{"type":"join"}`))
	f.hub.route(context.Background(), c, []byte(`{"type":"message","sender":"user-1"}`))

	assertNoFrame(t, c)
}

func TestHub_UnknownEventType_Ignored(t *testing.T) {
	f := newHubFixture(false)
	c := f.connect("user-1")

	f.hub.route(context.Background(), c, []byte(`{"type":"teleport"}`))

	assertNoFrame(t, c)
}
