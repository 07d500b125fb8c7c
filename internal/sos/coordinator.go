// Package sos tracks an emergency case through its lifecycle
// (reported -> confirmed -> resolved|closed) and decides, at each
// transition, who has to be told. Fan-out to live connections is the
// hub's job; the coordinator returns the recipients and payload data.
package sos

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/NKRI-78/websockets-rakhsa/internal/domain"
	"github.com/NKRI-78/websockets-rakhsa/internal/geo"
	"github.com/NKRI-78/websockets-rakhsa/internal/push"
)

// IncidentStore is the persistence surface for SOS cases.
type IncidentStore interface {
	Create(ctx context.Context, inc *domain.Incident) error
	GetByID(ctx context.Context, id string) (*domain.Incident, error)
	Confirm(ctx context.Context, id, agentID string) error
	Resolve(ctx context.Context, id string) error
	Close(ctx context.Context, id, note string) error
}

// ChatStore covers the thread operations tied to an incident.
type ChatStore interface {
	CreateThread(ctx context.Context, t *domain.Thread) error
	GetBySosID(ctx context.Context, sosID string) (*domain.Thread, error)
	ExpireMessages(ctx context.Context, chatID string) error
}

// ProfileStore resolves identities to profiles and device tokens.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
	GetPushToken(ctx context.Context, userID string) (string, error)
}

// Roster looks up the on-duty agents for a region.
type Roster interface {
	ByRegion(ctx context.Context, region string) ([]domain.Agent, error)
}

// Pusher accepts fire-and-forget notifications.
type Pusher interface {
	Enqueue(n push.Notification)
}

// Coordinator serializes every mutation of a single incident behind a
// per-incident lock, so concurrent confirms cannot both win.
type Coordinator struct {
	incidents IncidentStore
	chats     ChatStore
	users     ProfileStore
	agents    Roster
	pusher    Pusher
	region    func(country string) string
	logger    *slog.Logger

	mu    sync.Mutex
	locks map[string]*incidentLock
}

type incidentLock struct {
	mu   sync.Mutex
	refs int
}

func NewCoordinator(incidents IncidentStore, chats ChatStore, users ProfileStore, agents Roster, pusher Pusher, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		incidents: incidents,
		chats:     chats,
		users:     users,
		agents:    agents,
		pusher:    pusher,
		region:    geo.Resolve,
		logger:    logger.With("component", "sos"),
		locks:     make(map[string]*incidentLock),
	}
}

// lock acquires the per-incident critical section and returns its release
// func. Lock entries are reference counted so the map does not accumulate
// one entry per incident ever seen.
func (c *Coordinator) lock(id string) func() {
	c.mu.Lock()
	l, ok := c.locks[id]
	if !ok {
		l = &incidentLock{}
		c.locks[id] = l
	}
	l.refs++
	c.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		c.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.locks, id)
		}
		c.mu.Unlock()
	}
}

// Report is an inbound SOS case as reported from a device.
type Report struct {
	SosID    string
	UserID   string
	Media    string
	Ext      string
	Location string
	Lat      string
	Lng      string
	Country  string
	Time     string
	Platform string
}

// ReportResult carries what the hub needs to broadcast the new case.
type ReportResult struct {
	Incident *domain.Incident
	Reporter domain.Profile
	Region   string
	// AgentIDs is the geo-matched roster. May be empty: the incident
	// persists silently and nobody is notified.
	AgentIDs []string
}

// Report persists a new incident and resolves the candidate agent set for
// the reporter's region.
func (c *Coordinator) Report(ctx context.Context, rep Report) (*ReportResult, error) {
	inc := &domain.Incident{
		ID:       rep.SosID,
		UserID:   rep.UserID,
		Status:   domain.IncidentReported,
		Location: rep.Location,
		Media:    rep.Media,
		Type:     domain.MediaTypeFromExt(rep.Ext),
		Lat:      rep.Lat,
		Lng:      rep.Lng,
		Country:  rep.Country,
		Time:     rep.Time,
		Platform: rep.Platform,
	}

	if err := c.incidents.Create(ctx, inc); err != nil {
		return nil, fmt.Errorf("persist incident: %w", err)
	}

	region := c.region(rep.Country)

	res := &ReportResult{
		Incident: inc,
		Reporter: c.profileOrPlaceholder(ctx, rep.UserID),
		Region:   region,
	}

	agents, err := c.agents.ByRegion(ctx, region)
	if err != nil {
		// The incident is already persisted; a roster failure only costs
		// the notification.
		c.logger.Error("agent roster lookup failed", "sos_id", rep.SosID, "region", region, "error", err)
		return res, nil
	}
	for _, a := range agents {
		res.AgentIDs = append(res.AgentIDs, a.UserID)
	}
	return res, nil
}

// ConfirmResult carries what the hub needs to announce a confirmation.
type ConfirmResult struct {
	Incident *domain.Incident
	Thread   *domain.Thread
	Agent    domain.Profile
	Reporter domain.Profile
}

// Confirm assigns the agent to a reported incident and opens the chat
// thread pairing agent and reporter. Exactly one concurrent confirm wins;
// the rest get domain.ErrAlreadyConfirmed.
func (c *Coordinator) Confirm(ctx context.Context, sosID, agentID string) (*ConfirmResult, error) {
	unlock := c.lock(sosID)
	defer unlock()

	inc, err := c.incidents.GetByID(ctx, sosID)
	if err != nil {
		return nil, err
	}
	if err := inc.CanConfirm(); err != nil {
		return nil, err
	}

	thread := &domain.Thread{
		ID:         uuid.NewString(),
		SenderID:   inc.UserID,
		ReceiverID: agentID,
		SosID:      &sosID,
	}
	if err := c.chats.CreateThread(ctx, thread); err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}
	if err := c.incidents.Confirm(ctx, sosID, agentID); err != nil {
		return nil, err
	}
	inc.Status = domain.IncidentConfirmed
	inc.AgentID = &agentID

	res := &ConfirmResult{
		Incident: inc,
		Thread:   thread,
		Agent:    c.profileOrPlaceholder(ctx, agentID),
		Reporter: c.profileOrPlaceholder(ctx, inc.UserID),
	}

	c.notify(ctx, inc.UserID, push.Notification{
		Title:    fmt.Sprintf("%s telah terhubung dengan Anda", res.Agent.Username),
		Body:     fmt.Sprintf("Halo %s", res.Reporter.Username),
		Category: "agent-confirm-sos",
	})

	return res, nil
}

// FinishResult carries what the hub needs to announce a terminal transition.
type FinishResult struct {
	Incident *domain.Incident
	// Thread is nil if no thread was ever created for the case.
	Thread  *domain.Thread
	Message string
	// Recipients are the identities to notify: reporter and, when
	// assigned, the agent.
	Recipients []string
}

// Resolve moves a confirmed incident to resolved, on the reporter's request.
func (c *Coordinator) Resolve(ctx context.Context, sosID string) (*FinishResult, error) {
	return c.finish(ctx, sosID, domain.IncidentResolved, "")
}

// Close moves a confirmed incident to closed, recording the agent's note.
func (c *Coordinator) Close(ctx context.Context, sosID, note string) (*FinishResult, error) {
	return c.finish(ctx, sosID, domain.IncidentClosed, note)
}

func (c *Coordinator) finish(ctx context.Context, sosID string, status domain.IncidentStatus, note string) (*FinishResult, error) {
	unlock := c.lock(sosID)
	defer unlock()

	inc, err := c.incidents.GetByID(ctx, sosID)
	if err != nil {
		return nil, err
	}
	if err := inc.CanFinish(); err != nil {
		return nil, err
	}

	if status == domain.IncidentClosed {
		err = c.incidents.Close(ctx, sosID, note)
	} else {
		err = c.incidents.Resolve(ctx, sosID)
	}
	if err != nil {
		return nil, err
	}
	inc.Status = status
	inc.Note = note

	res := &FinishResult{
		Incident:   inc,
		Recipients: []string{inc.UserID},
	}
	if inc.AgentID != nil {
		res.Recipients = append(res.Recipients, *inc.AgentID)
	}

	thread, err := c.chats.GetBySosID(ctx, sosID)
	if err != nil {
		// A confirmed case normally has a thread; proceed without one and
		// the hub falls back to direct identity sends.
		c.logger.Warn("no thread for finished incident", "sos_id", sosID, "error", err)
	} else {
		res.Thread = thread
		if err := c.chats.ExpireMessages(ctx, thread.ID); err != nil {
			c.logger.Error("failed to expire thread messages", "chat_id", thread.ID, "error", err)
		}
	}

	if status == domain.IncidentResolved {
		res.Message = "Terima kasih telah menggunakan layanan Raksha"
		c.notify(ctx, inc.UserID, push.Notification{
			Title:    "Anda telah menyelesaikan kasus ini",
			Body:     res.Message,
			Category: "agent-resolved-sos",
		})
	} else {
		res.Message = note
		agentName := "-"
		if inc.AgentID != nil {
			agentName = c.profileOrPlaceholder(ctx, *inc.AgentID).Username
		}
		c.notify(ctx, inc.UserID, push.Notification{
			Title:    fmt.Sprintf("%s telah menutup kasus ini", agentName),
			Body:     note,
			Category: "agent-closed-sos",
		})
	}

	return res, nil
}

// profileOrPlaceholder never fails: a missing or unreadable profile is
// replaced so a response can still be produced.
func (c *Coordinator) profileOrPlaceholder(ctx context.Context, userID string) domain.Profile {
	p, err := c.users.GetProfile(ctx, userID)
	if err != nil {
		c.logger.Warn("profile lookup failed", "user_id", userID, "error", err)
		return domain.PlaceholderProfile(userID)
	}
	return *p
}

// notify queues a push notification to the identity's device, if it has
// one. Failures cost the notification, never the transition.
func (c *Coordinator) notify(ctx context.Context, userID string, n push.Notification) {
	token, err := c.users.GetPushToken(ctx, userID)
	if err != nil {
		c.logger.Warn("push token lookup failed", "user_id", userID, "error", err)
		return
	}
	if token == "" {
		return
	}
	n.Token = token
	c.pusher.Enqueue(n)
}
