package domain

import "time"

// IncidentStatus is the lifecycle state of an SOS case.
// Transitions only move forward: reported -> confirmed -> resolved|closed.
type IncidentStatus string

const (
	IncidentReported  IncidentStatus = "reported"
	IncidentConfirmed IncidentStatus = "confirmed"
	IncidentResolved  IncidentStatus = "resolved"
	IncidentClosed    IncidentStatus = "closed"
)

// Terminal reports whether no further transition is allowed.
func (s IncidentStatus) Terminal() bool {
	return s == IncidentResolved || s == IncidentClosed
}

type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

// MediaTypeFromExt maps a file extension to the broadcast media type.
// Anything that is not a jpg still photo is treated as video, matching
// how clients record SOS evidence.
func MediaTypeFromExt(ext string) MediaType {
	if ext == "jpg" {
		return MediaTypeImage
	}
	return MediaTypeVideo
}

// Incident is one SOS case. Geo and media fields are carried through to
// notified parties without interpretation.
type Incident struct {
	ID       string         `json:"id"`
	UserID   string         `json:"user_id"`
	AgentID  *string        `json:"agent_id,omitempty"`
	Status   IncidentStatus `json:"status"`
	Location string         `json:"location"`
	Media    string         `json:"media"`
	Type     MediaType      `json:"media_type"`
	Lat      string         `json:"lat"`
	Lng      string         `json:"lng"`
	Country  string         `json:"country"`
	Time     string         `json:"time"`
	Platform string         `json:"platform_type"`
	Note     string         `json:"note,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CanConfirm reports whether the incident may move to confirmed.
func (i *Incident) CanConfirm() error {
	switch i.Status {
	case IncidentReported:
		return nil
	case IncidentConfirmed:
		return ErrAlreadyConfirmed
	default:
		return ErrIncidentTerminal
	}
}

// CanFinish reports whether the incident may move to a terminal state.
func (i *Incident) CanFinish() error {
	switch i.Status {
	case IncidentConfirmed:
		return nil
	case IncidentReported:
		return ErrNotConfirmed
	default:
		return ErrIncidentTerminal
	}
}
