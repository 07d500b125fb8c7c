package domain

import "time"

// Profile is the public projection of a user or agent account. Identity
// itself is owned by the auth layer upstream; the relay only ever sees
// the opaque user_id.
type Profile struct {
	UserID     string     `json:"user_id"`
	Username   string     `json:"username"`
	Avatar     string     `json:"avatar"`
	Online     bool       `json:"is_online"`
	LastActive *time.Time `json:"last_active,omitempty"`
}

// PlaceholderProfile stands in for a missing profile lookup so a response
// can still be sent to the originating connection.
func PlaceholderProfile(userID string) Profile {
	return Profile{UserID: userID, Username: "-", Avatar: "-"}
}

// Agent is one on-duty field agent eligible to receive SOS broadcasts
// for a region.
type Agent struct {
	UserID string `json:"user_id"`
	Region string `json:"region"`
}
