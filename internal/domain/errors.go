package domain

import "errors"

// Sentinel errors checked with errors.Is at handler boundaries.
var (
	ErrIncidentNotFound = errors.New("incident not found")
	ErrAlreadyConfirmed = errors.New("incident already confirmed")
	ErrNotConfirmed     = errors.New("incident not yet confirmed")
	ErrIncidentTerminal = errors.New("incident already resolved or closed")
	ErrThreadNotFound   = errors.New("chat thread not found")
	ErrUserNotFound     = errors.New("user not found")
)
