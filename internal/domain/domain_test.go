package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIncidentStatus_Terminal(t *testing.T) {
	assert.False(t, IncidentReported.Terminal())
	assert.False(t, IncidentConfirmed.Terminal())
	assert.True(t, IncidentResolved.Terminal())
	assert.True(t, IncidentClosed.Terminal())
}

func TestIncident_CanConfirm(t *testing.T) {
	assert.NoError(t, (&Incident{Status: IncidentReported}).CanConfirm())
	assert.ErrorIs(t, (&Incident{Status: IncidentConfirmed}).CanConfirm(), ErrAlreadyConfirmed)
	assert.ErrorIs(t, (&Incident{Status: IncidentResolved}).CanConfirm(), ErrIncidentTerminal)
	assert.ErrorIs(t, (&Incident{Status: IncidentClosed}).CanConfirm(), ErrIncidentTerminal)
}

func TestIncident_CanFinish(t *testing.T) {
	assert.NoError(t, (&Incident{Status: IncidentConfirmed}).CanFinish())
	assert.ErrorIs(t, (&Incident{Status: IncidentReported}).CanFinish(), ErrNotConfirmed)
	assert.ErrorIs(t, (&Incident{Status: IncidentResolved}).CanFinish(), ErrIncidentTerminal)
	assert.ErrorIs(t, (&Incident{Status: IncidentClosed}).CanFinish(), ErrIncidentTerminal)
}

func TestMediaTypeFromExt(t *testing.T) {
	assert.Equal(t, MediaTypeImage, MediaTypeFromExt("jpg"))
	assert.Equal(t, MediaTypeVideo, MediaTypeFromExt("mp4"))
	assert.Equal(t, MediaTypeVideo, MediaTypeFromExt(""))
	// Other still formats are not special-cased.
	assert.Equal(t, MediaTypeVideo, MediaTypeFromExt("png"))
}

func TestThread_Counterpart(t *testing.T) {
	th := Thread{SenderID: "user-1", ReceiverID: "agent-1"}

	assert.Equal(t, "agent-1", th.Counterpart("user-1"))
	assert.Equal(t, "user-1", th.Counterpart("agent-1"))
	// An outsider sees the sender side.
	assert.Equal(t, "user-1", th.Counterpart("someone-else"))
}

func TestPlaceholderProfile(t *testing.T) {
	p := PlaceholderProfile("user-1")

	assert.Equal(t, "user-1", p.UserID)
	assert.Equal(t, "-", p.Username)
	assert.Equal(t, "-", p.Avatar)
	assert.False(t, p.Online)
}
