package domain

import (
	"time"

	"github.com/google/uuid"
)

// PresenceState is what a session is currently doing on its board.
type PresenceState string

const (
	PresenceViewing PresenceState = "viewing"
	PresenceEditing PresenceState = "editing"
	PresenceIdle    PresenceState = "idle"
)

// Valid reports whether s is a recognised presence state.
func (s PresenceState) Valid() bool {
	switch s {
	case PresenceViewing, PresenceEditing, PresenceIdle:
		return true
	default:
		return false
	}
}

// ConnState is the reconnection lifecycle of a session.
// Connected -> Disconnected (grace period) -> Expired.
type ConnState string

const (
	ConnConnected    ConnState = "connected"
	ConnDisconnected ConnState = "disconnected"
	ConnExpired      ConnState = "expired"
)

// ValidTransition checks if a connection state transition is allowed.
// Allowed: connected->disconnected, disconnected->connected (reconnect),
// disconnected->expired.
func (s ConnState) ValidTransition(to ConnState) bool {
	switch s {
	case ConnConnected:
		return to == ConnDisconnected
	case ConnDisconnected:
		return to == ConnConnected || to == ConnExpired
	default:
		return false
	}
}

// Session is one connected client's live participation in a board. It holds
// only a weak reference (the UUID) to the user, which is owned by the external
// auth service.
type Session struct {
	ID            uuid.UUID     `json:"id"`
	UserID        uuid.UUID     `json:"user_id"`
	BoardID       uuid.UUID     `json:"board_id"`
	Presence      PresenceState `json:"presence"`
	LastAckedSeq  uint64        `json:"last_acked_seq"`
	LastHeartbeat time.Time     `json:"-"`
}

// PresenceEvent is broadcast to other sessions when a user's presence changes.
type PresenceEvent struct {
	BoardID   uuid.UUID     `json:"board_id"`
	SessionID uuid.UUID     `json:"session_id"`
	UserID    uuid.UUID     `json:"user_id"`
	State     PresenceState `json:"state"`
}
