package domain_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sundayhq/boardsync/internal/domain"
)

// ConnState.ValidTransition, full 3x3 state-machine matrix.
func TestConnState_ValidTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from domain.ConnState
		to   domain.ConnState
		want bool
	}{
		// From connected.
		{domain.ConnConnected, domain.ConnDisconnected, true},
		{domain.ConnConnected, domain.ConnExpired, false},
		{domain.ConnConnected, domain.ConnConnected, false},

		// From disconnected: either a reconnect or grace expiry.
		{domain.ConnDisconnected, domain.ConnConnected, true},
		{domain.ConnDisconnected, domain.ConnExpired, true},
		{domain.ConnDisconnected, domain.ConnDisconnected, false},

		// Expired is terminal.
		{domain.ConnExpired, domain.ConnConnected, false},
		{domain.ConnExpired, domain.ConnDisconnected, false},
		{domain.ConnExpired, domain.ConnExpired, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, tt.from.ValidTransition(tt.to))
		})
	}
}

func TestPresenceState_Valid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state domain.PresenceState
		want  bool
	}{
		{domain.PresenceViewing, true},
		{domain.PresenceEditing, true},
		{domain.PresenceIdle, true},
		{domain.PresenceState("away"), false},
		{domain.PresenceState(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, tt.state.Valid())
		})
	}
}
