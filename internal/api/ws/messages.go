package ws

import (
	"github.com/google/uuid"

	"github.com/sundayhq/boardsync/internal/domain"
)

// clientFrame is one message from a client. Type selects which of the other
// fields are meaningful.
type clientFrame struct {
	Type string `json:"type"` // "mutate", "cancel", "ack", "heartbeat", "presence", "resync", "unsubscribe"

	// mutate / cancel
	MutationID  string          `json:"mutation_id,omitempty"`
	ItemID      uuid.UUID       `json:"item_id,omitempty"`
	Field       domain.Field    `json:"field,omitempty"`
	Value       string          `json:"value,omitempty"`
	TextOps     []domain.TextOp `json:"text_ops,omitempty"`
	ClientClock uint64          `json:"client_clock,omitempty"`
	BaseSeq     uint64          `json:"base_seq,omitempty"`

	// ack / resync
	Seq uint64 `json:"seq,omitempty"`

	// presence
	Presence domain.PresenceState `json:"presence,omitempty"`
}

// serverFrame is one message to a client.
type serverFrame struct {
	Type string `json:"type"` // "subscribed", "update", "presence", "notice", "applied", "rejected", "replay", "resync_required"

	SessionID uuid.UUID `json:"session_id,omitempty"`
	Seq       uint64    `json:"seq,omitempty"`

	Update   *domain.ResolvedUpdate `json:"update,omitempty"`
	Presence *domain.PresenceEvent  `json:"presence,omitempty"`
	Notice   *domain.Notice         `json:"notice,omitempty"`

	// applied / rejected
	MutationID string `json:"mutation_id,omitempty"`
	Error      string `json:"error,omitempty"`

	// replay
	Updates []*domain.ResolvedUpdate `json:"updates,omitempty"`
}

const (
	frameMutate      = "mutate"
	frameCancel      = "cancel"
	frameAck         = "ack"
	frameHeartbeat   = "heartbeat"
	framePresence    = "presence"
	frameResync      = "resync"
	frameUnsubscribe = "unsubscribe"

	frameSubscribed     = "subscribed"
	frameUpdate         = "update"
	frameNotice         = "notice"
	frameApplied        = "applied"
	frameRejected       = "rejected"
	frameReplay         = "replay"
	frameResyncRequired = "resync_required"
)
