package domain

import (
	"encoding/json"
	"time"
)

// BroadcastStatus enumerates the lifecycle states of a broadcast.
type BroadcastStatus string

const (
	BroadcastDraft     BroadcastStatus = "draft"
	BroadcastScheduled BroadcastStatus = "scheduled"
	BroadcastSending   BroadcastStatus = "sending"
	BroadcastSent      BroadcastStatus = "sent"
	BroadcastFailed    BroadcastStatus = "failed"
)

// Event enumerates the transitions a broadcast can be driven through.
type Event string

const (
	EventSchedule         Event = "schedule"
	EventCancelSchedule   Event = "cancel_schedule"
	EventSend             Event = "send"
	EventTransportSuccess Event = "transport_success"
	EventTransportFailure Event = "transport_failure"
)

// transitions is the closed transition table. Anything not listed here
// is an invalid transition.
var transitions = map[BroadcastStatus]map[Event]BroadcastStatus{
	BroadcastDraft: {
		EventSchedule: BroadcastScheduled,
		EventSend:     BroadcastSending,
	},
	BroadcastScheduled: {
		EventCancelSchedule: BroadcastDraft,
		EventSend:           BroadcastSending,
	},
	BroadcastFailed: {
		EventSend: BroadcastSending,
	},
	BroadcastSending: {
		EventTransportSuccess: BroadcastSent,
		EventTransportFailure: BroadcastFailed,
	},
}

// NextStatus returns the status reached by applying event to from.
// ok is false when the transition table does not permit the event.
func NextStatus(from BroadcastStatus, event Event) (BroadcastStatus, bool) {
	next, ok := transitions[from][event]
	return next, ok
}

// SendEligibleStatuses are the source states from which a broadcast may
// be claimed for sending. The claim itself must be a single conditional
// update performed by the repository.
func SendEligibleStatuses() []BroadcastStatus {
	return []BroadcastStatus{BroadcastDraft, BroadcastScheduled, BroadcastFailed}
}

// Broadcast represents one email campaign and its lifecycle record.
type Broadcast struct {
	ID      string `json:"id" db:"id"`
	OwnerID string `json:"owner_id" db:"owner_id"`

	Subject string `json:"subject" db:"subject"`
	// Content is the structured rich-text document as stored. It is
	// decoded by the richtext package at render time; the domain layer
	// treats it as opaque JSON.
	Content json.RawMessage `json:"content" db:"content"`
	// ContentHTML caches the rendered output. Nil means not rendered
	// yet (or invalidated by a content update).
	ContentHTML *string `json:"content_html" db:"content_html"`

	// Recipients is the flattened, deduplicated address set resolved at
	// save/schedule/send time. Order carries no meaning.
	Recipients      []string `json:"recipients" db:"recipients"`
	TotalRecipients int      `json:"total_recipients" db:"total_recipients"`

	Status            BroadcastStatus `json:"status" db:"status"`
	ScheduledFor      *time.Time      `json:"scheduled_for" db:"scheduled_for"`
	SentAt            *time.Time      `json:"sent_at" db:"sent_at"`
	ProviderReference string          `json:"provider_reference" db:"provider_reference"`

	// Delivery stats, updated by the provider webhook once sent.
	OpenedCount  int `json:"opened_count" db:"opened_count"`
	ClickedCount int `json:"clicked_count" db:"clicked_count"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the broadcast is in a final state.
func (b *Broadcast) IsTerminal() bool {
	return b.Status == BroadcastSent || b.Status == BroadcastFailed
}

// Editable returns true while content, subject, and recipients may
// still change. Sent broadcasts are immutable apart from stat counters.
func (b *Broadcast) Editable() bool {
	return b.Status == BroadcastDraft || b.Status == BroadcastScheduled || b.Status == BroadcastFailed
}

// Deletable returns true for states in which deletion does not race an
// in-flight delivery executor or a pending schedule.
func (b *Broadcast) Deletable() bool {
	return b.Status == BroadcastDraft || b.Status == BroadcastSent || b.Status == BroadcastFailed
}
