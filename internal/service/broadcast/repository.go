package broadcast

import (
	"context"
	"time"

	"github.com/ignite/broadcast-engine/internal/domain"
)

// Repository defines the data access contract for broadcasts.
// Implementations must be safe for concurrent use, and ClaimSending
// must be a single atomic conditional update: it is the only thing
// standing between two concurrent senders and a double delivery.
type Repository interface {
	// Get returns a single broadcast. Returns ErrNotFound if it
	// doesn't exist.
	Get(ctx context.Context, id string) (*domain.Broadcast, error)

	// List returns an owner's broadcasts ordered by created_at DESC.
	List(ctx context.Context, ownerID string, f ListFilter) ([]domain.Broadcast, int, error)

	// Create inserts a new broadcast and returns its ID.
	Create(ctx context.Context, b *domain.Broadcast) (string, error)

	// Update persists draft-editable fields (subject, content,
	// content_html, recipients, total_recipients).
	Update(ctx context.Context, b *domain.Broadcast) error

	// Delete removes a broadcast. The service layer enforces which
	// states are deletable.
	Delete(ctx context.Context, id string) error

	// SetSchedule moves a draft to scheduled with the given time.
	// Returns ErrNotClaimed when the broadcast is no longer a draft.
	SetSchedule(ctx context.Context, id string, at time.Time) error

	// ClearSchedule moves a scheduled broadcast back to draft.
	// Returns ErrNotClaimed when the broadcast is not scheduled.
	ClearSchedule(ctx context.Context, id string) error

	// ClaimSending atomically transitions the broadcast to sending if
	// and only if its persisted status is one of from. Returns the
	// claimed record, or ErrNotClaimed when the conditional update
	// matched nothing.
	ClaimSending(ctx context.Context, id string, from []domain.BroadcastStatus) (*domain.Broadcast, error)

	// MarkSent finalizes a sending broadcast as sent.
	MarkSent(ctx context.Context, id, providerRef string, sentAt time.Time) error

	// MarkFailed finalizes a sending broadcast as failed.
	MarkFailed(ctx context.Context, id string) error

	// SaveRenderedHTML caches the rendered output for a broadcast.
	SaveRenderedHTML(ctx context.Context, id, html string) error

	// FindDue returns scheduled broadcasts whose scheduled_for has
	// arrived, oldest first, capped at limit.
	FindDue(ctx context.Context, now time.Time, limit int) ([]domain.Broadcast, error)

	// FailStuckSending fails every broadcast that has sat in sending
	// since before cutoff, returning how many were swept. Used by the
	// reconciler after a crash mid-send.
	FailStuckSending(ctx context.Context, cutoff time.Time) (int, error)
}

// ListFilter controls pagination and filtering for broadcast lists.
type ListFilter struct {
	Status string
	Limit  int
	Offset int
}
