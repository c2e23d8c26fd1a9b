package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/broadcast-engine/internal/domain"
	"github.com/ignite/broadcast-engine/internal/pkg/logger"
	"github.com/ignite/broadcast-engine/internal/recipient"
)

// Sender executes the delivery of one broadcast (claim, render, call
// the transport, finalize). Implemented by the delivery executor.
type Sender interface {
	Execute(ctx context.Context, broadcastID string) error
}

// Service coordinates broadcast lifecycle operations between the
// repository, the recipient resolver, and the delivery executor.
// All public methods are safe for concurrent use if the underlying
// repository is concurrency-safe.
type Service struct {
	repo     Repository
	resolver *recipient.Resolver
	sender   Sender
	log      *logger.Logger
}

// NewService creates a broadcast service.
func NewService(repo Repository, resolver *recipient.Resolver, sender Sender, log *logger.Logger) *Service {
	return &Service{repo: repo, resolver: resolver, sender: sender, log: log.WithComponent("broadcast")}
}

// CreateInput holds the fields for drafting a new broadcast.
type CreateInput struct {
	Subject    string          `json:"subject"`
	Content    json.RawMessage `json:"content"`
	Recipients []string        `json:"recipients"`
	GroupIDs   []string        `json:"group_ids"`
}

// UpdateFields holds the mutable fields for a broadcast update.
// Nil fields are not applied.
type UpdateFields struct {
	Subject    *string          `json:"subject"`
	Content    *json.RawMessage `json:"content"`
	Recipients *[]string        `json:"recipients"`
	GroupIDs   *[]string        `json:"group_ids"`
}

// Get returns a single broadcast after an ownership check.
func (s *Service) Get(ctx context.Context, ident domain.Identity, id string) (*domain.Broadcast, error) {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ident.CanAccess(b.OwnerID) {
		return nil, ErrForbidden
	}
	return b, nil
}

// List returns the caller's broadcasts matching the filter.
func (s *Service) List(ctx context.Context, ident domain.Identity, f ListFilter) ([]domain.Broadcast, int, error) {
	return s.repo.List(ctx, ident.UserID, f)
}

// Create validates and persists a new broadcast in draft status.
// Recipients are resolved at save time; a draft may still be empty.
func (s *Service) Create(ctx context.Context, ident domain.Identity, input CreateInput) (*domain.Broadcast, error) {
	if input.Subject == "" {
		return nil, fmt.Errorf("%w: subject is required", ErrInvalidInput)
	}
	if len(input.Content) == 0 {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidInput)
	}

	recipients, err := s.resolveDraft(ctx, ident.UserID, input.Recipients, input.GroupIDs)
	if err != nil {
		return nil, err
	}

	b := &domain.Broadcast{
		ID:              uuid.New().String(),
		OwnerID:         ident.UserID,
		Subject:         input.Subject,
		Content:         input.Content,
		Recipients:      recipients,
		TotalRecipients: len(recipients),
		Status:          domain.BroadcastDraft,
	}

	id, err := s.repo.Create(ctx, b)
	if err != nil {
		return nil, err
	}
	b.ID = id
	return b, nil
}

// Update modifies an editable broadcast. Sent broadcasts are immutable
// apart from stat counters.
func (s *Service) Update(ctx context.Context, ident domain.Identity, id string, u UpdateFields) (*domain.Broadcast, error) {
	b, err := s.Get(ctx, ident, id)
	if err != nil {
		return nil, err
	}
	if b.Status == domain.BroadcastSent {
		return nil, ErrImmutable
	}
	if !b.Editable() {
		return nil, NewInvalidTransition(b.Status, "update")
	}

	if u.Subject != nil {
		if *u.Subject == "" {
			return nil, fmt.Errorf("%w: subject is required", ErrInvalidInput)
		}
		b.Subject = *u.Subject
	}
	if u.Content != nil {
		b.Content = *u.Content
		// Invalidate the cached render; the executor recomputes it.
		b.ContentHTML = nil
	}
	if u.Recipients != nil || u.GroupIDs != nil {
		var manual, groups []string
		if u.Recipients != nil {
			manual = *u.Recipients
		}
		if u.GroupIDs != nil {
			groups = *u.GroupIDs
		}
		recipients, err := s.resolveDraft(ctx, b.OwnerID, manual, groups)
		if err != nil {
			return nil, err
		}
		b.Recipients = recipients
		b.TotalRecipients = len(recipients)
	}

	if err := s.repo.Update(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Delete removes a broadcast. Deleting while sending would race the
// executor, and deleting while scheduled would orphan the schedule, so
// both are refused.
func (s *Service) Delete(ctx context.Context, ident domain.Identity, id string) error {
	b, err := s.Get(ctx, ident, id)
	if err != nil {
		return err
	}
	if !b.Deletable() {
		return NewInvalidTransition(b.Status, "delete")
	}
	return s.repo.Delete(ctx, id)
}

// Schedule moves a draft to scheduled for a future time. The
// recipients invariant is enforced here: a broadcast cannot leave
// draft with an empty recipient set.
func (s *Service) Schedule(ctx context.Context, ident domain.Identity, id string, at time.Time) (*domain.Broadcast, error) {
	b, err := s.Get(ctx, ident, id)
	if err != nil {
		return nil, err
	}
	if _, ok := domain.NextStatus(b.Status, domain.EventSchedule); !ok {
		return nil, NewInvalidTransition(b.Status, domain.EventSchedule)
	}
	if len(b.Recipients) == 0 {
		return nil, recipient.ErrNoRecipients
	}
	if !at.After(time.Now()) {
		return nil, ErrPastSchedule
	}

	if err := s.repo.SetSchedule(ctx, id, at); err != nil {
		if errors.Is(err, ErrNotClaimed) {
			return nil, NewInvalidTransition(b.Status, domain.EventSchedule)
		}
		return nil, err
	}

	s.log.Info("broadcast scheduled", "broadcast_id", id, "scheduled_for", at.UTC().Format(time.RFC3339))
	return s.repo.Get(ctx, id)
}

// CancelSchedule moves a scheduled broadcast back to draft and clears
// its scheduled time.
func (s *Service) CancelSchedule(ctx context.Context, ident domain.Identity, id string) (*domain.Broadcast, error) {
	b, err := s.Get(ctx, ident, id)
	if err != nil {
		return nil, err
	}
	if _, ok := domain.NextStatus(b.Status, domain.EventCancelSchedule); !ok {
		return nil, NewInvalidTransition(b.Status, domain.EventCancelSchedule)
	}

	if err := s.repo.ClearSchedule(ctx, id); err != nil {
		if errors.Is(err, ErrNotClaimed) {
			return nil, NewInvalidTransition(b.Status, domain.EventCancelSchedule)
		}
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// SendNow dispatches a broadcast immediately. Eligible from draft,
// scheduled, and failed (retry). The executor performs the atomic
// claim, so a poller run racing this call cannot double-send.
func (s *Service) SendNow(ctx context.Context, ident domain.Identity, id string) error {
	b, err := s.Get(ctx, ident, id)
	if err != nil {
		return err
	}
	if _, ok := domain.NextStatus(b.Status, domain.EventSend); !ok {
		return NewInvalidTransition(b.Status, domain.EventSend)
	}
	if len(b.Recipients) == 0 {
		return recipient.ErrNoRecipients
	}
	return s.sender.Execute(ctx, id)
}

// resolveDraft resolves recipients for a draft save. An empty result
// is allowed at this stage; the invariant bites on schedule/send.
func (s *Service) resolveDraft(ctx context.Context, ownerID string, manual, groupIDs []string) ([]string, error) {
	recipients, err := s.resolver.Resolve(ctx, ownerID, manual, groupIDs)
	if errors.Is(err, recipient.ErrNoRecipients) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	return recipients, nil
}
