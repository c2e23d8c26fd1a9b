// Package audience manages subscribers and broadcast groups: the
// sources the recipient resolver draws from. CRUD here is thin; the
// one real invariant is the default group (at most one per owner,
// never deletable).
package audience

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/broadcast-engine/internal/domain"
)

// Sentinel errors for the audience service layer.
var (
	ErrSubscriberNotFound = errors.New("subscriber not found")
	ErrGroupNotFound      = errors.New("group not found")
	// ErrDefaultGroup is returned when deleting the default group.
	ErrDefaultGroup = errors.New("the default group cannot be deleted")
	// ErrInvalidInput wraps request validation failures.
	ErrInvalidInput = errors.New("invalid input")
)

// SubscriberRepository is the data access contract for subscribers.
type SubscriberRepository interface {
	Get(ctx context.Context, id string) (*domain.Subscriber, error)
	List(ctx context.Context, ownerID string, limit, offset int) ([]domain.Subscriber, int, error)
	Create(ctx context.Context, s *domain.Subscriber) (string, error)
	Update(ctx context.Context, s *domain.Subscriber) error
	Delete(ctx context.Context, id string) error
}

// GroupRepository is the data access contract for broadcast groups.
type GroupRepository interface {
	Get(ctx context.Context, id string) (*domain.BroadcastGroup, error)
	List(ctx context.Context, ownerID string) ([]domain.BroadcastGroup, error)
	Create(ctx context.Context, g *domain.BroadcastGroup) (string, error)
	Update(ctx context.Context, g *domain.BroadcastGroup) error
	Delete(ctx context.Context, id string) error
	// ClearDefault unsets is_default on every group of the owner.
	ClearDefault(ctx context.Context, ownerID string) error
	// MemberEmails returns the addresses of the group's active
	// subscribers.
	MemberEmails(ctx context.Context, groupID string) ([]string, error)
	AddMember(ctx context.Context, groupID, subscriberID string) error
	RemoveMember(ctx context.Context, groupID, subscriberID string) error
}

// Service implements subscriber and group management.
type Service struct {
	subs   SubscriberRepository
	groups GroupRepository
}

// NewService creates an audience service.
func NewService(subs SubscriberRepository, groups GroupRepository) *Service {
	return &Service{subs: subs, groups: groups}
}

// Members implements recipient.GroupLookup. Groups belonging to a
// different owner resolve as not found rather than leaking addresses.
func (s *Service) Members(ctx context.Context, ownerID, groupID string) ([]string, error) {
	g, err := s.groups.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g.OwnerID != ownerID {
		return nil, ErrGroupNotFound
	}
	return s.groups.MemberEmails(ctx, groupID)
}

// CreateSubscriber validates and persists a new subscriber.
func (s *Service) CreateSubscriber(ctx context.Context, ident domain.Identity, email, name string) (*domain.Subscriber, error) {
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	sub := &domain.Subscriber{
		ID:      uuid.New().String(),
		OwnerID: ident.UserID,
		Email:   email,
		Name:    name,
		Active:  true,
	}
	id, err := s.subs.Create(ctx, sub)
	if err != nil {
		return nil, err
	}
	sub.ID = id
	return sub, nil
}

// ListSubscribers returns the caller's subscribers.
func (s *Service) ListSubscribers(ctx context.Context, ident domain.Identity, limit, offset int) ([]domain.Subscriber, int, error) {
	return s.subs.List(ctx, ident.UserID, limit, offset)
}

// UpdateSubscriber updates name/active on an owned subscriber.
func (s *Service) UpdateSubscriber(ctx context.Context, ident domain.Identity, id string, name *string, active *bool) (*domain.Subscriber, error) {
	sub, err := s.subs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ident.CanAccess(sub.OwnerID) {
		return nil, ErrSubscriberNotFound
	}
	if name != nil {
		sub.Name = *name
	}
	if active != nil {
		sub.Active = *active
	}
	if err := s.subs.Update(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// DeleteSubscriber removes an owned subscriber.
func (s *Service) DeleteSubscriber(ctx context.Context, ident domain.Identity, id string) error {
	sub, err := s.subs.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ident.CanAccess(sub.OwnerID) {
		return ErrSubscriberNotFound
	}
	return s.subs.Delete(ctx, id)
}

// CreateGroup validates and persists a new group. Marking it default
// clears the flag from any previous default first, keeping at most one
// default per owner.
func (s *Service) CreateGroup(ctx context.Context, ident domain.Identity, name, description string, isDefault bool) (*domain.BroadcastGroup, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if isDefault {
		if err := s.groups.ClearDefault(ctx, ident.UserID); err != nil {
			return nil, err
		}
	}
	g := &domain.BroadcastGroup{
		ID:          uuid.New().String(),
		OwnerID:     ident.UserID,
		Name:        name,
		Description: description,
		IsDefault:   isDefault,
	}
	id, err := s.groups.Create(ctx, g)
	if err != nil {
		return nil, err
	}
	g.ID = id
	return g, nil
}

// ListGroups returns the caller's groups.
func (s *Service) ListGroups(ctx context.Context, ident domain.Identity) ([]domain.BroadcastGroup, error) {
	return s.groups.List(ctx, ident.UserID)
}

// UpdateGroup updates an owned group, preserving the single-default
// invariant.
func (s *Service) UpdateGroup(ctx context.Context, ident domain.Identity, id string, name, description *string, isDefault *bool) (*domain.BroadcastGroup, error) {
	g, err := s.groups.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ident.CanAccess(g.OwnerID) {
		return nil, ErrGroupNotFound
	}
	if name != nil {
		g.Name = *name
	}
	if description != nil {
		g.Description = *description
	}
	if isDefault != nil && *isDefault && !g.IsDefault {
		if err := s.groups.ClearDefault(ctx, g.OwnerID); err != nil {
			return nil, err
		}
		g.IsDefault = true
	}
	if err := s.groups.Update(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// DeleteGroup removes an owned group. The default group is refused.
func (s *Service) DeleteGroup(ctx context.Context, ident domain.Identity, id string) error {
	g, err := s.groups.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ident.CanAccess(g.OwnerID) {
		return ErrGroupNotFound
	}
	if g.IsDefault {
		return ErrDefaultGroup
	}
	return s.groups.Delete(ctx, id)
}

// AddMember adds a subscriber to an owned group.
func (s *Service) AddMember(ctx context.Context, ident domain.Identity, groupID, subscriberID string) error {
	g, err := s.groups.Get(ctx, groupID)
	if err != nil {
		return err
	}
	if !ident.CanAccess(g.OwnerID) {
		return ErrGroupNotFound
	}
	return s.groups.AddMember(ctx, groupID, subscriberID)
}

// RemoveMember removes a subscriber from an owned group.
func (s *Service) RemoveMember(ctx context.Context, ident domain.Identity, groupID, subscriberID string) error {
	g, err := s.groups.Get(ctx, groupID)
	if err != nil {
		return err
	}
	if !ident.CanAccess(g.OwnerID) {
		return ErrGroupNotFound
	}
	return s.groups.RemoveMember(ctx, groupID, subscriberID)
}
