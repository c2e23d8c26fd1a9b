package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ignite/broadcast-engine/internal/domain"
	"github.com/ignite/broadcast-engine/internal/service/audience"
)

// SubscriberRepo implements audience.SubscriberRepository in memory.
type SubscriberRepo struct {
	mu   sync.Mutex
	subs map[string]*domain.Subscriber
}

// NewSubscriberRepo creates an empty in-memory subscriber repository.
func NewSubscriberRepo() *SubscriberRepo {
	return &SubscriberRepo{subs: make(map[string]*domain.Subscriber)}
}

func (r *SubscriberRepo) Get(_ context.Context, id string) (*domain.Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok {
		return nil, audience.ErrSubscriberNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *SubscriberRepo) List(_ context.Context, ownerID string, limit, offset int) ([]domain.Subscriber, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Subscriber
	for _, s := range r.subs {
		if s.OwnerID == ownerID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })

	total := len(out)
	if offset >= len(out) {
		return nil, total, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func (r *SubscriberRepo) Create(_ context.Context, s *domain.Subscriber) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	now := time.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	r.subs[cp.ID] = &cp
	return cp.ID, nil
}

func (r *SubscriberRepo) Update(_ context.Context, s *domain.Subscriber) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.subs[s.ID]
	if !ok {
		return audience.ErrSubscriberNotFound
	}
	cp := *s
	cp.CreatedAt = cur.CreatedAt
	cp.UpdatedAt = time.Now()
	r.subs[s.ID] = &cp
	return nil
}

func (r *SubscriberRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[id]; !ok {
		return audience.ErrSubscriberNotFound
	}
	delete(r.subs, id)
	return nil
}

// GroupRepo implements audience.GroupRepository in memory. Membership
// links subscribers by id; MemberEmails resolves through the
// subscriber repo so the active flag is honored.
type GroupRepo struct {
	mu      sync.Mutex
	groups  map[string]*domain.BroadcastGroup
	members map[string]map[string]bool // groupID -> subscriberID set
	subs    *SubscriberRepo
}

// NewGroupRepo creates an empty in-memory group repository resolving
// members against subs.
func NewGroupRepo(subs *SubscriberRepo) *GroupRepo {
	return &GroupRepo{
		groups:  make(map[string]*domain.BroadcastGroup),
		members: make(map[string]map[string]bool),
		subs:    subs,
	}
}

func (r *GroupRepo) Get(_ context.Context, id string) (*domain.BroadcastGroup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[id]
	if !ok {
		return nil, audience.ErrGroupNotFound
	}
	cp := *g
	return &cp, nil
}

func (r *GroupRepo) List(_ context.Context, ownerID string) ([]domain.BroadcastGroup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.BroadcastGroup
	for _, g := range r.groups {
		if g.OwnerID == ownerID {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *GroupRepo) Create(_ context.Context, g *domain.BroadcastGroup) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *g
	now := time.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	r.groups[cp.ID] = &cp
	r.members[cp.ID] = make(map[string]bool)
	return cp.ID, nil
}

func (r *GroupRepo) Update(_ context.Context, g *domain.BroadcastGroup) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.groups[g.ID]
	if !ok {
		return audience.ErrGroupNotFound
	}
	cp := *g
	cp.CreatedAt = cur.CreatedAt
	cp.UpdatedAt = time.Now()
	r.groups[g.ID] = &cp
	return nil
}

func (r *GroupRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.groups[id]; !ok {
		return audience.ErrGroupNotFound
	}
	delete(r.groups, id)
	delete(r.members, id)
	return nil
}

func (r *GroupRepo) ClearDefault(_ context.Context, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.groups {
		if g.OwnerID == ownerID && g.IsDefault {
			g.IsDefault = false
			g.UpdatedAt = time.Now()
		}
	}
	return nil
}

func (r *GroupRepo) MemberEmails(ctx context.Context, groupID string) ([]string, error) {
	r.mu.Lock()
	ids, ok := r.members[groupID]
	if !ok {
		r.mu.Unlock()
		return nil, audience.ErrGroupNotFound
	}
	memberIDs := make([]string, 0, len(ids))
	for id := range ids {
		memberIDs = append(memberIDs, id)
	}
	r.mu.Unlock()

	var emails []string
	for _, id := range memberIDs {
		s, err := r.subs.Get(ctx, id)
		if err != nil {
			continue
		}
		if s.Active {
			emails = append(emails, s.Email)
		}
	}
	sort.Strings(emails)
	return emails, nil
}

func (r *GroupRepo) AddMember(_ context.Context, groupID, subscriberID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.members[groupID]
	if !ok {
		return audience.ErrGroupNotFound
	}
	set[subscriberID] = true
	return nil
}

func (r *GroupRepo) RemoveMember(_ context.Context, groupID, subscriberID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.members[groupID]
	if !ok {
		return audience.ErrGroupNotFound
	}
	delete(set, subscriberID)
	return nil
}
