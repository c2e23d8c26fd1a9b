// Package memory provides in-memory repository implementations for
// tests and local development. All operations are guarded by a single
// mutex, which makes the claim a genuine compare-and-swap.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ignite/broadcast-engine/internal/domain"
	"github.com/ignite/broadcast-engine/internal/service/broadcast"
)

// BroadcastRepo implements broadcast.Repository in memory.
type BroadcastRepo struct {
	mu         sync.Mutex
	broadcasts map[string]*domain.Broadcast
}

// NewBroadcastRepo creates an empty in-memory broadcast repository.
func NewBroadcastRepo() *BroadcastRepo {
	return &BroadcastRepo{broadcasts: make(map[string]*domain.Broadcast)}
}

func copyBroadcast(b *domain.Broadcast) *domain.Broadcast {
	cp := *b
	cp.Recipients = append([]string(nil), b.Recipients...)
	if b.ContentHTML != nil {
		html := *b.ContentHTML
		cp.ContentHTML = &html
	}
	if b.ScheduledFor != nil {
		at := *b.ScheduledFor
		cp.ScheduledFor = &at
	}
	if b.SentAt != nil {
		at := *b.SentAt
		cp.SentAt = &at
	}
	return &cp
}

func (r *BroadcastRepo) Get(_ context.Context, id string) (*domain.Broadcast, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.broadcasts[id]
	if !ok {
		return nil, broadcast.ErrNotFound
	}
	return copyBroadcast(b), nil
}

func (r *BroadcastRepo) List(_ context.Context, ownerID string, f broadcast.ListFilter) ([]domain.Broadcast, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Broadcast
	for _, b := range r.broadcasts {
		if b.OwnerID != ownerID {
			continue
		}
		if f.Status != "" && string(b.Status) != f.Status {
			continue
		}
		out = append(out, *copyBroadcast(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	total := len(out)
	if f.Offset >= len(out) {
		return nil, total, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (r *BroadcastRepo) Create(_ context.Context, b *domain.Broadcast) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := copyBroadcast(b)
	now := time.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	r.broadcasts[cp.ID] = cp
	return cp.ID, nil
}

func (r *BroadcastRepo) Update(_ context.Context, b *domain.Broadcast) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.broadcasts[b.ID]
	if !ok {
		return broadcast.ErrNotFound
	}
	cp := copyBroadcast(b)
	cp.CreatedAt = cur.CreatedAt
	cp.UpdatedAt = time.Now()
	r.broadcasts[b.ID] = cp
	return nil
}

func (r *BroadcastRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.broadcasts[id]; !ok {
		return broadcast.ErrNotFound
	}
	delete(r.broadcasts, id)
	return nil
}

func (r *BroadcastRepo) SetSchedule(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.broadcasts[id]
	if !ok {
		return broadcast.ErrNotFound
	}
	if b.Status != domain.BroadcastDraft {
		return broadcast.ErrNotClaimed
	}
	b.Status = domain.BroadcastScheduled
	b.ScheduledFor = &at
	b.UpdatedAt = time.Now()
	return nil
}

func (r *BroadcastRepo) ClearSchedule(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.broadcasts[id]
	if !ok {
		return broadcast.ErrNotFound
	}
	if b.Status != domain.BroadcastScheduled {
		return broadcast.ErrNotClaimed
	}
	b.Status = domain.BroadcastDraft
	b.ScheduledFor = nil
	b.UpdatedAt = time.Now()
	return nil
}

func (r *BroadcastRepo) ClaimSending(_ context.Context, id string, from []domain.BroadcastStatus) (*domain.Broadcast, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.broadcasts[id]
	if !ok {
		return nil, broadcast.ErrNotFound
	}
	eligible := false
	for _, st := range from {
		if b.Status == st {
			eligible = true
			break
		}
	}
	if !eligible {
		return nil, broadcast.ErrNotClaimed
	}
	b.Status = domain.BroadcastSending
	b.UpdatedAt = time.Now()
	return copyBroadcast(b), nil
}

func (r *BroadcastRepo) MarkSent(_ context.Context, id, providerRef string, sentAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.broadcasts[id]
	if !ok {
		return broadcast.ErrNotFound
	}
	if b.Status != domain.BroadcastSending {
		return broadcast.ErrNotClaimed
	}
	b.Status = domain.BroadcastSent
	b.SentAt = &sentAt
	b.ProviderReference = providerRef
	b.UpdatedAt = time.Now()
	return nil
}

func (r *BroadcastRepo) MarkFailed(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.broadcasts[id]
	if !ok {
		return broadcast.ErrNotFound
	}
	if b.Status != domain.BroadcastSending {
		return broadcast.ErrNotClaimed
	}
	b.Status = domain.BroadcastFailed
	b.UpdatedAt = time.Now()
	return nil
}

func (r *BroadcastRepo) SaveRenderedHTML(_ context.Context, id, html string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.broadcasts[id]
	if !ok {
		return broadcast.ErrNotFound
	}
	b.ContentHTML = &html
	b.UpdatedAt = time.Now()
	return nil
}

func (r *BroadcastRepo) FindDue(_ context.Context, now time.Time, limit int) ([]domain.Broadcast, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []domain.Broadcast
	for _, b := range r.broadcasts {
		if b.Status == domain.BroadcastScheduled && b.ScheduledFor != nil && !b.ScheduledFor.After(now) {
			due = append(due, *copyBroadcast(b))
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledFor.Before(*due[j].ScheduledFor) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *BroadcastRepo) FailStuckSending(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	swept := 0
	for _, b := range r.broadcasts {
		if b.Status == domain.BroadcastSending && b.UpdatedAt.Before(cutoff) {
			b.Status = domain.BroadcastFailed
			b.UpdatedAt = time.Now()
			swept++
		}
	}
	return swept, nil
}
