package delivery

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/broadcast-engine/internal/domain"
	"github.com/ignite/broadcast-engine/internal/repository/memory"
	"github.com/ignite/broadcast-engine/internal/service/broadcast"
)

// scriptedSender fails specific broadcast ids and records every call.
type scriptedSender struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (s *scriptedSender) Execute(_ context.Context, broadcastID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, broadcastID)
	if err, ok := s.fail[broadcastID]; ok {
		return err
	}
	return nil
}

func seedScheduled(t *testing.T, repo *memory.BroadcastRepo, id string, at time.Time) {
	t.Helper()
	b := &domain.Broadcast{
		ID:         id,
		OwnerID:    "owner-1",
		Subject:    "s",
		Content:    testDoc,
		Recipients: []string{"a@example.com"},
		Status:     domain.BroadcastScheduled,
	}
	b.ScheduledFor = &at
	_, err := repo.Create(context.Background(), b)
	require.NoError(t, err)
}

func TestPollerDispatchesAllDue(t *testing.T) {
	repo := memory.NewBroadcastRepo()
	sender := &scriptedSender{}
	p := NewPoller(repo, sender, nil, nil, 50, testLogger())

	past := time.Now().Add(-time.Minute)
	for i := 0; i < 3; i++ {
		seedScheduled(t, repo, "due-"+strconv.Itoa(i), past)
	}
	seedScheduled(t, repo, "future", time.Now().Add(time.Hour))

	sum, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Attempted)
	assert.Equal(t, 3, sum.Sent)
	assert.Equal(t, 0, sum.Failed)
	assert.Len(t, sender.calls, 3)
	assert.NotContains(t, sender.calls, "future")
}

func TestPollerFailureIsolation(t *testing.T) {
	repo := memory.NewBroadcastRepo()
	sender := &scriptedSender{fail: map[string]error{
		"due-1": errors.New("transport: connection reset"),
	}}
	p := NewPoller(repo, sender, nil, nil, 50, testLogger())

	past := time.Now().Add(-time.Minute)
	for i := 0; i < 3; i++ {
		seedScheduled(t, repo, "due-"+strconv.Itoa(i), past)
	}

	sum, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Attempted)
	assert.Equal(t, 2, sum.Sent)
	assert.Equal(t, 1, sum.Failed)

	var failed *Outcome
	for i := range sum.Outcomes {
		if sum.Outcomes[i].Status == "failed" {
			failed = &sum.Outcomes[i]
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, "due-1", failed.BroadcastID)
	assert.Contains(t, failed.Error, "connection reset")
}

func TestPollerSkipsAlreadyClaimed(t *testing.T) {
	repo := memory.NewBroadcastRepo()
	sender := &scriptedSender{fail: map[string]error{
		"due-0": broadcast.ErrNotClaimed,
	}}
	p := NewPoller(repo, sender, nil, nil, 50, testLogger())

	past := time.Now().Add(-time.Minute)
	seedScheduled(t, repo, "due-0", past)
	seedScheduled(t, repo, "due-1", past)

	sum, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Sent)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 0, sum.Failed)
}

func TestPollerEmptyRun(t *testing.T) {
	repo := memory.NewBroadcastRepo()
	sender := &scriptedSender{}
	p := NewPoller(repo, sender, nil, nil, 50, testLogger())

	sum, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Attempted)
	assert.Empty(t, sender.calls)
}

func TestPollerHonorsBatchLimit(t *testing.T) {
	repo := memory.NewBroadcastRepo()
	sender := &scriptedSender{}
	p := NewPoller(repo, sender, nil, nil, 2, testLogger())

	past := time.Now().Add(-time.Minute)
	for i := 0; i < 5; i++ {
		seedScheduled(t, repo, "due-"+strconv.Itoa(i), past)
	}

	sum, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Attempted)
	assert.Len(t, sender.calls, 2)
}

func TestPollerWithRedisLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	repo := memory.NewBroadcastRepo()
	sender := &scriptedSender{}
	p := NewPoller(repo, sender, client, nil, 50, testLogger())

	past := time.Now().Add(-time.Minute)
	seedScheduled(t, repo, "due-0", past)

	sum, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Sent)

	// The per-broadcast lock is released after the dispatch.
	assert.False(t, mr.Exists("lock:broadcast:send:due-0"))
}

func TestPollerSkipsWhenLockHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	repo := memory.NewBroadcastRepo()
	sender := &scriptedSender{}
	p := NewPoller(repo, sender, client, nil, 50, testLogger())

	past := time.Now().Add(-time.Minute)
	seedScheduled(t, repo, "due-0", past)
	require.NoError(t, mr.Set("lock:broadcast:send:due-0", "other-instance"))

	sum, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Skipped)
	assert.Empty(t, sender.calls)
}

func TestReconcilerSweepsStuckSending(t *testing.T) {
	repo := memory.NewBroadcastRepo()

	b := &domain.Broadcast{
		ID:         "stuck",
		OwnerID:    "owner-1",
		Subject:    "s",
		Content:    testDoc,
		Recipients: []string{"a@example.com"},
		Status:     domain.BroadcastDraft,
	}
	_, err := repo.Create(context.Background(), b)
	require.NoError(t, err)
	_, err = repo.ClaimSending(context.Background(), "stuck", domain.SendEligibleStatuses())
	require.NoError(t, err)

	r := NewReconciler(repo, time.Millisecond, testLogger())
	time.Sleep(5 * time.Millisecond)

	swept, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	got, err := repo.Get(context.Background(), "stuck")
	require.NoError(t, err)
	assert.Equal(t, domain.BroadcastFailed, got.Status)
}

func TestReconcilerLeavesFreshSendingAlone(t *testing.T) {
	repo := memory.NewBroadcastRepo()

	b := &domain.Broadcast{
		ID:         "fresh",
		OwnerID:    "owner-1",
		Subject:    "s",
		Content:    testDoc,
		Recipients: []string{"a@example.com"},
		Status:     domain.BroadcastDraft,
	}
	_, err := repo.Create(context.Background(), b)
	require.NoError(t, err)
	_, err = repo.ClaimSending(context.Background(), "fresh", domain.SendEligibleStatuses())
	require.NoError(t, err)

	r := NewReconciler(repo, time.Hour, testLogger())
	swept, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, swept)

	got, err := repo.Get(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Equal(t, domain.BroadcastSending, got.Status)
}
