package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/broadcast-engine/internal/domain"
	"github.com/ignite/broadcast-engine/internal/images"
	"github.com/ignite/broadcast-engine/internal/pkg/logger"
	"github.com/ignite/broadcast-engine/internal/repository/memory"
	"github.com/ignite/broadcast-engine/internal/service/broadcast"
	"github.com/ignite/broadcast-engine/internal/transport"
)

var testDoc = json.RawMessage(`{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"Hello"}]}]}`)

type fakeTransport struct {
	mu    sync.Mutex
	calls []transport.Message
	err   error
}

func (f *fakeTransport) Send(_ context.Context, msg transport.Message) (*transport.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, msg)
	if f.err != nil {
		return nil, f.err
	}
	return &transport.Result{ProviderID: "prov-123"}, nil
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type passthroughExternalizer struct {
	mu    sync.Mutex
	calls int
}

func (p *passthroughExternalizer) Externalize(_ context.Context, _, html string) images.Result {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return images.Result{HTML: html}
}

func testLogger() *logger.Logger {
	return logger.New(io.Discard, logger.ERROR)
}

func seedBroadcast(t *testing.T, repo *memory.BroadcastRepo, status domain.BroadcastStatus, recipients []string) *domain.Broadcast {
	t.Helper()
	b := &domain.Broadcast{
		ID:              "b-" + string(status),
		OwnerID:         "owner-1",
		Subject:         "Weekly update",
		Content:         testDoc,
		Recipients:      recipients,
		TotalRecipients: len(recipients),
		Status:          status,
	}
	if status == domain.BroadcastScheduled {
		at := time.Now().Add(-time.Minute)
		b.ScheduledFor = &at
	}
	_, err := repo.Create(context.Background(), b)
	require.NoError(t, err)
	return b
}

func TestExecutorSendsScheduledBroadcast(t *testing.T) {
	repo := memory.NewBroadcastRepo()
	tr := &fakeTransport{}
	ext := &passthroughExternalizer{}
	exec := NewExecutor(repo, tr, ext, "news@example.com", "Example News", time.Second, testLogger())

	b := seedBroadcast(t, repo, domain.BroadcastScheduled, []string{"a@example.com", "b@example.com"})

	err := exec.Execute(context.Background(), b.ID)
	require.NoError(t, err)

	require.Equal(t, 1, tr.callCount())
	msg := tr.calls[0]
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, msg.To)
	assert.Equal(t, "news@example.com", msg.From)
	assert.Contains(t, msg.HTML, "Hello")

	// Close waits for the background cache write.
	exec.Close()

	got, err := repo.Get(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BroadcastSent, got.Status)
	assert.Equal(t, "prov-123", got.ProviderReference)
	require.NotNil(t, got.SentAt)
	require.NotNil(t, got.ContentHTML)
	assert.Contains(t, *got.ContentHTML, "Hello")
}

func TestExecutorTransportFailureThenRetry(t *testing.T) {
	repo := memory.NewBroadcastRepo()
	tr := &fakeTransport{err: errors.New("connection reset")}
	exec := NewExecutor(repo, tr, &passthroughExternalizer{}, "news@example.com", "", time.Second, testLogger())

	b := seedBroadcast(t, repo, domain.BroadcastDraft, []string{"a@example.com"})

	err := exec.Execute(context.Background(), b.ID)
	require.Error(t, err)

	got, err := repo.Get(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BroadcastFailed, got.Status)
	assert.Nil(t, got.SentAt)

	// Failed broadcasts are send-eligible again.
	tr.err = nil
	require.NoError(t, exec.Execute(context.Background(), b.ID))

	got, err = repo.Get(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BroadcastSent, got.Status)
	assert.Equal(t, 2, tr.callCount())
}

func TestExecutorNotClaimedWhileSending(t *testing.T) {
	repo := memory.NewBroadcastRepo()
	tr := &fakeTransport{}
	exec := NewExecutor(repo, tr, &passthroughExternalizer{}, "news@example.com", "", time.Second, testLogger())

	b := seedBroadcast(t, repo, domain.BroadcastDraft, []string{"a@example.com"})
	_, err := repo.ClaimSending(context.Background(), b.ID, domain.SendEligibleStatuses())
	require.NoError(t, err)

	err = exec.Execute(context.Background(), b.ID)
	require.ErrorIs(t, err, broadcast.ErrNotClaimed)
	assert.Equal(t, 0, tr.callCount())
}

func TestExecutorConcurrentClaimSendsOnce(t *testing.T) {
	repo := memory.NewBroadcastRepo()
	tr := &fakeTransport{}
	exec := NewExecutor(repo, tr, &passthroughExternalizer{}, "news@example.com", "", time.Second, testLogger())

	b := seedBroadcast(t, repo, domain.BroadcastScheduled, []string{"a@example.com"})

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = exec.Execute(context.Background(), b.ID)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, tr.callCount())
	won := 0
	for _, err := range errs {
		if err == nil {
			won++
		} else {
			assert.ErrorIs(t, err, broadcast.ErrNotClaimed)
		}
	}
	assert.Equal(t, 1, won)
}

func TestExecutorReusesCachedHTML(t *testing.T) {
	repo := memory.NewBroadcastRepo()
	tr := &fakeTransport{}
	ext := &passthroughExternalizer{}
	exec := NewExecutor(repo, tr, ext, "news@example.com", "", time.Second, testLogger())

	b := seedBroadcast(t, repo, domain.BroadcastDraft, []string{"a@example.com"})
	cached := "<p>cached render</p>"
	require.NoError(t, repo.SaveRenderedHTML(context.Background(), b.ID, cached))

	require.NoError(t, exec.Execute(context.Background(), b.ID))

	require.Equal(t, 1, tr.callCount())
	assert.Equal(t, cached, tr.calls[0].HTML)
	assert.Equal(t, 0, ext.calls)
}

func TestExecutorEmptyRecipientsFails(t *testing.T) {
	repo := memory.NewBroadcastRepo()
	tr := &fakeTransport{}
	exec := NewExecutor(repo, tr, &passthroughExternalizer{}, "news@example.com", "", time.Second, testLogger())

	b := seedBroadcast(t, repo, domain.BroadcastDraft, nil)

	err := exec.Execute(context.Background(), b.ID)
	require.Error(t, err)
	assert.Equal(t, 0, tr.callCount())

	got, err := repo.Get(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BroadcastFailed, got.Status)
}
