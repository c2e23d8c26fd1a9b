package recipient

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/broadcast-engine/internal/pkg/logger"
)

type fakeGroups struct {
	members map[string][]string
	failing map[string]bool
	calls   int
}

func (f *fakeGroups) Members(_ context.Context, _, groupID string) ([]string, error) {
	f.calls++
	if f.failing[groupID] {
		return nil, errors.New("group backend unavailable")
	}
	return f.members[groupID], nil
}

func testResolver(groups *fakeGroups) *Resolver {
	return NewResolver(groups, logger.New(io.Discard, logger.ERROR))
}

func TestResolveManualOnly(t *testing.T) {
	r := testResolver(&fakeGroups{})
	got, err := r.Resolve(context.Background(), "u1", []string{"a@x.com", "b@x.com"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, got)
}

func TestResolveDeduplicates(t *testing.T) {
	groups := &fakeGroups{members: map[string][]string{
		"g1": {"b@x.com", "c@x.com"},
		"g2": {"c@x.com", "a@x.com"},
	}}
	r := testResolver(groups)

	got, err := r.Resolve(context.Background(), "u1",
		[]string{"a@x.com", "b@x.com", "a@x.com"}, []string{"g1", "g2"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a@x.com", "b@x.com", "c@x.com"}, got)
}

func TestResolveCaseSensitive(t *testing.T) {
	r := testResolver(&fakeGroups{})
	got, err := r.Resolve(context.Background(), "u1",
		[]string{"A@x.com", "a@x.com"}, nil)
	require.NoError(t, err)
	assert.Len(t, got, 2, "addresses are compared verbatim")
}

func TestResolveBadGroupIsNonFatal(t *testing.T) {
	groups := &fakeGroups{
		members: map[string][]string{"good": {"ok@x.com"}},
		failing: map[string]bool{"bad": true},
	}
	r := testResolver(groups)

	got, err := r.Resolve(context.Background(), "u1", nil, []string{"bad", "good"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ok@x.com"}, got)
	assert.Equal(t, 2, groups.calls, "remaining groups must still be resolved")
}

func TestResolveEmptyInputs(t *testing.T) {
	r := testResolver(&fakeGroups{})
	_, err := r.Resolve(context.Background(), "u1", nil, nil)
	assert.ErrorIs(t, err, ErrNoRecipients)
}

func TestResolveAllGroupsFailing(t *testing.T) {
	groups := &fakeGroups{failing: map[string]bool{"g1": true, "g2": true}}
	r := testResolver(groups)
	_, err := r.Resolve(context.Background(), "u1", nil, []string{"g1", "g2"})
	assert.ErrorIs(t, err, ErrNoRecipients)
}

func TestResolveSkipsEmptyAddresses(t *testing.T) {
	r := testResolver(&fakeGroups{})
	got, err := r.Resolve(context.Background(), "u1", []string{"", "a@x.com", ""}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x.com"}, got)
}
