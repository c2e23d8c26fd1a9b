package audience_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/broadcast-engine/internal/domain"
	"github.com/ignite/broadcast-engine/internal/repository/memory"
	"github.com/ignite/broadcast-engine/internal/service/audience"
)

var (
	owner = domain.Identity{UserID: "owner-1", Role: "user"}
	other = domain.Identity{UserID: "owner-2", Role: "user"}
)

func newService() *audience.Service {
	subs := memory.NewSubscriberRepo()
	return audience.NewService(subs, memory.NewGroupRepo(subs))
}

func TestSubscriberLifecycle(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	_, err := svc.CreateSubscriber(ctx, owner, "", "No Email")
	require.ErrorIs(t, err, audience.ErrInvalidInput)

	sub, err := svc.CreateSubscriber(ctx, owner, "a@example.com", "Ada")
	require.NoError(t, err)
	assert.True(t, sub.Active)

	inactive := false
	updated, err := svc.UpdateSubscriber(ctx, owner, sub.ID, nil, &inactive)
	require.NoError(t, err)
	assert.False(t, updated.Active)
	assert.Equal(t, "Ada", updated.Name)

	// Another owner cannot touch it.
	_, err = svc.UpdateSubscriber(ctx, other, sub.ID, nil, &inactive)
	assert.ErrorIs(t, err, audience.ErrSubscriberNotFound)

	require.NoError(t, svc.DeleteSubscriber(ctx, owner, sub.ID))
	_, _, err = svc.ListSubscribers(ctx, owner, 10, 0)
	require.NoError(t, err)
}

func TestSingleDefaultGroup(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	first, err := svc.CreateGroup(ctx, owner, "First", "", true)
	require.NoError(t, err)
	require.True(t, first.IsDefault)

	// A new default displaces the old one.
	second, err := svc.CreateGroup(ctx, owner, "Second", "", true)
	require.NoError(t, err)
	require.True(t, second.IsDefault)

	groups, err := svc.ListGroups(ctx, owner)
	require.NoError(t, err)
	defaults := 0
	for _, g := range groups {
		if g.IsDefault {
			defaults++
			assert.Equal(t, second.ID, g.ID)
		}
	}
	assert.Equal(t, 1, defaults)
}

func TestDeleteDefaultGroupRefused(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	g, err := svc.CreateGroup(ctx, owner, "Everyone", "", true)
	require.NoError(t, err)

	err = svc.DeleteGroup(ctx, owner, g.ID)
	assert.ErrorIs(t, err, audience.ErrDefaultGroup)

	regular, err := svc.CreateGroup(ctx, owner, "Plain", "", false)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteGroup(ctx, owner, regular.ID))
}

func TestMembersResolvesActiveOnly(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	g, err := svc.CreateGroup(ctx, owner, "List", "", false)
	require.NoError(t, err)

	active, err := svc.CreateSubscriber(ctx, owner, "active@example.com", "")
	require.NoError(t, err)
	dormant, err := svc.CreateSubscriber(ctx, owner, "dormant@example.com", "")
	require.NoError(t, err)
	off := false
	_, err = svc.UpdateSubscriber(ctx, owner, dormant.ID, nil, &off)
	require.NoError(t, err)

	require.NoError(t, svc.AddMember(ctx, owner, g.ID, active.ID))
	require.NoError(t, svc.AddMember(ctx, owner, g.ID, dormant.ID))

	emails, err := svc.Members(ctx, owner.UserID, g.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"active@example.com"}, emails)

	// Groups are invisible across owners.
	_, err = svc.Members(ctx, other.UserID, g.ID)
	assert.ErrorIs(t, err, audience.ErrGroupNotFound)
}
