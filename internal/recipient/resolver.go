// Package recipient computes the flattened, deduplicated destination
// set for a broadcast from manual addresses and named groups.
package recipient

import (
	"context"
	"errors"

	"github.com/ignite/broadcast-engine/internal/pkg/logger"
)

// ErrNoRecipients is returned when neither the manual list nor any
// group yields a single address.
var ErrNoRecipients = errors.New("broadcast has no recipients")

// GroupLookup resolves a group id to its member addresses. It is an
// external collaborator; a failure for one group must not block the
// remaining groups.
type GroupLookup interface {
	Members(ctx context.Context, ownerID, groupID string) ([]string, error)
}

// Resolver flattens manual addresses plus group memberships into a
// single set. It is pure over its inputs and the lookup collaborator.
type Resolver struct {
	groups GroupLookup
	log    *logger.Logger
}

// NewResolver creates a resolver backed by the given group lookup.
func NewResolver(groups GroupLookup, log *logger.Logger) *Resolver {
	return &Resolver{groups: groups, log: log.WithComponent("recipient")}
}

// Resolve returns the deduplicated union of manual addresses and the
// members of each group. Addresses are compared verbatim (case
// sensitive, no normalization). A group lookup failure is logged and
// skipped. Returns ErrNoRecipients when the union is empty.
func (r *Resolver) Resolve(ctx context.Context, ownerID string, manual []string, groupIDs []string) ([]string, error) {
	seen := make(map[string]struct{}, len(manual))
	var out []string

	add := func(addr string) {
		if addr == "" {
			return
		}
		if _, dup := seen[addr]; dup {
			return
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}

	for _, addr := range manual {
		add(addr)
	}

	for _, groupID := range groupIDs {
		members, err := r.groups.Members(ctx, ownerID, groupID)
		if err != nil {
			r.log.Warn("group lookup failed, skipping group",
				"group_id", groupID, "error", err.Error())
			continue
		}
		for _, addr := range members {
			add(addr)
		}
	}

	if len(out) == 0 {
		return nil, ErrNoRecipients
	}
	return out, nil
}
