package delivery

import (
	"context"
	"time"

	"github.com/ignite/broadcast-engine/internal/pkg/logger"
	"github.com/ignite/broadcast-engine/internal/service/broadcast"
)

// Reconciler sweeps broadcasts stuck in sending. A broadcast sits in
// sending only for the duration of one executor call; one found there
// past the grace period belongs to a process that died mid-send and is
// moved to failed so the owner can retry.
type Reconciler struct {
	repo  broadcast.Repository
	grace time.Duration
	log   *logger.Logger
}

// NewReconciler creates a reconciler with the given grace period.
func NewReconciler(repo broadcast.Repository, grace time.Duration, log *logger.Logger) *Reconciler {
	if grace <= 0 {
		grace = 15 * time.Minute
	}
	return &Reconciler{repo: repo, grace: grace, log: log.WithComponent("reconciler")}
}

// Sweep fails every broadcast that has been in sending longer than the
// grace period and returns how many were swept.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-r.grace)
	swept, err := r.repo.FailStuckSending(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if swept > 0 {
		r.log.Warn("failed stuck broadcasts", "count", swept, "cutoff", cutoff.Format(time.RFC3339))
	}
	return swept, nil
}
