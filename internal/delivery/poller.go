package delivery

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/broadcast-engine/internal/domain"
	"github.com/ignite/broadcast-engine/internal/pkg/distlock"
	"github.com/ignite/broadcast-engine/internal/pkg/logger"
	"github.com/ignite/broadcast-engine/internal/service/broadcast"
)

// lockTTL bounds how long a poller instance may hold a per-broadcast
// lock; the atomic claim is the real guard, the lock only cuts down on
// wasted claim attempts across instances.
const lockTTL = 2 * time.Minute

// Outcome is the per-broadcast result of one poll run.
type Outcome struct {
	BroadcastID string `json:"broadcast_id"`
	Status      string `json:"status"` // sent, failed, skipped
	Error       string `json:"error,omitempty"`
}

// Summary aggregates one poll run. Skipped counts broadcasts another
// sender claimed first, which is normal under concurrent pollers.
type Summary struct {
	Attempted int       `json:"attempted"`
	Sent      int       `json:"sent"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
	Outcomes  []Outcome `json:"outcomes,omitempty"`
}

// Poller finds due scheduled broadcasts and dispatches each through the
// executor. Candidates run concurrently and a failure in one never
// stops the others.
type Poller struct {
	repo     broadcast.Repository
	sender   broadcast.Sender
	redis    *redis.Client
	db       *sql.DB
	maxBatch int
	log      *logger.Logger
}

// NewPoller creates a scheduler poller. redisClient and db are optional
// lock backends; with both nil the poller relies on the claim alone.
func NewPoller(repo broadcast.Repository, sender broadcast.Sender, redisClient *redis.Client, db *sql.DB, maxBatch int, log *logger.Logger) *Poller {
	if maxBatch <= 0 {
		maxBatch = 50
	}
	return &Poller{
		repo:     repo,
		sender:   sender,
		redis:    redisClient,
		db:       db,
		maxBatch: maxBatch,
		log:      log.WithComponent("poller"),
	}
}

// Poll runs one scheduling pass: every scheduled broadcast whose time
// has arrived is dispatched. The summary always reflects all
// candidates; Poll returns an error only when the due query itself
// fails.
func (p *Poller) Poll(ctx context.Context) (*Summary, error) {
	due, err := p.repo.FindDue(ctx, time.Now().UTC(), p.maxBatch)
	if err != nil {
		return nil, err
	}

	summary := &Summary{Attempted: len(due)}
	if len(due) == 0 {
		return summary, nil
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, b := range due {
		wg.Add(1)
		go func(b domain.Broadcast) {
			defer wg.Done()
			out := p.dispatch(ctx, b.ID)
			mu.Lock()
			defer mu.Unlock()
			summary.Outcomes = append(summary.Outcomes, out)
			switch out.Status {
			case "sent":
				summary.Sent++
			case "skipped":
				summary.Skipped++
			default:
				summary.Failed++
			}
		}(b)
	}
	wg.Wait()

	p.log.Info("poll run complete",
		"attempted", summary.Attempted,
		"sent", summary.Sent,
		"failed", summary.Failed,
		"skipped", summary.Skipped)
	return summary, nil
}

func (p *Poller) dispatch(ctx context.Context, broadcastID string) Outcome {
	if p.redis != nil || p.db != nil {
		lock := distlock.NewLock(p.redis, p.db, "broadcast:send:"+broadcastID, lockTTL)
		acquired, err := lock.Acquire(ctx)
		if err != nil {
			// Lock backend trouble is not fatal: fall through and let the
			// claim decide.
			p.log.Warn("lock acquire failed, relying on claim",
				"broadcast_id", broadcastID, "error", err.Error())
		} else if !acquired {
			return Outcome{BroadcastID: broadcastID, Status: "skipped"}
		} else {
			defer func() {
				if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
					p.log.Warn("lock release failed", "broadcast_id", broadcastID, "error", err.Error())
				}
			}()
		}
	}

	err := p.sender.Execute(ctx, broadcastID)
	switch {
	case err == nil:
		return Outcome{BroadcastID: broadcastID, Status: "sent"}
	case IsNotClaimed(err):
		return Outcome{BroadcastID: broadcastID, Status: "skipped"}
	default:
		return Outcome{BroadcastID: broadcastID, Status: "failed", Error: err.Error()}
	}
}
