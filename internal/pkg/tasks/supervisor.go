// Package tasks runs detached background work under supervision.
// Side effects that used to be fire-and-forget (cache resyncs, stat
// refreshes) go through a Supervisor so panics are recovered, errors
// are logged, and shutdown waits for in-flight tasks.
package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ignite/broadcast-engine/internal/pkg/logger"
)

// Supervisor tracks detached background tasks.
type Supervisor struct {
	log *logger.Logger
	wg  sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewSupervisor creates a task supervisor logging through log.
func NewSupervisor(log *logger.Logger) *Supervisor {
	return &Supervisor{log: log.WithComponent("tasks")}
}

// Go runs fn in a new goroutine. The task gets its own context with
// the given timeout, a recovered panic is logged instead of crashing
// the process, and errors are logged under the task name.
func (s *Supervisor) Go(name string, timeout time.Duration, fn func(ctx context.Context) error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.log.Warn("task rejected, supervisor closed", "task", name)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				s.log.Error("task panicked", "task", name, "panic", fmt.Sprintf("%v", r))
			}
		}()

		start := time.Now()
		if err := fn(ctx); err != nil {
			s.log.Error("task failed", "task", name, "error", err.Error(), "elapsed", time.Since(start).String())
			return
		}
		s.log.Debug("task finished", "task", name, "elapsed", time.Since(start).String())
	}()
}

// Close stops accepting new tasks and waits for running ones.
func (s *Supervisor) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
}
