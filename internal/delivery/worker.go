package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/ignite/broadcast-engine/internal/pkg/logger"
)

// Worker runs the poller and the reconciler on their own tickers. It
// is the background half of the engine; the same Poll and Sweep calls
// are also reachable through the cron endpoints for deployments that
// prefer an external scheduler.
type Worker struct {
	poller     *Poller
	reconciler *Reconciler

	pollInterval  time.Duration
	sweepInterval time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex

	log *logger.Logger
}

// NewWorker creates a background worker. The reconciler runs at a
// fixed multiple of the poll interval; stuck broadcasts are rare and
// the sweep is cheap, so it does not need its own setting.
func NewWorker(poller *Poller, reconciler *Reconciler, pollInterval time.Duration, log *logger.Logger) *Worker {
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	return &Worker{
		poller:        poller,
		reconciler:    reconciler,
		pollInterval:  pollInterval,
		sweepInterval: 5 * pollInterval,
		log:           log.WithComponent("worker"),
	}
}

// Start launches the poll and sweep loops. Calling Start on a running
// worker is a no-op.
func (w *Worker) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.mu.Unlock()

	w.log.Info("starting delivery worker",
		"poll_interval", w.pollInterval.String(),
		"sweep_interval", w.sweepInterval.String())

	w.wg.Add(2)
	go w.pollLoop()
	go w.sweepLoop()
}

// Stop cancels the loops and waits for in-flight runs to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.cancel()
	w.mu.Unlock()

	w.wg.Wait()
	w.log.Info("delivery worker stopped")
}

func (w *Worker) pollLoop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.poller.Poll(w.ctx); err != nil {
				w.log.Error("poll run failed", "error", err.Error())
			}
		}
	}
}

func (w *Worker) sweepLoop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.reconciler.Sweep(w.ctx); err != nil {
				w.log.Error("reconcile sweep failed", "error", err.Error())
			}
		}
	}
}
