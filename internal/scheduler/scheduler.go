// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github-release-tracker/internal/poller"
)

// Sweeper runs one full version sweep.
type Sweeper interface {
	RunSweep(ctx context.Context) []poller.CheckResult
}

// run is one Start..Stop cycle of the timer.
type run struct {
	cancel context.CancelFunc
	done   chan struct{}
	sweeps *sync.WaitGroup
}

// Scheduler triggers sweeps on a fixed interval. It is either idle or active;
// Start and Stop move between the two and are no-ops when already there.
type Scheduler struct {
	sweeper Sweeper
	logger  *slog.Logger

	mu      sync.Mutex
	current *run
	// Sweep groups of runs whose timer has ended. No sweep is added to them anymore.
	stopped []*sync.WaitGroup
}

// New creates an idle Scheduler.
func New(sweeper Sweeper, logger *slog.Logger) *Scheduler {
	return &Scheduler{sweeper: sweeper, logger: logger}
}

// Start runs one sweep immediately in the background, then one every interval.
// Sweeps run with ctx; cancelling ctx also stops the timer. It reports whether
// the scheduler was started by this call.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		s.logger.Info("Periodic version check already running")
		return false
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r := &run{cancel: cancel, done: make(chan struct{}), sweeps: new(sync.WaitGroup)}
	s.current = r

	s.logger.Info("Starting periodic version check", "interval", interval.String())
	s.spawnSweep(ctx, r.sweeps)
	go s.loop(loopCtx, ctx, interval, r)

	return true
}

// Stop cancels future sweeps. A sweep already in progress runs to completion.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	r := s.current
	s.current = nil
	s.mu.Unlock()

	if r == nil {
		return
	}
	r.cancel()
	<-r.done
	s.logger.Info("Stopped periodic version check")
}

// Shutdown stops the timer and waits for in-flight sweeps until ctx is done.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.Stop()

	drained := make(chan struct{})
	go func() {
		s.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		s.logger.Warn("Gave up waiting for in-flight version check", "error", ctx.Err())
		return ctx.Err()
	}
}

// IsActive reports whether the timer is registered.
func (s *Scheduler) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Wait blocks until every sweep started before the last Stop (or parent
// cancellation) has returned. Sweeps of a currently active run are not waited for.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	pending := append([]*sync.WaitGroup(nil), s.stopped...)
	s.mu.Unlock()

	for _, wg := range pending {
		wg.Wait()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	waited := make(map[*sync.WaitGroup]struct{}, len(pending))
	for _, wg := range pending {
		waited[wg] = struct{}{}
	}
	kept := s.stopped[:0]
	for _, wg := range s.stopped {
		if _, ok := waited[wg]; !ok {
			kept = append(kept, wg)
		}
	}
	s.stopped = kept
}

func (s *Scheduler) loop(loopCtx, sweepCtx context.Context, interval time.Duration, r *run) {
	defer close(r.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.spawnSweep(sweepCtx, r.sweeps)
		case <-loopCtx.Done():
			s.release(r)
			return
		}
	}
}

// release retires a run whose loop has ended. When the parent context was
// cancelled rather than Stop being called, it also returns the scheduler to idle.
func (s *Scheduler) release(r *run) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = append(s.stopped, r.sweeps)
	if s.current == r {
		r.cancel()
		s.current = nil
		s.logger.Info("Periodic version check shutting down")
	}
}

// spawnSweep runs a sweep without waiting for it. Results only reach the log.
func (s *Scheduler) spawnSweep(ctx context.Context, sweeps *sync.WaitGroup) {
	sweeps.Add(1)
	go func() {
		defer sweeps.Done()
		results := s.sweeper.RunSweep(ctx)

		var failed int
		for _, r := range results {
			if r.Error != "" {
				failed++
			}
		}
		s.logger.Info("Scheduled version check finished", "projects_reported", len(results), "failed", failed)
	}()
}
