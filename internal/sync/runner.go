package sync

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Syncer is the uniform capability every background reconciliation job
// implements. A syncer owns no goroutine of its own; the Runner gives it one.
type Syncer interface {
	// Name identifies the worker. Names must be unique within a Runner;
	// the per-worker pause flag is keyed by it.
	Name() string

	// Delay is the sleep between ticks. Control latency for this worker is
	// bounded by it.
	Delay() time.Duration

	// Config returns the shared control record.
	Config() *Config

	// RunSync performs one reconciliation pass. A failure is worker-local:
	// the runner logs it and retries on the next tick, not immediately, so
	// transient failures self-heal without busy-looping.
	RunSync() error
}

// Runner spawns and tracks one goroutine per registered syncer.
type Runner struct {
	cfg *Config
	log *zap.Logger

	mu    sync.Mutex
	names map[string]bool
	wg    sync.WaitGroup
}

// NewRunner creates a runner over the shared control record.
func NewRunner(cfg *Config, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		cfg:   cfg,
		log:   log,
		names: make(map[string]bool),
	}
}

// Spawn starts the worker goroutine for s. Two syncers with the same name is
// a configuration error.
func (r *Runner) Spawn(s Syncer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.names[s.Name()] {
		return fmt.Errorf("duplicate syncer name %q", s.Name())
	}
	r.names[s.Name()] = true

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(s)
	}()
	return nil
}

// run is the worker loop. Each iteration: snapshot the control state, exit on
// quit, run one pass when armed and not paused, sleep the worker's delay.
// Quit raised during a pass or a sleep is observed at the next snapshot.
func (r *Runner) run(s Syncer) {
	log := r.log.With(zap.String("syncer", s.Name()))
	log.Info("syncer started", zap.Duration("delay", s.Delay()))

	cfg := s.Config()
	for {
		snap := cfg.Snapshot(s.Name())
		if snap.Quit {
			log.Info("syncer shutting down")
			return
		}

		if snap.Enabled && !snap.Paused {
			if err := s.RunSync(); err != nil {
				log.Error("sync pass failed", zap.Error(err))
			}
		}

		time.Sleep(s.Delay())
	}
}

// Shutdown raises quit. With wait, it blocks until every worker has observed
// the signal and exited; without, it is fire-and-forget for process-level
// teardown.
func (r *Runner) Shutdown(wait bool) {
	r.cfg.SetQuit()
	if wait {
		r.wg.Wait()
	}
}

// Wait blocks until all workers have exited. Meaningful only after quit has
// been raised.
func (r *Runner) Wait() {
	r.wg.Wait()
}
