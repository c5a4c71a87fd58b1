// Package sync provides the background reconciliation framework: a shared
// control record, a uniform worker interface, and the runner that gives every
// worker its own paced goroutine.
//
// Control flows one way: dispatch commands write the shared Config under its
// write lock, worker ticks read snapshots under the read lock. A worker never
// holds the lock across a sync pass. Shutdown is cooperative — a worker
// notices quit at its next tick, never mid-pass — so control latency is
// bounded by that worker's own delay. That latency is a documented contract,
// not a bug.
package sync

import "sync"

// Config is the shared control record every worker polls.
//
// enabled and quit are global; paused is per-worker, keyed by syncer name, so
// one worker can be held without stopping its siblings. The zero value is a
// valid disarmed config.
type Config struct {
	mu      sync.RWMutex
	enabled bool
	quit    bool
	paused  map[string]bool
}

// NewConfig returns a disarmed config.
func NewConfig() *Config {
	return &Config{paused: make(map[string]bool)}
}

// Snapshot is one consistent read of the control state as seen by a worker.
type Snapshot struct {
	Enabled bool
	Quit    bool
	Paused  bool
}

// Snapshot returns the control state relevant to the named worker. The read
// lock guarantees the three fields are from one write, never torn.
func (c *Config) Snapshot(name string) Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		Enabled: c.enabled,
		Quit:    c.quit,
		Paused:  c.paused[name],
	}
}

// Enable arms the sync system.
func (c *Config) Enable() {
	c.mu.Lock()
	c.enabled = true
	c.mu.Unlock()
}

// Pause holds the named workers without stopping their goroutines. With no
// names, every known worker pauses on its next tick regardless of name.
func (c *Config) Pause(names ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(names) == 0 {
		c.enabled = false
		return
	}
	for _, name := range names {
		c.paused[name] = true
	}
}

// Resume releases the named workers, or re-arms the whole system with no
// names.
func (c *Config) Resume(names ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(names) == 0 {
		c.enabled = true
		for name := range c.paused {
			c.paused[name] = false
		}
		return
	}
	for _, name := range names {
		c.paused[name] = false
	}
}

// SetQuit raises the terminal signal. Workers exit on their next tick; there
// is no way to un-quit.
func (c *Config) SetQuit() {
	c.mu.Lock()
	c.quit = true
	c.mu.Unlock()
}

// Enabled reports whether the sync system is armed.
func (c *Config) Enabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// Quitting reports whether shutdown has been signaled.
func (c *Config) Quitting() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.quit
}
