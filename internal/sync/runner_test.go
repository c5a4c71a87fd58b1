package sync

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// tickSyncer counts its passes; optionally fails every pass.
type tickSyncer struct {
	name  string
	cfg   *Config
	delay time.Duration
	ticks atomic.Int64
	fail  bool
}

func (s *tickSyncer) Name() string         { return s.name }
func (s *tickSyncer) Delay() time.Duration { return s.delay }
func (s *tickSyncer) Config() *Config      { return s.cfg }

func (s *tickSyncer) RunSync() error {
	s.ticks.Add(1)
	if s.fail {
		return assert.AnError
	}
	return nil
}

const tickDelay = 5 * time.Millisecond

// settle waits long enough for several ticks at the test delay.
func settle() {
	time.Sleep(10 * tickDelay)
}

func TestRunnerTicksWhenEnabled(t *testing.T) {
	cfg := NewConfig()
	r := NewRunner(cfg, nil)
	s := &tickSyncer{name: "worker", cfg: cfg, delay: tickDelay}
	require.NoError(t, r.Spawn(s))
	defer r.Shutdown(true)

	// Disarmed: no passes run.
	settle()
	assert.Zero(t, s.ticks.Load())

	cfg.Enable()
	settle()
	assert.Positive(t, s.ticks.Load())
}

func TestPauseAndResumeOneWorker(t *testing.T) {
	cfg := NewConfig()
	r := NewRunner(cfg, nil)
	held := &tickSyncer{name: "held", cfg: cfg, delay: tickDelay}
	free := &tickSyncer{name: "free", cfg: cfg, delay: tickDelay}
	require.NoError(t, r.Spawn(held))
	require.NoError(t, r.Spawn(free))
	defer r.Shutdown(true)

	cfg.Enable()
	settle()

	cfg.Pause("held")
	// Let any in-flight pass drain before sampling.
	settle()
	heldBefore := held.ticks.Load()
	freeBefore := free.ticks.Load()

	settle()
	assert.Equal(t, heldBefore, held.ticks.Load(), "paused worker must not tick")
	assert.Greater(t, free.ticks.Load(), freeBefore, "sibling keeps running")

	cfg.Resume("held")
	settle()
	assert.Greater(t, held.ticks.Load(), heldBefore, "resumed worker ticks again")
}

func TestPauseAllWithoutNames(t *testing.T) {
	cfg := NewConfig()
	r := NewRunner(cfg, nil)
	a := &tickSyncer{name: "a", cfg: cfg, delay: tickDelay}
	b := &tickSyncer{name: "b", cfg: cfg, delay: tickDelay}
	require.NoError(t, r.Spawn(a))
	require.NoError(t, r.Spawn(b))
	defer r.Shutdown(true)

	cfg.Enable()
	settle()

	cfg.Pause()
	settle()
	aBefore, bBefore := a.ticks.Load(), b.ticks.Load()

	settle()
	assert.Equal(t, aBefore, a.ticks.Load())
	assert.Equal(t, bBefore, b.ticks.Load())

	cfg.Resume()
	settle()
	assert.Greater(t, a.ticks.Load(), aBefore)
	assert.Greater(t, b.ticks.Load(), bBefore)
}

func TestResumeClearsPerWorkerPauses(t *testing.T) {
	cfg := NewConfig()
	cfg.Enable()
	cfg.Pause("x")
	require.True(t, cfg.Snapshot("x").Paused)

	// A bare resume releases everything, named pauses included.
	cfg.Resume()
	snap := cfg.Snapshot("x")
	assert.True(t, snap.Enabled)
	assert.False(t, snap.Paused)
}

func TestShutdownStopsWorkers(t *testing.T) {
	cfg := NewConfig()
	r := NewRunner(cfg, nil)
	s := &tickSyncer{name: "worker", cfg: cfg, delay: tickDelay}
	require.NoError(t, r.Spawn(s))

	cfg.Enable()
	settle()

	r.Shutdown(true)
	after := s.ticks.Load()
	settle()
	assert.Equal(t, after, s.ticks.Load(), "no passes after shutdown returned")
	assert.True(t, cfg.Quitting())
}

func TestFailingPassKeepsTicking(t *testing.T) {
	cfg := NewConfig()
	r := NewRunner(cfg, nil)
	s := &tickSyncer{name: "flaky", cfg: cfg, delay: tickDelay, fail: true}
	require.NoError(t, r.Spawn(s))
	defer r.Shutdown(true)

	cfg.Enable()
	settle()
	assert.Greater(t, s.ticks.Load(), int64(1), "failures retry on the next tick")
}

func TestDuplicateSyncerName(t *testing.T) {
	cfg := NewConfig()
	r := NewRunner(cfg, nil)
	require.NoError(t, r.Spawn(&tickSyncer{name: "dup", cfg: cfg, delay: tickDelay}))
	defer r.Shutdown(true)

	err := r.Spawn(&tickSyncer{name: "dup", cfg: cfg, delay: tickDelay})
	assert.Error(t, err)
}

func TestSnapshotConsistency(t *testing.T) {
	cfg := NewConfig()
	cfg.Enable()
	cfg.Pause("w")

	snap := cfg.Snapshot("w")
	assert.True(t, snap.Enabled)
	assert.True(t, snap.Paused)
	assert.False(t, snap.Quit)

	other := cfg.Snapshot("other")
	assert.False(t, other.Paused, "pause is per-worker")
}
