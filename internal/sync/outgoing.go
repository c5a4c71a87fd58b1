package sync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/notelock/core/internal/api"
	"github.com/notelock/core/internal/store"
)

// outgoingBatchSize caps how many queued changes one pass pushes.
const outgoingBatchSize = 50

// TokenFunc returns the current session token, or "" when logged out.
type TokenFunc func() string

// NotifyFunc raises an uncorrelated event toward the client. Best effort.
type NotifyFunc func(name string, data any)

// Outgoing pushes queued local changes to the remote service.
type Outgoing struct {
	cfg    *Config
	db     *store.DB
	remote api.Remote
	token  TokenFunc
	notify NotifyFunc
	delay  time.Duration
	log    *zap.Logger
}

// NewOutgoing creates the outgoing syncer.
func NewOutgoing(cfg *Config, db *store.DB, remote api.Remote, token TokenFunc, notify NotifyFunc, delay time.Duration, log *zap.Logger) *Outgoing {
	if log == nil {
		log = zap.NewNop()
	}
	return &Outgoing{
		cfg:    cfg,
		db:     db,
		remote: remote,
		token:  token,
		notify: notify,
		delay:  delay,
		log:    log.With(zap.String("syncer", "outgoing")),
	}
}

func (o *Outgoing) Name() string         { return "outgoing" }
func (o *Outgoing) Delay() time.Duration { return o.delay }
func (o *Outgoing) Config() *Config      { return o.cfg }

// RunSync drains one batch of the outgoing queue. Without a session the pass
// is a no-op; changes keep queueing until someone logs in.
func (o *Outgoing) RunSync() error {
	token := o.token()
	if token == "" {
		return nil
	}

	ctx := context.Background()
	items, err := o.db.PendingOutgoing(ctx, outgoingBatchSize)
	if err != nil {
		return fmt.Errorf("failed to read outgoing queue: %w", err)
	}
	if len(items) == 0 {
		return nil
	}

	if err := o.remote.PushSync(ctx, token, items); err != nil {
		return fmt.Errorf("failed to push %d changes: %w", len(items), err)
	}

	seqs := make([]int64, len(items))
	ids := make([]string, len(items))
	for i, item := range items {
		seqs[i] = item.Seq
		ids[i] = item.RecordID
	}
	if err := o.db.ClearOutgoing(ctx, seqs); err != nil {
		return fmt.Errorf("failed to clear pushed changes: %w", err)
	}

	o.log.Debug("pushed outgoing changes", zap.Int("count", len(items)))
	if o.notify != nil {
		o.notify("sync:outgoing", map[string]any{"ids": ids})
	}
	return nil
}
