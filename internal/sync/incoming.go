package sync

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/notelock/core/internal/api"
	"github.com/notelock/core/internal/store"
)

// kvSyncMarker is the kv key holding the last applied remote sync marker.
const kvSyncMarker = "sync:incoming:until"

// Incoming pulls remote changes and applies them to local storage.
//
// Applied changes touch the record store only; the profile cache and search
// index belong to the dispatch thread, so the worker raises a sync:incoming
// event and lets the client re-query what it cares about.
type Incoming struct {
	cfg    *Config
	db     *store.DB
	remote api.Remote
	token  TokenFunc
	notify NotifyFunc
	delay  time.Duration
	log    *zap.Logger
}

// NewIncoming creates the incoming syncer.
func NewIncoming(cfg *Config, db *store.DB, remote api.Remote, token TokenFunc, notify NotifyFunc, delay time.Duration, log *zap.Logger) *Incoming {
	if log == nil {
		log = zap.NewNop()
	}
	return &Incoming{
		cfg:    cfg,
		db:     db,
		remote: remote,
		token:  token,
		notify: notify,
		delay:  delay,
		log:    log.With(zap.String("syncer", "incoming")),
	}
}

func (in *Incoming) Name() string         { return "incoming" }
func (in *Incoming) Delay() time.Duration { return in.delay }
func (in *Incoming) Config() *Config      { return in.cfg }

// RunSync pulls one batch of remote changes recorded after the stored marker
// and applies them. Individual record failures are logged, but the marker
// only advances when the whole batch applied: a transient store error must
// not drop remote data, so the next pass re-pulls the same batch. Re-applying
// the items that did land is safe (saves are upserts, deletes idempotent).
func (in *Incoming) RunSync() error {
	token := in.token()
	if token == "" {
		return nil
	}

	ctx := context.Background()
	since, err := in.marker(ctx)
	if err != nil {
		return err
	}

	batch, err := in.remote.PullSync(ctx, token, since)
	if err != nil {
		return fmt.Errorf("failed to pull changes since %d: %w", since, err)
	}
	if len(batch.Items) == 0 {
		return nil
	}

	var applied []string
	var failed int
	for _, item := range batch.Items {
		if err := in.apply(ctx, item); err != nil {
			in.log.Warn("failed to apply remote change",
				zap.String("type", string(item.Type)),
				zap.String("id", item.RecordID),
				zap.Error(err))
			failed++
			continue
		}
		applied = append(applied, item.RecordID)
	}

	if in.notify != nil && len(applied) > 0 {
		in.notify("sync:incoming", map[string]any{"ids": applied})
	}

	if failed > 0 {
		return fmt.Errorf("applied %d of %d changes; marker stays at %d for retry",
			len(applied), len(batch.Items), since)
	}

	if err := in.db.KVSet(ctx, kvSyncMarker, strconv.FormatInt(batch.Until, 10)); err != nil {
		return fmt.Errorf("failed to store sync marker: %w", err)
	}

	in.log.Debug("applied incoming changes",
		zap.Int("count", len(applied)), zap.Int64("until", batch.Until))
	return nil
}

func (in *Incoming) apply(ctx context.Context, item *store.OutgoingItem) error {
	switch item.Action {
	case "create", "update":
		return in.db.SaveRecord(ctx, item.Type, item.RecordID, item.Data)
	case "delete":
		return in.db.DeleteRecord(ctx, item.Type, item.RecordID)
	default:
		return fmt.Errorf("unknown change action %q", item.Action)
	}
}

func (in *Incoming) marker(ctx context.Context) (int64, error) {
	raw, err := in.db.KVGet(ctx, kvSyncMarker)
	if err != nil {
		return 0, fmt.Errorf("failed to read sync marker: %w", err)
	}
	if raw == "" {
		return 0, nil
	}
	since, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt sync marker %q: %w", raw, err)
	}
	return since, nil
}
