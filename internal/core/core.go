// Package core holds the application state behind the command surface: the
// session, the profile cache, the search index handle, and the sync control
// plumbing. All mutation happens on the Executor goroutine; the few fields
// that syncer goroutines read concurrently (session token, search handle)
// sit behind their own locks.
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/notelock/core/internal/api"
	"github.com/notelock/core/internal/config"
	"github.com/notelock/core/internal/models"
	"github.com/notelock/core/internal/search"
	"github.com/notelock/core/internal/store"
	bgsync "github.com/notelock/core/internal/sync"
)

// kvSession is the kv key the session persists under between runs.
const kvSession = "session"

// NotifyFunc raises an uncorrelated event toward the client. Wired by the
// embedder; nil means events are dropped.
type NotifyFunc func(name string, data any)

// session couples the remote credentials with the username they belong to.
type session struct {
	UserID   string `json:"user_id"`
	Token    string `json:"token"`
	Username string `json:"username"`
}

// Core is the shared application state.
type Core struct {
	cfg    *config.Config
	db     *store.DB
	remote api.Remote
	log    *zap.Logger

	syncCfg *bgsync.Config
	runner  *bgsync.Runner

	profile *profile

	searchMu sync.RWMutex
	search   *search.Index

	sessionMu sync.RWMutex
	session   *session

	notify     NotifyFunc
	onShutdown func()
}

// New builds a core over the given storage and remote. The sync control
// record and runner are created disarmed; spawn syncers via Runner and arm
// with StartSync.
func New(cfg *config.Config, db *store.DB, remote api.Remote, log *zap.Logger) *Core {
	if log == nil {
		log = zap.NewNop()
	}
	syncCfg := bgsync.NewConfig()
	return &Core{
		cfg:     cfg,
		db:      db,
		remote:  remote,
		log:     log,
		syncCfg: syncCfg,
		runner:  bgsync.NewRunner(syncCfg, log),
		profile: newProfile(),
	}
}

// SetNotify installs the event sink.
func (c *Core) SetNotify(fn NotifyFunc) { c.notify = fn }

// SetOnShutdown installs the hook app:shutdown invokes after announcing the
// shutdown event. The embedder uses it to stop the receive loop.
func (c *Core) SetOnShutdown(fn func()) { c.onShutdown = fn }

// SyncConfig returns the shared sync control record.
func (c *Core) SyncConfig() *bgsync.Config { return c.syncCfg }

// Runner returns the sync runner for spawning workers.
func (c *Core) Runner() *bgsync.Runner { return c.runner }

// DB returns the record store.
func (c *Core) DB() *store.DB { return c.db }

func (c *Core) event(name string, data any) {
	if c.notify != nil {
		c.notify(name, data)
	}
}

// Token returns the current session token, or "" when logged out. Safe from
// any goroutine; the syncers poll it every pass.
func (c *Core) Token() string {
	c.sessionMu.RLock()
	defer c.sessionMu.RUnlock()
	if c.session == nil {
		return ""
	}
	return c.session.Token
}

func (c *Core) setSession(s *session) {
	c.sessionMu.Lock()
	c.session = s
	c.sessionMu.Unlock()
}

// RestoreSession reloads a persisted session from the kv store and, when one
// exists, rebuilds the profile cache and search index. Called once at
// startup; a missing session is not an error.
func (c *Core) RestoreSession(ctx context.Context) error {
	raw, err := c.db.KVGet(ctx, kvSession)
	if err != nil {
		return fmt.Errorf("failed to read persisted session: %w", err)
	}
	if raw == "" {
		return nil
	}

	var s session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		c.log.Warn("discarding corrupt persisted session", zap.Error(err))
		return c.db.KVDelete(ctx, kvSession)
	}

	c.setSession(&s)
	if err := c.loadProfile(ctx); err != nil {
		return err
	}
	c.log.Info("session restored", zap.String("username", s.Username))
	return nil
}

// Login authenticates against the remote, persists the session, and loads
// the local profile.
func (c *Core) Login(ctx context.Context, username, password string) error {
	remote, err := c.remote.Login(ctx, username, password)
	if err != nil {
		return err
	}

	s := &session{UserID: remote.UserID, Token: remote.Token, Username: username}
	if err := c.persistSession(ctx, s); err != nil {
		return err
	}
	c.setSession(s)

	if err := c.loadProfile(ctx); err != nil {
		return err
	}

	c.log.Info("logged in", zap.String("username", username))
	c.event("user:login", map[string]any{"user_id": s.UserID})
	return nil
}

// Join creates a remote account, stores its user record locally, and leaves
// the core logged in as the new user.
func (c *Core) Join(ctx context.Context, username, password string) error {
	remote, err := c.remote.Join(ctx, username, password)
	if err != nil {
		return err
	}

	s := &session{UserID: remote.UserID, Token: remote.Token, Username: username}
	if err := c.persistSession(ctx, s); err != nil {
		return err
	}
	c.setSession(s)

	user := &models.User{ID: remote.UserID, Username: username}
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode user record: %w", err)
	}
	if err := c.db.SaveRecord(ctx, models.TypeUser, user.ID, data); err != nil {
		return err
	}

	if err := c.loadProfile(ctx); err != nil {
		return err
	}

	c.log.Info("account created", zap.String("username", username))
	c.event("user:join", map[string]any{"user_id": s.UserID})
	return nil
}

// Logout invalidates the session and drops the in-memory profile. Local
// records stay on disk for the next login.
func (c *Core) Logout(ctx context.Context) error {
	token := c.Token()
	if token == "" {
		return nil
	}

	if err := c.remote.Logout(ctx, token); err != nil {
		// A dead remote must not trap the user in a session.
		c.log.Warn("remote logout failed", zap.Error(err))
	}

	if err := c.db.KVDelete(ctx, kvSession); err != nil {
		return err
	}
	c.setSession(nil)
	c.dropIndex()
	c.profile.clear()

	c.log.Info("logged out")
	c.event("user:logout", nil)
	return nil
}

// DeleteAccount destroys the remote account, then wipes local data.
func (c *Core) DeleteAccount(ctx context.Context) error {
	token := c.Token()
	if token == "" {
		return fmt.Errorf("not logged in")
	}

	if err := c.remote.DeleteAccount(ctx, token); err != nil {
		return err
	}

	c.setSession(nil)
	if err := c.WipeLocalData(ctx); err != nil {
		return err
	}

	c.log.Info("account deleted")
	c.event("user:delete-account", nil)
	return nil
}

// WipeLocalData deletes every local record, queue entry, and kv key, and
// drops the caches. The schema stays so the core keeps running empty.
func (c *Core) WipeLocalData(ctx context.Context) error {
	if err := c.db.Wipe(ctx); err != nil {
		return err
	}
	c.dropIndex()
	c.profile.clear()
	c.log.Info("local data wiped")
	return nil
}

// StartSync arms the background sync system.
func (c *Core) StartSync() {
	c.syncCfg.Enable()
	c.log.Info("sync enabled")
}

// PauseSync holds the named workers, or all of them with no names.
func (c *Core) PauseSync(names ...string) {
	c.syncCfg.Pause(names...)
	c.log.Info("sync paused", zap.Strings("names", names))
}

// ResumeSync releases the named workers, or re-arms everything with no names.
func (c *Core) ResumeSync(names ...string) {
	c.syncCfg.Resume(names...)
	c.log.Info("sync resumed", zap.Strings("names", names))
}

// ShutdownSync stops the sync workers permanently. With wait, blocks until
// every worker has exited.
func (c *Core) ShutdownSync(wait bool) {
	c.runner.Shutdown(wait)
	c.log.Info("sync shut down", zap.Bool("waited", wait))
}

// SetAPIEndpoint swaps the remote endpoint and persists it to config.
func (c *Core) SetAPIEndpoint(endpoint string) error {
	if rc, ok := c.remote.(interface{ SetEndpoint(string) }); ok {
		rc.SetEndpoint(endpoint)
	}
	if err := c.cfg.Set(config.KeyAPIEndpoint, endpoint); err != nil {
		return err
	}
	c.log.Info("api endpoint changed", zap.String("endpoint", endpoint))
	return nil
}

// Shutdown tears the core down: sync workers get the quit signal (without
// waiting), the app:shutdown event goes out, then the embedder's hook runs
// so the receive loop can stop itself.
func (c *Core) Shutdown() {
	c.runner.Shutdown(false)
	c.event("app:shutdown", nil)
	if c.onShutdown != nil {
		c.onShutdown()
	}
	c.log.Info("core shutdown initiated")
}

// persistSession writes the session to the kv store.
func (c *Core) persistSession(ctx context.Context, s *session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := c.db.KVSet(ctx, kvSession, string(data)); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}

// loadProfile fills the profile cache from the record store and rebuilds the
// search index over every stored note.
func (c *Core) loadProfile(ctx context.Context) error {
	c.profile.clear()

	spaceRows, err := c.db.ListRecords(ctx, models.TypeSpace)
	if err != nil {
		return err
	}
	for _, row := range spaceRows {
		var s models.Space
		if err := json.Unmarshal(row, &s); err != nil {
			c.log.Warn("skipping undecodable space record", zap.Error(err))
			continue
		}
		c.profile.putSpace(&s)
	}

	boardRows, err := c.db.ListRecords(ctx, models.TypeBoard)
	if err != nil {
		return err
	}
	for _, row := range boardRows {
		var b models.Board
		if err := json.Unmarshal(row, &b); err != nil {
			c.log.Warn("skipping undecodable board record", zap.Error(err))
			continue
		}
		c.profile.putBoard(&b)
	}

	noteRows, err := c.db.ListRecords(ctx, models.TypeNote)
	if err != nil {
		return err
	}
	notes := make([]*models.Note, 0, len(noteRows))
	for _, row := range noteRows {
		var n models.Note
		if err := json.Unmarshal(row, &n); err != nil {
			c.log.Warn("skipping undecodable note record", zap.Error(err))
			continue
		}
		notes = append(notes, &n)
	}

	ix, err := search.Open(ctx, c.db.RawDB())
	if err != nil {
		return err
	}
	if err := ix.Reindex(ctx, notes); err != nil {
		return err
	}
	c.setIndex(ix)

	c.log.Info("profile loaded",
		zap.Int("spaces", len(spaceRows)),
		zap.Int("boards", len(boardRows)),
		zap.Int("notes", len(notes)))
	return nil
}

// ProfileSnapshot returns the cached spaces and boards.
func (c *Core) ProfileSnapshot() ([]*models.Space, []*models.Board) {
	return c.profile.snapshot()
}

func (c *Core) setIndex(ix *search.Index) {
	c.searchMu.Lock()
	c.search = ix
	c.searchMu.Unlock()
}

func (c *Core) dropIndex() {
	c.setIndex(nil)
}

// Index returns the search index, or nil before a profile is loaded.
func (c *Core) Index() *search.Index {
	c.searchMu.RLock()
	defer c.searchMu.RUnlock()
	return c.search
}
