package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads the config when its file changes on disk, then invokes the
// registered callback so live components (currently the remote endpoint) can
// pick up the new values.
type Watcher struct {
	cfg      *Config
	watcher  *fsnotify.Watcher
	onChange func(*Config)
	log      *zap.Logger
	done     chan struct{}
}

// Watch starts watching the config's attached file. Fails when the config
// runs on defaults only (nothing to watch).
//
// Editors replace files rather than rewriting them, so the parent directory
// is watched and events are filtered by name.
func Watch(cfg *Config, onChange func(*Config), log *zap.Logger) (*Watcher, error) {
	if cfg.Path() == "" {
		return nil, fmt.Errorf("config has no file attached")
	}
	if log == nil {
		log = zap.NewNop()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(cfg.Path())); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	w := &Watcher{
		cfg:      cfg,
		watcher:  fw,
		onChange: onChange,
		log:      log,
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	// Debounce: editors fire several events per save.
	var pending <-chan time.Time

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.cfg.Path()) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			pending = time.After(100 * time.Millisecond)

		case <-pending:
			pending = nil
			if err := w.cfg.Reload(); err != nil {
				w.log.Warn("config reload failed", zap.Error(err))
				continue
			}
			w.log.Info("config reloaded", zap.String("path", w.cfg.Path()))
			if w.onChange != nil {
				w.onChange(w.cfg)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("config watcher error", zap.Error(err))
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
