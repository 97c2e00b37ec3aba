package marker

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/fengyu3941/marker-based-ar-demo/logging"
)

// DefaultReloadDelay is how long a configuration file must stay unchanged before it is reloaded.
const DefaultReloadDelay = 100 * time.Millisecond

// Reconfigurable accepts new configurations at runtime.
type Reconfigurable interface {
	SetConfig(cfg *Config) error
}

// ConfigWatcher reloads a configuration file into a target whenever the file changes. Editors
// often replace files instead of writing them, so the parent directory is watched.
type ConfigWatcher struct {
	path    string
	target  Reconfigurable
	logger  logging.Logger
	watcher *fsnotify.Watcher

	cancel                  context.CancelFunc
	activeBackgroundWorkers sync.WaitGroup
	debounced               func(f func())
	reloads                 chan error

	// mu serializes reloads with Close; no reload reaches the target once closed is set.
	mu     sync.Mutex
	closed bool
}

// NewConfigWatcher starts watching path. Invalid files are logged and ignored, the target keeps
// its previous configuration.
func NewConfigWatcher(path string, target Reconfigurable, delay time.Duration, logger logging.Logger) (*ConfigWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "cannot create file watcher")
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		goutils.UncheckedError(watcher.Close())
		return nil, errors.Wrapf(err, "cannot watch %q", path)
	}
	if delay <= 0 {
		delay = DefaultReloadDelay
	}
	if logger == nil {
		logger = logging.NewBlankLogger("watcher")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cw := &ConfigWatcher{
		path:      abs,
		target:    target,
		logger:    logger,
		watcher:   watcher,
		cancel:    cancel,
		debounced: debounce.New(delay),
		reloads:   make(chan error, 1),
	}
	cw.activeBackgroundWorkers.Add(1)
	goutils.ManagedGo(func() { cw.watch(ctx) }, cw.activeBackgroundWorkers.Done)
	return cw, nil
}

// Reloads receives the outcome of every reload attempt. Outcomes are dropped while the previous
// one was not received.
func (cw *ConfigWatcher) Reloads() <-chan error {
	return cw.reloads
}

func (cw *ConfigWatcher) watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != cw.path || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			cw.debounced(cw.reload)
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Warnw("file watcher error", "error", err)
		}
	}
}

func (cw *ConfigWatcher) reload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.closed {
		return
	}
	cfg, err := LoadConfig(cw.path)
	if err == nil {
		err = cw.target.SetConfig(cfg)
	}
	if err != nil {
		cw.logger.Warnw("ignoring configuration", "path", cw.path, "error", err)
	} else {
		cw.logger.Infow("configuration reloaded", "path", cw.path)
	}
	select {
	case cw.reloads <- err:
	default:
	}
}

// Close stops watching. It waits for a reload in progress, and the target receives no
// configuration after Close returns.
func (cw *ConfigWatcher) Close() error {
	cw.cancel()
	err := cw.watcher.Close()
	cw.activeBackgroundWorkers.Wait()
	cw.mu.Lock()
	cw.closed = true
	cw.mu.Unlock()
	// replace a pending reload
	cw.debounced(func() {})
	return err
}
