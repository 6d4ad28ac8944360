package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher watches the manifest file for changes.
type Watcher struct {
	path       string
	schemaPath string
	onReload   func(*Manifest, error)
	debounce   time.Duration
	current    *Manifest
	mu         sync.RWMutex
	reloads    atomic.Uint32
	fsw        *fsnotify.Watcher
	done       chan struct{}
	closeOnce  sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period after the last write before reloading.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher loads the manifest once and then reloads it on every write,
// passing the result to onReload.
func NewWatcher(path string, schemaPath string, onReload func(*Manifest, error), opts ...WatcherOption) (*Watcher, error) {
	watcher := &Watcher{
		path:       filepath.Clean(path),
		schemaPath: schemaPath,
		onReload:   onReload,
		debounce:   defaultDebounce,
		done:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(watcher)
	}

	manifest, err := LoadAndValidate(path, schemaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load initial manifest: %w", err)
	}
	watcher.current = manifest

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	// Editors that save by rename replace the file, so watch its directory.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to watch manifest %s: %w", path, err)
	}
	watcher.fsw = fsw

	go watcher.watch()

	return watcher, nil
}

// watch watches for manifest changes.
func (cw *Watcher) watch() {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-cw.done:
			return

		case event, ok := <-cw.fsw.Events:
			if !ok {
				return
			}

			if filepath.Clean(event.Name) != cw.path {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if timer != nil {
					timer.Stop()
				}

				timer = time.AfterFunc(cw.debounce, func() {
					cw.reload()
				})
			}

		case err, ok := <-cw.fsw.Errors:
			if !ok {
				return
			}

			slog.Error("Watcher error", "error", err)
		}
	}
}

// reload reloads the manifest file.
func (cw *Watcher) reload() {
	select {
	case <-cw.done:
		return
	default:
	}

	count := cw.reloads.Add(1)
	slog.Info("Reloading manifest", "path", cw.path, "count", count)

	manifest, err := LoadAndValidate(cw.path, cw.schemaPath)
	if err != nil {
		slog.Error("Failed to reload manifest", "error", err)
		cw.onReload(nil, err)
		return
	}

	cw.mu.Lock()
	cw.current = manifest
	cw.mu.Unlock()

	slog.Info("Manifest reloaded successfully", "count", count)
	cw.onReload(manifest, nil)
}

// Snapshot returns the current manifest snapshot (thread-safe).
func (cw *Watcher) Snapshot() *Manifest {
	cw.mu.RLock()
	defer cw.mu.RUnlock()

	return cw.current
}

// ReloadCount returns the number of times the manifest has been reloaded.
func (cw *Watcher) ReloadCount() uint32 {
	return cw.reloads.Load()
}

// Close stops watching. Pending reloads are discarded.
func (cw *Watcher) Close() error {
	var err error
	cw.closeOnce.Do(func() {
		close(cw.done)
		err = cw.fsw.Close()
	})
	return err
}
