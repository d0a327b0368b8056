package svt

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce coalesces the burst of events an editor save produces.
const DefaultWatchDebounce = 200 * time.Millisecond

// Watcher reports edits to the viewed images as ActionFileChanged. It
// watches the parent directories so files replaced by rename are still seen.
type Watcher struct {
	fs       *fsnotify.Watcher
	debounce time.Duration
	log      log.Interface

	// absolute path -> path as given
	paths map[string]string

	mu      sync.Mutex
	pending map[string]bool
	timer   *time.Timer
	flushCh chan struct{}
}

// NewWatcher starts watching the directories holding images.
func NewWatcher(images []string, debounce time.Duration, logger log.Interface) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	if logger == nil {
		logger = log.Log
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{
		fs:       fsw,
		debounce: debounce,
		log:      logger,
		paths:    make(map[string]string, len(images)),
		pending:  make(map[string]bool),
		flushCh:  make(chan struct{}, 1),
	}

	dirs := make(map[string]bool)
	for _, img := range images {
		abs, err := filepath.Abs(img)
		if err != nil {
			continue
		}
		w.paths[abs] = img
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	return w, nil
}

// Run forwards debounced changes to out until ctx is done or the watcher is
// closed.
func (w *Watcher) Run(ctx context.Context, out chan<- Action) error {
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("file watch error")
		case <-w.flushCh:
			for _, path := range w.takePending() {
				select {
				case out <- Action{Kind: ActionFileChanged, Path: path}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Rename) {
		return
	}
	abs, err := filepath.Abs(ev.Name)
	if err != nil {
		return
	}
	path, ok := w.paths[abs]
	if !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[path] = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case w.flushCh <- struct{}{}:
		default:
		}
	})
}

func (w *Watcher) takePending() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.pending))
	for p := range w.pending {
		out = append(out, p)
	}
	clear(w.pending)
	return out
}

// Close stops watching.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	if err := w.fs.Close(); err != nil && !errors.Is(err, fsnotify.ErrClosed) {
		return err
	}
	return nil
}
