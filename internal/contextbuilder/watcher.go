package contextbuilder

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/agentcli/internal/logging"
	"github.com/ChamsBouzaiene/agentcli/internal/workspace"
)

const defaultDebounce = 200 * time.Millisecond

// watcher reports changed files under root, debounced, skipping ignored
// paths. New directories are added as they appear.
type watcher struct {
	root     string
	fsw      *fsnotify.Watcher
	ignorer  *workspace.Ignorer
	onChange func(abs []string)
	debounce time.Duration
	logger   *logging.Logger

	mu      sync.Mutex
	pending map[string]bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newWatcher(root string, ign *workspace.Ignorer, logger *logging.Logger, onChange func([]string)) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	return &watcher{
		root:     root,
		fsw:      fsw,
		ignorer:  ign,
		onChange: onChange,
		debounce: defaultDebounce,
		logger:   logger,
		pending:  make(map[string]bool),
	}, nil
}

func (w *watcher) start() error {
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if rel, _ := filepath.Rel(w.root, path); rel != "." && w.skip(rel) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Debug("watch failed", zap.String("path", path), zap.Error(err))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk %s: %w", w.root, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.wg.Add(2)
	go w.eventLoop(ctx)
	go w.debounceLoop(ctx)
	return nil
}

func (w *watcher) stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	return w.fsw.Close()
}

func (w *watcher) skip(rel string) bool {
	return w.ignorer.Ignored(rel) || workspace.IsHidden(rel)
}

func (w *watcher) eventLoop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Debug("watcher error", zap.Error(err))
		}
	}
}

func (w *watcher) handle(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || w.skip(rel) {
		return
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.fsw.Add(ev.Name); err != nil {
				w.logger.Debug("watch failed", zap.String("path", ev.Name), zap.Error(err))
			}
			return
		}
	}
	if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		w.mu.Lock()
		w.pending[ev.Name] = true
		w.mu.Unlock()
	}
}

func (w *watcher) debounceLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *watcher) flush() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]bool)
	w.mu.Unlock()

	w.onChange(paths)
}
