// Package watcher reports changes to launchd descriptor directories.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"vawter.tech/stopper"

	"github.com/opus-domini/launchmon/internal/descriptor"
)

const stopGrace = 100 * time.Millisecond

// ChangeFunc receives the descriptor paths touched during one quiet period.
type ChangeFunc func(paths []string)

// Options configures a Watcher.
type Options struct {
	Debounce time.Duration
}

// Watcher watches a fixed set of directory trees for descriptor changes and
// calls onChange once per burst of events. Subdirectories are watched too,
// including ones created after Start.
type Watcher struct {
	dirs     []string
	onChange ChangeFunc
	debounce *Debouncer

	mu      sync.Mutex
	pending map[string]struct{}
	watched []string
	sctx    *stopper.Context
}

// New creates a watcher for dirs. Nothing is watched until Start.
func New(dirs []string, onChange ChangeFunc, opts Options) *Watcher {
	return &Watcher{
		dirs:     dirs,
		onChange: onChange,
		debounce: NewDebouncer(opts.Debounce),
		pending:  make(map[string]struct{}),
	}
}

// Start adds every existing directory tree to an fsnotify watcher and
// begins delivering events. Missing directories are skipped.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}

	var watched []string
	for _, dir := range w.dirs {
		if st, err := os.Stat(dir); err != nil || !st.IsDir() {
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				slog.Debug("descriptor dir not watchable", "dir", dir, "err", err)
			}
			continue
		}
		if err := fsw.Add(dir); err != nil {
			slog.Warn("watch descriptor dir failed", "dir", dir, "err", err)
			continue
		}
		watched = append(watched, dir)
		w.addSubdirs(fsw, dir)
	}

	sctx := stopper.WithContext(ctx)
	sctx.Defer(func() {
		w.debounce.Stop()
		_ = fsw.Close()
	})

	w.mu.Lock()
	w.sctx = sctx
	w.watched = watched
	w.mu.Unlock()

	sctx.Go(func(sctx *stopper.Context) error {
		for !sctx.IsStopping() {
			select {
			case <-sctx.Stopping():
				return nil
			case event, ok := <-fsw.Events:
				if !ok {
					return nil
				}
				if event.Has(fsnotify.Create) && isDir(event.Name) {
					w.addSubtree(fsw, event.Name)
					continue
				}
				if relevant(event) {
					w.note(event.Name)
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return nil
				}
				if err != nil {
					slog.Warn("descriptor watcher error", "err", err)
				}
			}
		}
		return nil
	})

	slog.Info("watching descriptor directories", "dirs", watched)
	return nil
}

// Watched returns the directories actually being watched.
func (w *Watcher) Watched() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.watched)
}

// Stop ends the watch and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	sctx := w.sctx
	w.mu.Unlock()
	if sctx == nil {
		return nil
	}
	sctx.Stop(stopGrace)
	return sctx.Wait()
}

func (w *Watcher) note(path string) {
	w.mu.Lock()
	w.pending[path] = struct{}{}
	w.mu.Unlock()
	w.debounce.Trigger(w.flush)
}

// addSubdirs watches every directory below root. Unreadable entries are
// skipped.
func (w *Watcher) addSubdirs(fsw *fsnotify.Watcher, root string) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() || path == root {
			return nil
		}
		if err := fsw.Add(path); err != nil {
			slog.Debug("watch descriptor subdir failed", "dir", path, "err", err)
			return fs.SkipDir
		}
		return nil
	})
}

// addSubtree watches a directory created after Start. Descriptors written
// into it before the watch was in place are reported as changes.
func (w *Watcher) addSubtree(fsw *fsnotify.Watcher, dir string) {
	if err := fsw.Add(dir); err != nil {
		slog.Debug("watch new descriptor dir failed", "dir", dir, "err", err)
		return
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return nil
		case d.IsDir():
			if path != dir {
				if err := fsw.Add(path); err != nil {
					return fs.SkipDir
				}
			}
		case filepath.Ext(path) == descriptor.Extension:
			w.note(path)
		}
		return nil
	})
}

func (w *Watcher) flush() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	clear(w.pending)
	w.mu.Unlock()

	if len(paths) == 0 || w.onChange == nil {
		return
	}
	slices.Sort(paths)
	w.onChange(paths)
}

func isDir(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}

func relevant(event fsnotify.Event) bool {
	if filepath.Ext(event.Name) != descriptor.Extension {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}
