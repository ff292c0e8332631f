package indexer

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nox-hq/skillforge/internal/skill"
)

// LocalWatcher drives incremental re-sync of a local-fs Source whenever
// its directory tree changes, debouncing bursts of events the way the
// teacher's cli watch command debounces filesystem churn before
// re-scanning.
type LocalWatcher struct {
	engine   *Engine
	debounce time.Duration
	log      *slog.Logger
}

// NewLocalWatcher constructs a LocalWatcher with the given debounce
// interval (spec.md's default is 500ms, matching the teacher's CLI flag
// default).
func NewLocalWatcher(engine *Engine, debounce time.Duration) *LocalWatcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &LocalWatcher{engine: engine, debounce: debounce, log: slog.Default()}
}

// Watch blocks, re-syncing src whenever its root directory tree changes,
// until ctx is canceled.
func (w *LocalWatcher) Watch(ctx context.Context, src skill.Source) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := addDirsRecursive(watcher, src.Identifier); err != nil {
		return err
	}

	var mu sync.Mutex
	var timer *time.Timer
	resetTimer := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(w.debounce, func() {
			if _, err := w.engine.SyncSource(ctx, src); err != nil {
				w.log.Warn("local-fs re-sync failed", "source", src.ID, "error", err)
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) {
				if event.Has(fsnotify.Create) {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						_ = addDirsRecursive(watcher, event.Name)
					}
				}
				resetTimer()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", "error", err)
		}
	}
}

func addDirsRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		if base == ".git" || base == "node_modules" {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}
