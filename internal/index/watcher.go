package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/projectvak/contracthub/internal/models"
	"github.com/projectvak/contracthub/internal/storage"
)

// EventCallback is called after a watcher-driven index change.
// kind is one of "indexed", "removed"; path is the indexed path.
type EventCallback func(kind string, path string)

const reconcileDelay = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the catalog root and keeps the index
// in step with it until ctx is cancelled. New directories are added to the
// watch list; renames and removals trigger a debounced Sync pass.
func Watch(ctx context.Context, db DocumentIndex, catalog storage.Provider, patterns []string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := catalog.Root()
	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time
	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	emit := func(kind, p string) {
		if cb != nil {
			cb(kind, p)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			reconcile(ctx, db, catalog, patterns, logger, emit)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					// Files may already exist in a directory moved into place.
					scheduleReconcile()
					continue
				}
			}

			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			if strings.HasPrefix(filepath.Base(rel), ".") || !storage.Match(patterns, rel) {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				info, statErr := os.Stat(ev.Name)
				if statErr != nil || info.IsDir() {
					continue
				}
				row := RowFromFile(models.FileMetadata{Path: rel, Size: info.Size(), UpdatedAt: info.ModTime()})
				if err := db.Upsert(ctx, row); err != nil {
					logger.Warn("watcher: index failed", slog.String("path", row.Path), slog.String("error", err.Error()))
					continue
				}
				logger.Debug("watcher: indexed", slog.String("path", row.Path))
				emit("indexed", row.Path)

			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				// Rename fires on the old path only; the new path arrives as a
				// Create if it stays inside the catalog.
				p := "/" + rel
				if err := db.Delete(ctx, p); err != nil {
					logger.Warn("watcher: delete failed", slog.String("path", p), slog.String("error", err.Error()))
				} else {
					logger.Debug("watcher: removed", slog.String("path", p))
					emit("removed", p)
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// reconcile runs a Sync pass and reports every path it touched.
func reconcile(ctx context.Context, db DocumentIndex, catalog storage.Provider, patterns []string, logger *slog.Logger, emit func(kind, p string)) {
	before, err := db.Fingerprints(ctx)
	if err != nil {
		logger.Warn("reconcile: fingerprints failed", slog.String("error", err.Error()))
		return
	}
	if _, err := Sync(ctx, db, catalog, patterns, logger); err != nil {
		logger.Warn("reconcile: sync failed", slog.String("error", err.Error()))
		return
	}
	after, err := db.Fingerprints(ctx)
	if err != nil {
		return
	}
	for p := range before {
		if _, ok := after[p]; !ok {
			emit("removed", p)
		}
	}
	for p, fp := range after {
		if before[p] != fp {
			emit("indexed", p)
		}
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
