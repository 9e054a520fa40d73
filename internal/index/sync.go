package index

import (
	"context"
	"log/slog"

	"github.com/projectvak/contracthub/internal/storage"
)

// SyncStats summarises one catalog reconciliation pass.
type SyncStats struct {
	Indexed   int `json:"indexed"`
	Removed   int `json:"removed"`
	Unchanged int `json:"unchanged"`
}

// Sync walks the catalog and brings the index up to date:
//   - new/changed files (by size and mtime) are upserted
//   - files removed from disk are deleted from the index
func Sync(ctx context.Context, db DocumentIndex, catalog storage.Provider, patterns []string, logger *slog.Logger) (SyncStats, error) {
	var stats SyncStats

	metas, err := catalog.List("", patterns...)
	if err != nil {
		return stats, err
	}

	known, err := db.Fingerprints(ctx)
	if err != nil {
		return stats, err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		row := RowFromFile(m)
		disk[row.Path] = struct{}{}

		if known[row.Path] == row.Fingerprint {
			stats.Unchanged++
			continue
		}
		if err := db.Upsert(ctx, row); err != nil {
			logger.Warn("sync: index failed", slog.String("path", row.Path), slog.String("error", err.Error()))
			continue
		}
		stats.Indexed++
		logger.Debug("sync: indexed", slog.String("path", row.Path))
	}

	for p := range known {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := db.Delete(ctx, p); err != nil {
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		stats.Removed++
		logger.Debug("sync: removed stale", slog.String("path", p))
	}

	return stats, nil
}
