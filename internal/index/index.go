package index

import (
	"context"

	"github.com/projectvak/contracthub/internal/models"
)

// DocumentIndex defines the interface for document catalog operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with fakes.
type DocumentIndex interface {
	Upsert(ctx context.Context, row DocumentRow) error
	Delete(ctx context.Context, path string) error
	Get(ctx context.Context, path string) (*models.IndexEntry, error)
	Search(ctx context.Context, substring string, field models.SearchField, limit int) ([]models.IndexEntry, error)
	Fingerprints(ctx context.Context) (map[string]string, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Verify *DB satisfies DocumentIndex at compile time.
var _ DocumentIndex = (*DB)(nil)
