// Package contracts persists contract records as JSON files keyed by
// filename, with checksum-based optimistic concurrency on writes.
package contracts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/projectvak/contracthub/internal/apperr"
	"github.com/projectvak/contracthub/internal/models"
	"github.com/projectvak/contracthub/internal/storage"
)

// Snapshot is a record together with the checksum of the bytes it was read from.
type Snapshot struct {
	Record   *models.ContractRecord
	Checksum string
}

// Store is the contract persistence boundary.
type Store interface {
	Get(ctx context.Context, filename string) (*Snapshot, error)
	List(ctx context.Context) ([]Snapshot, error)
	// Update overwrites the whole record. A non-empty ifMatch must equal the
	// checksum of the stored bytes or apperr.ErrConflict is returned.
	// It returns the checksum of the written bytes.
	Update(ctx context.Context, filename string, rec *models.ContractRecord, ifMatch string) (string, error)
}

// filenameRe accepts the same names List finds: the extension is matched
// case-insensitively.
var filenameRe = regexp.MustCompile(`(?i)^[^./\\][^/\\]*\.json$`)

// ValidateFilename rejects anything but a plain *.json name.
func ValidateFilename(name string) error {
	err := validation.Validate(name,
		validation.Required,
		validation.Length(1, 255),
		validation.Match(filenameRe),
	)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", apperr.ErrInvalidFilename, name, err)
	}
	return nil
}

// FileStore implements Store on a storage.Provider.
type FileStore struct {
	fs     storage.Provider
	logger *slog.Logger

	// mu makes compare-and-write atomic within this process.
	mu sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a store over fs.
func NewFileStore(fs storage.Provider, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{fs: fs, logger: logger}
}

// Get reads one record.
func (s *FileStore) Get(ctx context.Context, filename string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateFilename(filename); err != nil {
		return nil, err
	}
	return s.read(filename)
}

// List reads every record in the store root, sorted by filename.
// Files that cannot be read or decoded are logged and skipped.
func (s *FileStore) List(ctx context.Context) ([]Snapshot, error) {
	metas, err := s.fs.List("", "*.json")
	if err != nil {
		return nil, fmt.Errorf("contracts: list: %w", err)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Path < metas[j].Path })

	out := make([]Snapshot, 0, len(metas))
	for _, m := range metas {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		snap, err := s.read(m.Path)
		if err != nil {
			s.logger.Warn("contracts: skipping unreadable record",
				slog.String("filename", m.Path),
				slog.String("error", err.Error()))
			continue
		}
		out = append(out, *snap)
	}
	return out, nil
}

// Update overwrites a stored record. The push flag never goes back from
// true to false and the edit history can only grow.
func (s *FileStore) Update(ctx context.Context, filename string, rec *models.ContractRecord, ifMatch string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := ValidateFilename(filename); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.read(filename)
	if err != nil {
		return "", err
	}
	if ifMatch != "" && ifMatch != current.Checksum {
		return "", fmt.Errorf("contracts: update %s: %w", filename, apperr.ErrConflict)
	}
	if len(rec.EditHistory) < len(current.Record.EditHistory) {
		return "", fmt.Errorf("contracts: update %s: edit history is append-only: %w", filename, apperr.ErrConflict)
	}

	next := rec.Clone()
	next.Filename = filename
	if current.Record.WhisePushed && !next.WhisePushed {
		next.WhisePushed = true
		next.WhisePushedAt = current.Record.WhisePushedAt
		next.WhisePushManual = current.Record.WhisePushManual
	}

	data, err := models.EncodeRecord(next)
	if err != nil {
		return "", err
	}
	if err := s.fs.Write(filename, data); err != nil {
		return "", fmt.Errorf("contracts: update %s: %w", filename, err)
	}
	return storage.Checksum(data), nil
}

func (s *FileStore) read(filename string) (*Snapshot, error) {
	data, err := s.fs.Read(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("contracts: %s: %w", filename, apperr.ErrNotFound)
		}
		return nil, err
	}
	rec, err := models.DecodeRecord(data)
	if err != nil {
		return nil, fmt.Errorf("contracts: %s: %w", filename, err)
	}
	// The storage key wins over whatever the file claims to be.
	rec.Filename = filename
	return &Snapshot{Record: rec, Checksum: storage.Checksum(data)}, nil
}
