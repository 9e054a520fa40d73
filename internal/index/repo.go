package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/projectvak/contracthub/internal/apperr"
	"github.com/projectvak/contracthub/internal/models"
	"github.com/projectvak/contracthub/internal/normalize"
)

const (
	// DefaultSearchLimit applies when a caller passes a non-positive limit.
	DefaultSearchLimit = 50
	// MaxSearchLimit caps every query.
	MaxSearchLimit = 1000
)

// DocumentRow represents a row in the documents table.
type DocumentRow struct {
	Path        string
	Name        string
	Size        int64
	Fingerprint string
	Linkable    bool
	UpdatedAt   time.Time
}

// RowFromFile builds a row for a catalog file. rel is slash-separated and
// relative to the catalog root; indexed paths are rooted at "/".
func RowFromFile(m models.FileMetadata) DocumentRow {
	p := "/" + strings.TrimPrefix(m.Path, "/")
	return DocumentRow{
		Path:        p,
		Name:        path.Base(p),
		Size:        m.Size,
		Fingerprint: Fingerprint(m),
		Linkable:    strings.EqualFold(path.Ext(p), ".pdf"),
		UpdatedAt:   m.UpdatedAt,
	}
}

// Fingerprint identifies a file version by size and modification time.
func Fingerprint(m models.FileMetadata) string {
	return fmt.Sprintf("%d-%d", m.Size, m.UpdatedAt.UnixNano())
}

// Upsert inserts or replaces a document row.
func (db *DB) Upsert(ctx context.Context, row DocumentRow) error {
	if row.Name == "" {
		row.Name = path.Base(row.Path)
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = time.Now()
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO documents (path, name, name_key, path_key, size, fingerprint, linkable, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			name        = excluded.name,
			name_key    = excluded.name_key,
			path_key    = excluded.path_key,
			size        = excluded.size,
			fingerprint = excluded.fingerprint,
			linkable    = excluded.linkable,
			updated_at  = excluded.updated_at
	`, row.Path, row.Name, normalize.Normalize(row.Name), pathKey(row.Path),
		row.Size, row.Fingerprint, row.Linkable, row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert %s: %w", row.Path, err)
	}
	return nil
}

// Delete removes a document row. Deleting an unknown path is not an error.
func (db *DB) Delete(ctx context.Context, p string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, p); err != nil {
		return fmt.Errorf("index: delete %s: %w", p, err)
	}
	return nil
}

// Get returns one indexed document.
func (db *DB) Get(ctx context.Context, p string) (*models.IndexEntry, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT path, name, size, linkable, updated_at FROM documents WHERE path = ?`, p)
	var e models.IndexEntry
	if err := row.Scan(&e.Path, &e.Name, &e.Size, &e.Linkable, &e.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("index: %s: %w", p, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("index: get %s: %w", p, err)
	}
	return &e, nil
}

// Search returns documents whose name or path contains substring,
// case-insensitively. Both the raw column and its normalized key are
// matched so "meir_78" finds "Meir 78.pdf". An empty substring matches
// nothing. Results are ordered by path.
func (db *DB) Search(ctx context.Context, substring string, field models.SearchField, limit int) ([]models.IndexEntry, error) {
	substring = strings.TrimSpace(substring)
	if substring == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	var rawCol, keyCol string
	switch field {
	case models.SearchByName:
		rawCol, keyCol = "name", "name_key"
	case models.SearchByPath:
		rawCol, keyCol = "path", "path_key"
	default:
		return nil, fmt.Errorf("index: unknown search field %q", field)
	}

	rawLike := "%" + escapeLike(strings.ToLower(substring)) + "%"
	keyLike := rawLike
	if key := normalize.Normalize(substring); key != "" {
		keyLike = "%" + escapeLike(key) + "%"
	}

	query := fmt.Sprintf(`
		SELECT path, name, size, linkable, updated_at
		FROM documents
		WHERE lower(%s) LIKE ? ESCAPE '\' OR %s LIKE ? ESCAPE '\'
		ORDER BY path
		LIMIT ?
	`, rawCol, keyCol)

	rows, err := db.conn.QueryContext(ctx, query, rawLike, keyLike, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	var out []models.IndexEntry
	for rows.Next() {
		var e models.IndexEntry
		if err := rows.Scan(&e.Path, &e.Name, &e.Size, &e.Linkable, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Fingerprints returns path -> fingerprint for every indexed document.
func (db *DB) Fingerprints(ctx context.Context) (map[string]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT path, fingerprint FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("index: fingerprints: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, fp string
		if err := rows.Scan(&p, &fp); err != nil {
			return nil, err
		}
		out[p] = fp
	}
	return out, rows.Err()
}

// Count returns the number of indexed documents.
func (db *DB) Count(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: count: %w", err)
	}
	return n, nil
}

// pathKey normalizes every segment of p and joins them with "/" so that
// key searches never match across a directory boundary by accident.
func pathKey(p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = normalize.Normalize(s)
	}
	return strings.Join(segs, "/")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
