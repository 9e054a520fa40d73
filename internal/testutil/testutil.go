// Package testutil provides shared test helpers for setting up contract
// stores, catalogs and index databases.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/projectvak/contracthub/internal/contracts"
	"github.com/projectvak/contracthub/internal/index"
	"github.com/projectvak/contracthub/internal/models"
	"github.com/projectvak/contracthub/internal/storage"
)

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "contracthub-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestCatalog creates a temporary catalog directory with a storage.Provider.
func TestCatalog(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	fs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, fs
}

// TestStore creates an empty contract store in a temporary directory.
func TestStore(t *testing.T) (string, *contracts.FileStore) {
	t.Helper()
	dir, fs := TestCatalog(t)
	return dir, contracts.NewFileStore(fs, Logger())
}

// WriteFile creates rel (and its parents) under dir.
func WriteFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	full := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// WriteContract persists rec as <dir>/<rec.Filename>.
func WriteContract(t *testing.T, dir string, rec *models.ContractRecord) {
	t.Helper()
	data, err := models.EncodeRecord(rec)
	if err != nil {
		t.Fatal(err)
	}
	WriteFile(t, dir, rec.Filename, string(data))
}

// Contract builds a record with the given confidence and address.
// A negative confidence leaves it unset.
func Contract(filename string, confidence float64, address string) *models.ContractRecord {
	rec := &models.ContractRecord{
		Filename:     filename,
		DocumentType: "huurcontract",
		Processed:    "2025-01-25T12:34:56Z",
		ContractData: models.Document{},
	}
	if confidence >= 0 {
		rec.Confidence = Confidence(confidence)
	}
	if address != "" {
		rec.ContractData.Set(models.MustFieldPath("pand.adres"), address)
	}
	return rec
}

// Confidence returns a pointer to v.
func Confidence(v float64) *float64 {
	return &v
}
