// Package storage defines the rooted file-system abstraction shared by the
// contract store and the source-file catalog.
package storage

import "github.com/projectvak/contracthub/internal/models"

// Provider is the interface for rooted file operations.
type Provider interface {
	// Root returns the absolute directory the provider is rooted at.
	Root() string
	// List returns metadata for every file under dir (relative to root)
	// whose slash-separated relative path matches one of patterns.
	// With no patterns every file is returned.
	List(dir string, patterns ...string) ([]models.FileMetadata, error)
	// Read returns the raw bytes of the file at path (relative to root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to root).
	Write(path string, content []byte) error
}
