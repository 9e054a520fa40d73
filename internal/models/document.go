package models

import "time"

// SearchField selects which column a document index query matches against.
type SearchField string

const (
	SearchByName SearchField = "name"
	SearchByPath SearchField = "path"
)

// IndexEntry is one file known to the document index.
type IndexEntry struct {
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	Linkable  bool      `json:"linkable"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileMetadata is a lightweight view of a stored file returned by list operations.
type FileMetadata struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MatchResult is the outcome of linking a contract to a source PDF.
// It is recomputed per request and never persisted.
type MatchResult struct {
	Path string `json:"path,omitempty"`
	Name string `json:"name,omitempty"`
	Tier string `json:"tier,omitempty"`
	Key  string `json:"key,omitempty"`
}

// Found reports whether a PDF was matched.
func (m MatchResult) Found() bool {
	return m.Path != ""
}
