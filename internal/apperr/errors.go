// Package apperr holds the sentinel errors shared across layers.
package apperr

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrInvalidFilename = errors.New("invalid filename")
	ErrInvalidUpdate   = errors.New("invalid update")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotConfigured   = errors.New("not configured")
	ErrUpstream        = errors.New("upstream failure")
)
