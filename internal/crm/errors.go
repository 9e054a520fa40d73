package crm

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a non-2xx CRM response.
type Error struct {
	StatusCode int
	Message    string
	Op         string // Operation that failed (e.g., "PushContract")
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("crm: %s: %d %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("crm: %d %s", e.StatusCode, e.Message)
}

// IsRetryable reports whether err is worth retrying on a later sweep:
// transport failures, throttling and server-side errors.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return true
}
