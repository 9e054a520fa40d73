// Package api implements the contract hub REST API using chi.
package api

import (
	"context"
	"net/http"
	"strings"
)

// EditorHeader carries the identity recorded in the edit history.
const EditorHeader = "X-Editor"

type editorKey struct{}

// EditorMiddleware stores the X-Editor header value in the request context.
// Identity is taken as given; authentication happens in front of this API.
func EditorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		editor := strings.TrimSpace(r.Header.Get(EditorHeader))
		if editor != "" {
			r = r.WithContext(context.WithValue(r.Context(), editorKey{}, editor))
		}
		next.ServeHTTP(w, r)
	})
}

// editorFrom returns the editor stored by EditorMiddleware, or "".
func editorFrom(ctx context.Context) string {
	s, _ := ctx.Value(editorKey{}).(string)
	return s
}
