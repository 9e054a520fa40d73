package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/projectvak/contracthub/internal/contractservice"
)

// NewRouter creates a chi router with all API routes mounted.
// sseHandler, if non-nil, is mounted at GET /events.
func NewRouter(svc *contractservice.Service, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(EditorMiddleware)

	// Contracts.
	r.Get("/contracts", h.ListContracts)
	r.Get("/contracts/{filename}", h.GetContract)
	r.Put("/contracts/{filename}", h.UpdateContract)
	r.Post("/contracts/{filename}/link", h.LinkContract)
	r.Post("/contracts/{filename}/push", h.PushContract)

	// Push sweep.
	r.Post("/sweep", h.Sweep)

	// Dashboard rollup.
	r.Get("/properties", h.Properties)

	// Document index.
	r.Get("/documents/search", h.SearchDocuments)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
