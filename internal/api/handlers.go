package api

import (
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/projectvak/contracthub/internal/audit"
	"github.com/projectvak/contracthub/internal/contractservice"
	"github.com/projectvak/contracthub/internal/models"
	"github.com/projectvak/contracthub/internal/status"
)

const maxBodyBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *contractservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *contractservice.Service) *Handler {
	return &Handler{svc: svc}
}

// filenameParam extracts the contract filename, decoding escaped characters.
func filenameParam(r *http.Request) string {
	raw := chi.URLParam(r, "filename")
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListContracts handles GET /api/contracts.
//
//	@Summary		List contracts with their derived status
//	@Tags			contracts
//	@Produce		json
//	@Param			status	query		string	false	"Filter by status"	Enums(pending, error, needs_review, parsed, pushed, manually_edited)
//	@Success		200		{object}	ContractListResponse
//	@Failure		400		{object}	errResponse
//	@Router			/contracts [get]
func (h *Handler) ListContracts(w http.ResponseWriter, r *http.Request) {
	filter := status.Status(r.URL.Query().Get("status"))
	items, err := h.svc.List(r.Context(), filter)
	if err != nil {
		writeError(w, "list contracts", err)
		return
	}
	writeJSON(w, http.StatusOK, ContractListResponse{Contracts: items, Total: len(items)})
}

// GetContract handles GET /api/contracts/{filename}.
//
//	@Summary		Get a single contract
//	@Tags			contracts
//	@Produce		json
//	@Param			filename	path		string	true	"Contract filename"
//	@Success		200			{object}	ContractDetail
//	@Failure		404			{object}	errResponse
//	@Router			/contracts/{filename} [get]
func (h *Handler) GetContract(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Get(r.Context(), filenameParam(r))
	if err != nil {
		writeError(w, "get contract", err)
		return
	}
	w.Header().Set("ETag", `"`+d.Checksum+`"`)
	writeJSON(w, http.StatusOK, d)
}

// UpdateContract handles PUT /api/contracts/{filename}.
//
//	@Summary		Apply a manual edit and record it in the edit history
//	@Tags			contracts
//	@Accept			json
//	@Produce		json
//	@Param			filename	path		string	true	"Contract filename"
//	@Param			If-Match	header		string	false	"Checksum from a previous GET"
//	@Param			X-Editor	header		string	false	"Editor identity"
//	@Success		200			{object}	UpdateContractResponse
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Router			/contracts/{filename} [put]
func (h *Handler) UpdateContract(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}
	upd, err := audit.DecodeUpdate(body)
	if err != nil {
		writeError(w, "update contract", err)
		return
	}

	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	res, err := h.svc.Update(r.Context(), filenameParam(r), upd, editorFrom(r.Context()), ifMatch)
	if err != nil {
		writeError(w, "update contract", err)
		return
	}
	w.Header().Set("ETag", `"`+res.Contract.Checksum+`"`)
	writeJSON(w, http.StatusOK, res)
}

// LinkContract handles POST /api/contracts/{filename}/link.
//
//	@Summary		Match the contract to its source PDF and store the link
//	@Tags			contracts
//	@Produce		json
//	@Param			filename	path		string	true	"Contract filename"
//	@Success		200			{object}	LinkResponse
//	@Failure		404			{object}	errResponse
//	@Router			/contracts/{filename}/link [post]
func (h *Handler) LinkContract(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.LinkPDF(r.Context(), filenameParam(r))
	if err != nil {
		writeError(w, "link contract", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// PushContract handles POST /api/contracts/{filename}/push.
//
//	@Summary		Push one contract to the CRM regardless of confidence
//	@Tags			push
//	@Produce		json
//	@Param			filename	path		string	true	"Contract filename"
//	@Success		200			{object}	PushResponse
//	@Failure		404			{object}	errResponse
//	@Failure		502			{object}	errResponse
//	@Failure		503			{object}	errResponse
//	@Router			/contracts/{filename}/push [post]
func (h *Handler) PushContract(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.ManualPush(r.Context(), filenameParam(r))
	if err != nil {
		writeError(w, "push contract", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Sweep handles POST /api/sweep.
//
//	@Summary		Push every ready contract that has not been pushed yet
//	@Tags			push
//	@Produce		json
//	@Success		200	{object}	SweepResponse
//	@Failure		503	{object}	errResponse
//	@Router			/sweep [post]
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Sweep(r.Context())
	if err != nil {
		writeError(w, "sweep", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Properties handles GET /api/properties.
//
//	@Summary		Contracts grouped per address with the worst member status
//	@Tags			dashboard
//	@Produce		json
//	@Success		200	{object}	PropertyListResponse
//	@Router			/properties [get]
func (h *Handler) Properties(w http.ResponseWriter, r *http.Request) {
	props, err := h.svc.Properties(r.Context())
	if err != nil {
		writeError(w, "properties", err)
		return
	}
	writeJSON(w, http.StatusOK, PropertyListResponse{Properties: props})
}

// SearchDocuments handles GET /api/documents/search.
//
//	@Summary		Substring search over indexed document names or paths
//	@Tags			documents
//	@Produce		json
//	@Param			q		query		string	true	"Substring"
//	@Param			field	query		string	false	"Search field"	Enums(name, path)
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	DocumentSearchResponse
//	@Failure		400		{object}	errResponse
//	@Router			/documents/search [get]
func (h *Handler) SearchDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if strings.TrimSpace(q.Get("q")) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("limit must be an integer"))
			return
		}
		limit = n
	}
	res, err := h.svc.SearchDocuments(r.Context(), q.Get("q"), models.SearchField(q.Get("field")), limit)
	if err != nil {
		writeError(w, "search documents", err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentSearchResponse{Results: res})
}
