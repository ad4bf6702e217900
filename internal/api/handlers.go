package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/fmschema/internal/apperr"
	"github.com/starford/fmschema/internal/output"
	"github.com/starford/fmschema/internal/pipeline"
	"github.com/starford/fmschema/internal/template"
)

// maxRenderBody caps the POST /render request body.
const maxRenderBody = 1 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *pipeline.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *pipeline.Service) *Handler {
	return &Handler{svc: svc}
}

// docPath extracts the document path from the URL (everything after /documents/).
// Supports encoded slashes from OpenAPI clients (e.g. commands%2Fgit-commit.md).
func docPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// lastBuild writes 404 and returns false when no build has succeeded yet.
func (h *Handler) lastBuild(w http.ResponseWriter) (*pipeline.Build, bool) {
	b, ok := h.svc.Last()
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("no build yet"))
		return nil, false
	}
	return b, true
}

// ListDocuments handles GET /api/documents.
//
//	@Summary		List the documents of the last build
//	@Tags			documents
//	@Produce		json
//	@Success		200	{object}	DocumentListResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents [get]
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	b, ok := h.lastBuild(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, DocumentListResponse{
		Documents: nonNil(b.Documents),
		Total:     len(b.Documents),
	})
}

// GetDocument handles GET /api/documents/*.
//
//	@Summary		Get one extracted document by path
//	@Tags			documents
//	@Produce		json
//	@Param			path	path		string	true	"Document path"
//	@Success		200		{object}	models.Document
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{path} [get]
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	p := docPath(r)
	if p == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path required"))
		return
	}
	b, ok := h.lastBuild(w)
	if !ok {
		return
	}
	for _, d := range b.Documents {
		if d.Path == p {
			writeJSON(w, http.StatusOK, d)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, errorBody("document not found"))
}

// GetAggregate handles GET /api/aggregate.
//
//	@Summary		Get the aggregated structure of the last build
//	@Tags			build
//	@Produce		json
//	@Success		200	{object}	map[string]any
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/aggregate [get]
func (h *Handler) GetAggregate(w http.ResponseWriter, r *http.Request) {
	b, ok := h.lastBuild(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, b.Aggregate)
}

// GetOutput handles GET /api/output.
//
//	@Summary		Get the serialised output of the last build
//	@Tags			build
//	@Produce		json,application/yaml,application/xml,plain
//	@Success		200	{string}	string
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/output [get]
func (h *Handler) GetOutput(w http.ResponseWriter, r *http.Request) {
	b, ok := h.lastBuild(w)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", contentType(b.Stats.Format))
	w.Header().Set("ETag", `"`+b.Stats.OutputChecksum+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b.Output)
}

func contentType(format string) string {
	switch format {
	case output.JSON:
		return "application/json; charset=utf-8"
	case output.YAML, "yml":
		return "application/yaml; charset=utf-8"
	case output.XML:
		return "application/xml; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Build handles POST /api/build.
//
//	@Summary		Run the pipeline now
//	@Tags			build
//	@Produce		json
//	@Success		200	{object}	BuildResponse
//	@Failure		422	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/build [post]
func (h *Handler) Build(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.Build(r.Context())
	if err != nil {
		writeError(w, "build", err)
		return
	}
	writeJSON(w, http.StatusOK, BuildResponse{
		Stats:      b.Stats,
		Warnings:   nonNil(b.Warnings),
		Unresolved: nonNil(b.Unresolved),
	})
}

// Render handles POST /api/render.
//
//	@Summary		Resolve a template against the last aggregate
//	@Tags			build
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RenderRequest	true	"Template and resolution options"
//	@Success		200		{object}	RenderResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/render [post]
func (h *Handler) Render(w http.ResponseWriter, r *http.Request) {
	var req RenderRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRenderBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON"))
		return
	}
	if req.Template == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("template is required"))
		return
	}

	res, err := h.svc.Render(req.Template, template.Options{
		AllowPartialResolution: req.AllowPartial,
		UseDefaults:            req.UseDefaults,
	})
	if err != nil {
		var perr *template.ProcessingError
		if errors.As(err, &perr) {
			writeJSON(w, http.StatusUnprocessableEntity, errorBody(perr.Error()))
			return
		}
		writeError(w, "render", err)
		return
	}
	writeJSON(w, http.StatusOK, newRenderResponse(res))
}

// Directives handles GET /api/schema/directives.
//
//	@Summary		Describe the directives of the configured schema
//	@Tags			schema
//	@Produce		json
//	@Success		200	{object}	schema.Directives
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/schema/directives [get]
func (h *Handler) Directives(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Directives()
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("schema not found"))
			return
		}
		writeError(w, "directives", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
