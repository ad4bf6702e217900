package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/fmschema/internal/pipeline"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *pipeline.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Last build.
	r.Get("/documents", h.ListDocuments)
	r.Get("/documents/*", h.GetDocument)
	r.Get("/aggregate", h.GetAggregate)
	r.Get("/output", h.GetOutput)

	// Actions.
	r.Post("/build", h.Build)
	r.Post("/render", h.Render)

	r.Get("/schema/directives", h.Directives)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
