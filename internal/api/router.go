package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starford/vitrine/internal/siteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *siteservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Master document.
	r.Get("/master", h.GetMaster)
	r.Put("/master", h.SaveMaster)

	// Pipeline.
	r.Post("/publish", h.Publish)
	r.Get("/diff", h.Diff)
	r.Post("/prune", h.Prune)
	r.Post("/thumbs/{folder}", h.RefreshThumbnail)
	r.Get("/lock", h.Lock)

	// Read models.
	r.Get("/registry", h.Registry)
	r.Get("/cards/{id}", h.GetCard)
	r.Get("/search", h.Search)
	r.Get("/runs", h.Runs)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
