package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/stash/internal/identity"
)

// NewRouter creates a chi router with all API routes mounted. Every route runs
// behind AuthMiddleware(auth). events, if non-nil, is mounted at GET /events.
func NewRouter(h *Handler, auth identity.Provider, events http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(auth))

	r.Route("/folders", func(r chi.Router) {
		r.Get("/", h.ListFolders)
		r.Post("/", h.CreateFolder)
		r.Get("/{id}", h.GetFolder)
		r.Patch("/{id}", h.UpdateFolder)
		r.Delete("/{id}", h.DeleteFolder)
	})

	r.Route("/resources", func(r chi.Router) {
		r.Get("/", h.ListResources)
		r.Post("/", h.CreateResource)
		r.Get("/{id}", h.GetResource)
		r.Patch("/{id}", h.UpdateResource)
		r.Delete("/{id}", h.DeleteResource)
		r.Post("/{id}/favorite", h.ToggleFavorite)
	})

	r.Get("/stats", h.Stats)

	if h.blobs != nil {
		r.Post("/files", h.UploadFile)
	}

	if events != nil {
		r.Get("/events", events.ServeHTTP)
	}

	return r
}
