package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/stash/internal/query"
	"github.com/starford/stash/internal/resources"
	"github.com/starford/stash/internal/sse"
)

// ListResources handles GET /api/resources.
//
//	@Summary		Filter, search and paginate resources
//	@Tags			resources
//	@Produce		json
//	@Param			type		query		string	false	"Resource type"
//	@Param			folderId	query		string	false	"Folder id, or root for unfiled"
//	@Param			favorite	query		bool	false	"Favorites only"
//	@Param			tags		query		string	false	"Comma-separated tags, any of"
//	@Param			search		query		string	false	"Free-text search"
//	@Param			page		query		int		false	"Page, from 1"
//	@Param			limit		query		int		false	"Page size"
//	@Success		200			{object}	ResourceListResponse
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/resources [get]
func (h *Handler) ListResources(w http.ResponseWriter, r *http.Request) {
	f, err := query.ParseFilter(r.URL.Query())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.query.Run(r.Context(), userID(r), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// CreateResource handles POST /api/resources.
//
//	@Summary		Create a resource
//	@Tags			resources
//	@Accept			json
//	@Produce		json
//	@Param			body	body		resources.CreateInput	true	"Resource to create"
//	@Success		201		{object}	models.Resource
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/resources [post]
func (h *Handler) CreateResource(w http.ResponseWriter, r *http.Request) {
	var in resources.CreateInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.resources.Create(r.Context(), userID(r), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.events.PublishChange(res.UserID, sse.ResourceCreated, res)
	writeJSON(w, http.StatusCreated, res)
}

// GetResource handles GET /api/resources/{id}.
func (h *Handler) GetResource(w http.ResponseWriter, r *http.Request) {
	res, err := h.resources.Get(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// UpdateResource handles PATCH /api/resources/{id}.
//
//	@Summary		Partially update a resource
//	@Tags			resources
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Resource id"
//	@Param			body	body		resources.Patch	true	"Fields to change"
//	@Success		200		{object}	models.Resource
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/resources/{id} [patch]
func (h *Handler) UpdateResource(w http.ResponseWriter, r *http.Request) {
	var p resources.Patch
	if err := decodeJSON(w, r, &p); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.resources.Update(r.Context(), userID(r), chi.URLParam(r, "id"), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.events.PublishChange(res.UserID, sse.ResourceUpdated, res)
	writeJSON(w, http.StatusOK, res)
}

// DeleteResource handles DELETE /api/resources/{id}.
func (h *Handler) DeleteResource(w http.ResponseWriter, r *http.Request) {
	user, id := userID(r), chi.URLParam(r, "id")
	if err := h.resources.Delete(r.Context(), user, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.events.PublishChange(user, sse.ResourceDeleted, map[string]string{"id": id})
	w.WriteHeader(http.StatusNoContent)
}

// ToggleFavorite handles POST /api/resources/{id}/favorite.
func (h *Handler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	res, err := h.resources.ToggleFavorite(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.events.PublishChange(res.UserID, sse.ResourceUpdated, res)
	writeJSON(w, http.StatusOK, res)
}
