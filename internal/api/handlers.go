package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/stash/internal/apperr"
	"github.com/starford/stash/internal/blob"
	"github.com/starford/stash/internal/folders"
	"github.com/starford/stash/internal/identity"
	"github.com/starford/stash/internal/query"
	"github.com/starford/stash/internal/resources"
	"github.com/starford/stash/internal/sse"
	"github.com/starford/stash/internal/stats"
)

// Publisher receives change notifications after successful writes.
type Publisher interface {
	PublishChange(userID, kind string, data any)
}

type nopPublisher struct{}

func (nopPublisher) PublishChange(string, string, any) {}

// Deps are the services the handlers call.
type Deps struct {
	Folders   *folders.Service
	Resources *resources.Service
	Query     *query.Engine
	Stats     *stats.Aggregator
	Blobs     *blob.Store
	Events    Publisher
	Logger    *slog.Logger
}

// Handler holds API route handlers.
type Handler struct {
	folders   *folders.Service
	resources *resources.Service
	query     *query.Engine
	stats     *stats.Aggregator
	blobs     *blob.Store
	events    Publisher
	logger    *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(d Deps) *Handler {
	h := &Handler{
		folders:   d.Folders,
		resources: d.Resources,
		query:     d.Query,
		stats:     d.Stats,
		blobs:     d.Blobs,
		events:    d.Events,
		logger:    d.Logger,
	}
	if h.events == nil {
		h.events = nopPublisher{}
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

func userID(r *http.Request) string {
	return identity.UserID(r.Context())
}

// ListFolders handles GET /api/folders.
//
//	@Summary		List folders, flat or as a tree
//	@Tags			folders
//	@Produce		json
//	@Param			tree	query		bool	false	"Return nested nodes"
//	@Success		200		{object}	FolderListResponse
//	@Security		BearerAuth
//	@Router			/folders [get]
func (h *Handler) ListFolders(w http.ResponseWriter, r *http.Request) {
	tree, err := boolParam(r, "tree")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var out any
	if tree {
		out, err = h.folders.ListTree(r.Context(), userID(r))
	} else {
		out, err = h.folders.List(r.Context(), userID(r))
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FolderListResponse{Folders: out})
}

// CreateFolder handles POST /api/folders.
//
//	@Summary		Create a folder
//	@Tags			folders
//	@Accept			json
//	@Produce		json
//	@Param			body	body		folders.Input	true	"Folder to create"
//	@Success		201		{object}	models.Folder
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/folders [post]
func (h *Handler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	var in folders.Input
	if err := decodeJSON(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	f, err := h.folders.Create(r.Context(), userID(r), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.events.PublishChange(f.UserID, sse.FolderCreated, f)
	writeJSON(w, http.StatusCreated, f)
}

// GetFolder handles GET /api/folders/{id}.
func (h *Handler) GetFolder(w http.ResponseWriter, r *http.Request) {
	f, err := h.folders.Get(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// UpdateFolder handles PATCH /api/folders/{id}.
//
// Rename, move and metadata are applied together; a failing part leaves the
// folder unchanged.
//
//	@Summary		Rename, move or restyle a folder
//	@Tags			folders
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string		true	"Folder id"
//	@Param			body	body		FolderPatch	true	"Changes"
//	@Success		200		{object}	models.Folder
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/folders/{id} [patch]
func (h *Handler) UpdateFolder(w http.ResponseWriter, r *http.Request) {
	var p FolderPatch
	if err := decodeJSON(w, r, &p); err != nil {
		h.writeError(w, r, err)
		return
	}
	ctx, user, id := r.Context(), userID(r), chi.URLParam(r, "id")

	f, err := h.folders.Patch(ctx, user, id, folders.Patch{
		Name:     p.Name,
		Move:     p.ParentID.Present,
		ParentID: p.ParentID.Value,
		Changes:  folders.Changes{Color: p.Color, Icon: p.Icon, SortOrder: p.SortOrder},
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.events.PublishChange(user, sse.FolderUpdated, f)
	writeJSON(w, http.StatusOK, f)
}

// DeleteFolder handles DELETE /api/folders/{id}?force=true.
//
//	@Summary		Delete a folder
//	@Tags			folders
//	@Param			id		path		string	true	"Folder id"
//	@Param			force	query		bool	false	"Move contents up one level and delete"
//	@Success		200		{object}	DeleteFolderResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/folders/{id} [delete]
func (h *Handler) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	force, err := boolParam(r, "force")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	user := userID(r)
	res, err := h.folders.Delete(r.Context(), user, chi.URLParam(r, "id"), force)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	body := DeleteFolderResponse{
		ID:             res.Folder.ID,
		MovedResources: res.MovedResources,
		MovedFolders:   res.MovedFolders,
	}
	h.events.PublishChange(user, sse.FolderDeleted, body)
	writeJSON(w, http.StatusOK, body)
}

// Stats handles GET /api/stats.
//
//	@Summary		Resource counts per type
//	@Tags			stats
//	@Produce		json
//	@Success		200	{object}	stats.Stats
//	@Security		BearerAuth
//	@Router			/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	s, err := h.stats.ForUser(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// boolParam parses an optional boolean query parameter.
func boolParam(r *http.Request, name string) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, apperr.Invalid(name, "must be true or false")
	}
	return b, nil
}
