package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/stash/internal/apperr"
	"github.com/starford/stash/internal/blob"
)

// multipartOverhead allows for form boundaries and headers on top of the file.
const multipartOverhead = 1 << 20

// UploadFile handles POST /api/files (multipart/form-data, field "file").
// The response carries the document fields for a follow-up resource create.
//
//	@Summary		Upload a document file
//	@Tags			files
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	true	"File to upload"
//	@Success		201		{object}	FileUploadResponse
//	@Failure		400		{object}	errResponse
//	@Failure		413		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files [post]
func (h *Handler) UploadFile(w http.ResponseWriter, r *http.Request) {
	if max := h.blobs.MaxBytes(); max > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, max+multipartOverhead)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("too_large", "file too large"))
			return
		}
		h.writeError(w, r, apperr.Invalid("file", "missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	obj, err := h.blobs.Put(header.Filename, file)
	if err != nil {
		if errors.Is(err, blob.ErrTooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("too_large", "file too large"))
			return
		}
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, FileUploadResponse{
		FileURL:  obj.URL,
		FileName: obj.FileName,
		FileSize: obj.Size,
		FileType: obj.ContentType,
	})
}

// ServeFile handles GET /files/{name}.
func (h *Handler) ServeFile(w http.ResponseWriter, r *http.Request) {
	f, err := h.blobs.Open(chi.URLParam(r, "name"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
