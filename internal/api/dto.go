package api

import (
	"github.com/starford/stash/internal/models"
	"github.com/starford/stash/internal/query"
)

// FolderPatch is the body of PATCH /api/folders/{id}. Name renames,
// parentId moves (null means root level), the rest updates metadata.
type FolderPatch struct {
	Name      *string               `json:"name"`
	ParentID  models.OptionalString `json:"parentId"`
	Color     *string               `json:"color"`
	Icon      *string               `json:"icon"`
	SortOrder *int                  `json:"sortOrder"`
}

// FolderListResponse wraps flat and tree folder listings.
type FolderListResponse struct {
	Folders any `json:"folders"`
}

// ResourceListResponse is a page of resources plus pagination meta.
type ResourceListResponse = query.Result

// DeleteFolderResponse reports what a delete reparented.
type DeleteFolderResponse struct {
	ID             string `json:"id"`
	MovedResources int64  `json:"movedResources"`
	MovedFolders   int64  `json:"movedFolders"`
}

// FileUploadResponse is returned after a successful upload. Its fields line up
// with the document resource fields.
type FileUploadResponse struct {
	FileURL  string `json:"fileUrl"`
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
	FileType string `json:"fileType"`
}
