// Package models defines the domain types for stash.
package models

import "time"

// MaxFolderNameLength bounds folder names (in characters).
const MaxFolderNameLength = 100

// Folder is one node of a user's folder forest. ParentID nil means root level.
type Folder struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	ParentID  *string   `json:"parentId"`
	Name      string    `json:"name"`
	Color     string    `json:"color,omitempty"`
	Icon      string    `json:"icon,omitempty"`
	SortOrder int       `json:"sortOrder"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FolderNode is a folder with its nested children, as returned by tree listings.
type FolderNode struct {
	Folder
	Children []*FolderNode `json:"children"`
}
