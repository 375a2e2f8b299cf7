package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/stash/internal/apperr"
	"github.com/starford/stash/internal/models"
)

const folderColumns = `id, user_id, parent_id, name, color, icon, sort_order, created_at, updated_at`

const duplicateFolderName = "a folder with this name already exists in this location"

type scanner interface {
	Scan(dest ...any) error
}

func scanFolder(s scanner) (models.Folder, error) {
	var (
		f                models.Folder
		parent           sql.NullString
		created, updated string
	)
	if err := s.Scan(&f.ID, &f.UserID, &parent, &f.Name, &f.Color, &f.Icon, &f.SortOrder, &created, &updated); err != nil {
		return models.Folder{}, err
	}
	f.ParentID = nullable(parent)
	var err error
	if f.CreatedAt, err = parseTime(created); err != nil {
		return models.Folder{}, fmt.Errorf("sqlstore: folder created_at: %w", err)
	}
	if f.UpdatedAt, err = parseTime(updated); err != nil {
		return models.Folder{}, fmt.Errorf("sqlstore: folder updated_at: %w", err)
	}
	return f, nil
}

// GetFolder returns the folder with id owned by userID.
func (q *Queries) GetFolder(ctx context.Context, userID, id string) (*models.Folder, error) {
	row := q.q.QueryRowContext(ctx,
		`SELECT `+folderColumns+` FROM folders WHERE id = ? AND user_id = ?`, id, userID)
	f, err := scanFolder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("folder")
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get folder: %w", err)
	}
	return &f, nil
}

// FolderExists reports whether userID owns a folder with id.
func (q *Queries) FolderExists(ctx context.Context, userID, id string) (bool, error) {
	var n int
	err := q.q.QueryRowContext(ctx,
		`SELECT count(*) FROM folders WHERE id = ? AND user_id = ?`, id, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlstore: folder exists: %w", err)
	}
	return n > 0, nil
}

// ListFolders returns every folder of userID, roots first, then by parent,
// sort order and name.
func (q *Queries) ListFolders(ctx context.Context, userID string) ([]models.Folder, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT `+folderColumns+`
		FROM folders
		WHERE user_id = ?
		ORDER BY parent_id, sort_order, name, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list folders: %w", err)
	}
	defer rows.Close()

	var out []models.Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// SiblingID returns the id of the folder named name under parentID, or "" when
// there is none.
func (q *Queries) SiblingID(ctx context.Context, userID string, parentID *string, name string) (string, error) {
	var id string
	err := q.q.QueryRowContext(ctx,
		`SELECT id FROM folders WHERE user_id = ? AND parent_id IS ? AND name = ?`,
		userID, parentID, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("sqlstore: sibling lookup: %w", err)
	}
	return id, nil
}

// NextSortOrder returns the sort order that places a new folder after its siblings.
func (q *Queries) NextSortOrder(ctx context.Context, userID string, parentID *string) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx,
		`SELECT IFNULL(MAX(sort_order), -1) + 1 FROM folders WHERE user_id = ? AND parent_id IS ?`,
		userID, parentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: next sort order: %w", err)
	}
	return n, nil
}

// InsertFolder stores a new folder.
func (q *Queries) InsertFolder(ctx context.Context, f *models.Folder) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO folders (`+folderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, f.ID, f.UserID, f.ParentID, f.Name, f.Color, f.Icon, f.SortOrder,
		formatTime(f.CreatedAt), formatTime(f.UpdatedAt))
	if err != nil {
		return constraintErr(fmt.Errorf("sqlstore: insert folder: %w", err), "parent folder", duplicateFolderName)
	}
	return nil
}

// UpdateFolder writes every mutable column of f. The row must belong to f.UserID.
func (q *Queries) UpdateFolder(ctx context.Context, f *models.Folder) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE folders
		SET parent_id = ?, name = ?, color = ?, icon = ?, sort_order = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`, f.ParentID, f.Name, f.Color, f.Icon, f.SortOrder, formatTime(f.UpdatedAt), f.ID, f.UserID)
	if err != nil {
		return constraintErr(fmt.Errorf("sqlstore: update folder: %w", err), "parent folder", duplicateFolderName)
	}
	return expectOne(res, "folder")
}

// FolderContents counts the child folders and resources directly inside id.
func (q *Queries) FolderContents(ctx context.Context, userID, id string) (folders, resources int, err error) {
	err = q.q.QueryRowContext(ctx, `
		SELECT
			(SELECT count(*) FROM folders WHERE user_id = ? AND parent_id = ?),
			(SELECT count(*) FROM resources WHERE user_id = ? AND folder_id = ?)
	`, userID, id, userID, id).Scan(&folders, &resources)
	if err != nil {
		return 0, 0, fmt.Errorf("sqlstore: folder contents: %w", err)
	}
	return folders, resources, nil
}

// ReparentResources moves every resource in folder from into folder to (nil = unfiled).
func (q *Queries) ReparentResources(ctx context.Context, userID, from string, to *string) (int64, error) {
	res, err := q.q.ExecContext(ctx,
		`UPDATE resources SET folder_id = ? WHERE user_id = ? AND folder_id = ?`, to, userID, from)
	if err != nil {
		return 0, constraintErr(fmt.Errorf("sqlstore: reparent resources: %w", err), "folder", duplicateFolderName)
	}
	return res.RowsAffected()
}

// ReleaseFolderName renames a folder that is about to be deleted so its
// children can take its place among its siblings. Stored names are trimmed,
// so the leading space keeps the placeholder from clashing with any of them.
func (q *Queries) ReleaseFolderName(ctx context.Context, userID, id string) error {
	res, err := q.q.ExecContext(ctx,
		`UPDATE folders SET name = ' ' || id WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("sqlstore: release folder name: %w", err)
	}
	return expectOne(res, "folder")
}

// ReparentFolders moves every child folder of from under to (nil = root).
func (q *Queries) ReparentFolders(ctx context.Context, userID, from string, to *string) (int64, error) {
	res, err := q.q.ExecContext(ctx,
		`UPDATE folders SET parent_id = ? WHERE user_id = ? AND parent_id = ?`, to, userID, from)
	if err != nil {
		return 0, constraintErr(fmt.Errorf("sqlstore: reparent folders: %w", err), "folder", duplicateFolderName)
	}
	return res.RowsAffected()
}

// DeleteFolder removes the folder row. Remaining references make it fail.
func (q *Queries) DeleteFolder(ctx context.Context, userID, id string) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM folders WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		if errors.Is(constraintErr(err, "folder", duplicateFolderName), apperr.ErrNotFound) {
			// A foreign key still points at the folder.
			return fmt.Errorf("sqlstore: delete folder: %w", apperr.ErrNotEmpty)
		}
		return fmt.Errorf("sqlstore: delete folder: %w", err)
	}
	return expectOne(res, "folder")
}

func expectOne(res sql.Result, kind string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: rows affected: %w", err)
	}
	if n == 0 {
		return apperr.NotFound(kind)
	}
	return nil
}
