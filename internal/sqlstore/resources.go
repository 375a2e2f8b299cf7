package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/stash/internal/apperr"
	"github.com/starford/stash/internal/models"
)

var resourceColumnNames = []string{
	"id", "user_id", "type", "folder_id", "title", "tags", "favorite", "annotations",
	"url", "content", "description", "platform", "category", "code_language",
	"file_url", "file_name", "file_size", "file_type", "created_at", "updated_at",
}

// resourceColumns returns the column list qualified with alias.
func resourceColumns(alias string) string {
	cols := make([]string, len(resourceColumnNames))
	for i, c := range resourceColumnNames {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

func scanResource(s scanner, extra ...any) (models.Resource, error) {
	var (
		r                models.Resource
		typ, rawTags     string
		folder           sql.NullString
		favorite         int
		pf               models.PayloadFields
		created, updated string
	)
	dest := []any{
		&r.ID, &r.UserID, &typ, &folder, &r.Title, &rawTags, &favorite, &r.Annotations,
		&pf.URL, &pf.Content, &pf.Description, &pf.Platform, &pf.Category, &pf.CodeLanguage,
		&pf.FileURL, &pf.FileName, &pf.FileSize, &pf.FileType, &created, &updated,
	}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return models.Resource{}, err
	}

	p, err := pf.Payload(models.Type(typ))
	if err != nil {
		return models.Resource{}, fmt.Errorf("sqlstore: resource %s: %w", r.ID, err)
	}
	r.Payload = p
	r.FolderID = nullable(folder)
	r.Favorite = favorite != 0
	if err := json.Unmarshal([]byte(rawTags), &r.Tags); err != nil {
		return models.Resource{}, fmt.Errorf("sqlstore: resource %s tags: %w", r.ID, err)
	}
	if r.CreatedAt, err = parseTime(created); err != nil {
		return models.Resource{}, fmt.Errorf("sqlstore: resource created_at: %w", err)
	}
	if r.UpdatedAt, err = parseTime(updated); err != nil {
		return models.Resource{}, fmt.Errorf("sqlstore: resource updated_at: %w", err)
	}
	return r, nil
}

func tagsJSON(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	data, _ := json.Marshal(tags)
	return string(data)
}

// InsertResource stores a new resource and its search entry.
func (q *Queries) InsertResource(ctx context.Context, r *models.Resource) error {
	pf := models.Flatten(r.Payload)
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO resources (`+strings.Join(resourceColumnNames, ", ")+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.UserID, string(r.Type()), r.FolderID, r.Title, tagsJSON(r.Tags), boolInt(r.Favorite), r.Annotations,
		pf.URL, pf.Content, pf.Description, pf.Platform, pf.Category, pf.CodeLanguage,
		pf.FileURL, pf.FileName, pf.FileSize, pf.FileType, formatTime(r.CreatedAt), formatTime(r.UpdatedAt))
	if err != nil {
		return constraintErr(fmt.Errorf("sqlstore: insert resource: %w", err), "folder", "resource already exists")
	}
	return ftsUpsert(ctx, q.q, r)
}

// GetResource returns the resource with id owned by userID.
func (q *Queries) GetResource(ctx context.Context, userID, id string) (*models.Resource, error) {
	row := q.q.QueryRowContext(ctx,
		`SELECT `+resourceColumns("r")+` FROM resources r WHERE r.id = ? AND r.user_id = ?`, id, userID)
	r, err := scanResource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("resource")
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get resource: %w", err)
	}
	return &r, nil
}

// UpdateResource writes every mutable column of r. The type column is never
// touched, so a stored resource keeps the type it was created with.
func (q *Queries) UpdateResource(ctx context.Context, r *models.Resource) error {
	pf := models.Flatten(r.Payload)
	res, err := q.q.ExecContext(ctx, `
		UPDATE resources SET
			folder_id = ?, title = ?, tags = ?, favorite = ?, annotations = ?,
			url = ?, content = ?, description = ?, platform = ?, category = ?, code_language = ?,
			file_url = ?, file_name = ?, file_size = ?, file_type = ?, updated_at = ?
		WHERE id = ? AND user_id = ? AND type = ?
	`, r.FolderID, r.Title, tagsJSON(r.Tags), boolInt(r.Favorite), r.Annotations,
		pf.URL, pf.Content, pf.Description, pf.Platform, pf.Category, pf.CodeLanguage,
		pf.FileURL, pf.FileName, pf.FileSize, pf.FileType, formatTime(r.UpdatedAt),
		r.ID, r.UserID, string(r.Type()))
	if err != nil {
		return constraintErr(fmt.Errorf("sqlstore: update resource: %w", err), "folder", "resource already exists")
	}
	if err := expectOne(res, "resource"); err != nil {
		return err
	}
	return ftsUpsert(ctx, q.q, r)
}

// ToggleFavorite flips the favorite flag of a resource.
func (q *Queries) ToggleFavorite(ctx context.Context, userID, id string, now time.Time) error {
	res, err := q.q.ExecContext(ctx,
		`UPDATE resources SET favorite = 1 - favorite, updated_at = ? WHERE id = ? AND user_id = ?`,
		formatTime(now), id, userID)
	if err != nil {
		return fmt.Errorf("sqlstore: toggle favorite: %w", err)
	}
	return expectOne(res, "resource")
}

// DeleteResource removes a resource and its search entry.
func (q *Queries) DeleteResource(ctx context.Context, userID, id string) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM resources WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("sqlstore: delete resource: %w", err)
	}
	if err := expectOne(res, "resource"); err != nil {
		return err
	}
	return ftsDelete(ctx, q.q, id)
}

// CountResources returns per-type counts and the number of favorites for userID.
func (q *Queries) CountResources(ctx context.Context, userID string) (map[models.Type]int, int, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT type, count(*), IFNULL(SUM(favorite), 0)
		FROM resources
		WHERE user_id = ?
		GROUP BY type
	`, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlstore: count resources: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Type]int)
	favorites := 0
	for rows.Next() {
		var (
			typ    string
			n, fav int
		)
		if err := rows.Scan(&typ, &n, &fav); err != nil {
			return nil, 0, err
		}
		counts[models.Type(typ)] = n
		favorites += fav
	}
	return counts, favorites, rows.Err()
}
