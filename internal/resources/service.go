// Package resources stores and validates typed resources: bookmarks, prompts,
// snippets, documents and notes.
package resources

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/stash/internal/apperr"
	"github.com/starford/stash/internal/models"
	"github.com/starford/stash/internal/sqlstore"
)

// FolderValidator confirms that a folder exists and belongs to a user.
type FolderValidator interface {
	Validate(ctx context.Context, userID, folderID string) error
}

// CreateInput is a new resource. Payload fields that do not belong to Type
// are dropped.
type CreateInput struct {
	Type        models.Type `json:"type"`
	Title       string      `json:"title"`
	FolderID    *string     `json:"folderId"`
	Tags        []string    `json:"tags"`
	Favorite    bool        `json:"favorite"`
	Annotations string      `json:"annotations"`
	models.PayloadFields
}

// Patch is a partial update. Nil fields are left untouched. Type may be sent
// but must equal the stored type.
type Patch struct {
	Type        *models.Type          `json:"type"`
	Title       *string               `json:"title"`
	FolderID    models.OptionalString `json:"folderId"`
	Tags        *[]string             `json:"tags"`
	Favorite    *bool                 `json:"favorite"`
	Annotations *string               `json:"annotations"`

	URL          *string `json:"url"`
	Content      *string `json:"content"`
	Description  *string `json:"description"`
	Platform     *string `json:"platform"`
	Category     *string `json:"category"`
	CodeLanguage *string `json:"codeLanguage"`
	FileURL      *string `json:"fileUrl"`
	FileName     *string `json:"fileName"`
	FileSize     *int64  `json:"fileSize"`
	FileType     *string `json:"fileType"`
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service implements resource operations.
type Service struct {
	db      *sqlstore.DB
	folders FolderValidator
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a resource service.
func NewService(db *sqlstore.DB, folders FolderValidator, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{db: db, folders: folders, logger: logger, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func invalidType() error {
	return apperr.Invalid("type", "must be one of bookmark, prompt, snippet, document, note")
}

// Create validates and stores a new resource.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*models.Resource, error) {
	typ, ok := models.ParseType(strings.TrimSpace(string(in.Type)))
	if !ok {
		return nil, invalidType()
	}
	payload, err := in.PayloadFields.Payload(typ)
	if err != nil {
		return nil, invalidType()
	}

	now := s.now().UTC()
	r := &models.Resource{
		ID:          uuid.NewString(),
		UserID:      userID,
		FolderID:    normalizeFolder(in.FolderID),
		Title:       strings.TrimSpace(in.Title),
		Tags:        in.Tags,
		Favorite:    in.Favorite,
		Annotations: in.Annotations,
		Payload:     trimPayload(payload),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := validate(r); err != nil {
		return nil, err
	}
	r.Tags = models.NormalizeTags(r.Tags)

	if r.FolderID != nil {
		if err := s.folders.Validate(ctx, userID, *r.FolderID); err != nil {
			return nil, err
		}
	}
	// The folder reference is checked again by the store's foreign key, which
	// wins if the folder disappears in between.
	if err := s.db.InsertResource(ctx, r); err != nil {
		return nil, err
	}

	s.logger.Info("resource created",
		slog.String("id", r.ID),
		slog.String("user", userID),
		slog.String("type", string(typ)),
	)
	return r, nil
}

// Get returns one resource.
func (s *Service) Get(ctx context.Context, userID, id string) (*models.Resource, error) {
	return s.db.GetResource(ctx, userID, id)
}

// Update applies p to the resource. The type of a resource never changes:
// a differing Type, or a payload field the type does not have, is a
// validation error.
func (s *Service) Update(ctx context.Context, userID, id string, p Patch) (*models.Resource, error) {
	var folderID *string
	if p.FolderID.Present {
		folderID = normalizeFolder(p.FolderID.Value)
		if folderID != nil {
			if err := s.folders.Validate(ctx, userID, *folderID); err != nil {
				return nil, err
			}
		}
	}

	var r *models.Resource
	err := s.db.InTx(ctx, func(q *sqlstore.Queries) error {
		var err error
		if r, err = q.GetResource(ctx, userID, id); err != nil {
			return err
		}
		if err := checkPatch(r.Type(), p); err != nil {
			return err
		}

		if p.Title != nil {
			r.Title = strings.TrimSpace(*p.Title)
		}
		if p.FolderID.Present {
			r.FolderID = folderID
		}
		if p.Tags != nil {
			r.Tags = *p.Tags
		}
		if p.Favorite != nil {
			r.Favorite = *p.Favorite
		}
		if p.Annotations != nil {
			r.Annotations = *p.Annotations
		}
		r.Payload = trimPayload(applyPayload(r.Payload, p))

		if err := validate(r); err != nil {
			return err
		}
		r.Tags = models.NormalizeTags(r.Tags)
		r.UpdatedAt = s.now().UTC()
		return q.UpdateResource(ctx, r)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("resource updated", slog.String("id", r.ID), slog.String("user", userID))
	return r, nil
}

// Delete removes a resource.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if err := s.db.DeleteResource(ctx, userID, id); err != nil {
		return err
	}
	s.logger.Info("resource deleted", slog.String("id", id), slog.String("user", userID))
	return nil
}

// ToggleFavorite flips the favorite flag and returns the updated resource.
func (s *Service) ToggleFavorite(ctx context.Context, userID, id string) (*models.Resource, error) {
	var r *models.Resource
	err := s.db.InTx(ctx, func(q *sqlstore.Queries) error {
		if err := q.ToggleFavorite(ctx, userID, id, s.now().UTC()); err != nil {
			return err
		}
		var err error
		r, err = q.GetResource(ctx, userID, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func normalizeFolder(id *string) *string {
	if id == nil {
		return nil
	}
	v := strings.TrimSpace(*id)
	if v == "" || v == "root" || v == "null" {
		return nil
	}
	return &v
}

// checkPatch rejects a type change and payload fields foreign to typ.
func checkPatch(typ models.Type, p Patch) error {
	fields := map[string]string{}
	if p.Type != nil && *p.Type != typ {
		fields["type"] = "cannot be changed after creation"
	}
	set := map[string]bool{
		"url":          p.URL != nil,
		"content":      p.Content != nil,
		"description":  p.Description != nil,
		"platform":     p.Platform != nil,
		"category":     p.Category != nil,
		"codeLanguage": p.CodeLanguage != nil,
		"fileUrl":      p.FileURL != nil,
		"fileName":     p.FileName != nil,
		"fileSize":     p.FileSize != nil,
		"fileType":     p.FileType != nil,
	}
	for name, present := range set {
		if present && !typ.HasField(name) {
			fields[name] = "not supported for " + string(typ) + " resources"
		}
	}
	if len(fields) > 0 {
		return &apperr.ValidationError{Fields: fields}
	}
	return nil
}

func applyPayload(cur models.Payload, p Patch) models.Payload {
	pf := models.Flatten(cur)
	setStr := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	setStr(&pf.URL, p.URL)
	setStr(&pf.Content, p.Content)
	setStr(&pf.Description, p.Description)
	setStr(&pf.Platform, p.Platform)
	setStr(&pf.Category, p.Category)
	setStr(&pf.CodeLanguage, p.CodeLanguage)
	setStr(&pf.FileURL, p.FileURL)
	setStr(&pf.FileName, p.FileName)
	setStr(&pf.FileType, p.FileType)
	if p.FileSize != nil {
		pf.FileSize = *p.FileSize
	}
	next, err := pf.Payload(cur.Kind())
	if err != nil {
		return cur
	}
	return next
}

func trimPayload(p models.Payload) models.Payload {
	switch v := p.(type) {
	case models.Bookmark:
		v.URL = strings.TrimSpace(v.URL)
		return v
	case models.Document:
		v.FileURL = strings.TrimSpace(v.FileURL)
		v.FileName = strings.TrimSpace(v.FileName)
		return v
	}
	return p
}
