// Package folders maintains each user's forest of nested folders and guards
// its structural invariants: no cycles, same-owner ancestry and unique sibling
// names.
package folders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/starford/stash/internal/apperr"
	"github.com/starford/stash/internal/models"
	"github.com/starford/stash/internal/sqlstore"
)

// Input carries the fields of a new folder.
type Input struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parentId"`
	Color    string  `json:"color"`
	Icon     string  `json:"icon"`
}

// Changes carries display metadata updates. Nil fields are left untouched.
type Changes struct {
	Color     *string `json:"color"`
	Icon      *string `json:"icon"`
	SortOrder *int    `json:"sortOrder"`
}

// DeleteResult reports what a delete moved before removing the folder.
type DeleteResult struct {
	Folder         models.Folder `json:"folder"`
	MovedResources int64         `json:"movedResources"`
	MovedFolders   int64         `json:"movedFolders"`
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service implements folder operations on top of sqlstore.
type Service struct {
	db     *sqlstore.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a folder service.
func NewService(db *sqlstore.DB, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{db: db, logger: logger, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

const (
	maxColorLength = 32
	maxIconLength  = 64
)

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	err := validation.Validate(name,
		validation.Required.Error("is required"),
		validation.RuneLength(1, models.MaxFolderNameLength),
	)
	if err != nil {
		return "", apperr.Invalid("name", err.Error())
	}
	return name, nil
}

func normalizeParent(id *string) *string {
	if id == nil {
		return nil
	}
	v := strings.TrimSpace(*id)
	if v == "" {
		return nil
	}
	return &v
}

func nameTaken(name string) error {
	return apperr.Conflict("a folder named %q already exists in this location", name)
}

// Create adds a folder under in.ParentID (nil = root). The new folder sorts
// after its existing siblings.
func (s *Service) Create(ctx context.Context, userID string, in Input) (*models.Folder, error) {
	name, err := validateName(in.Name)
	if err != nil {
		return nil, err
	}
	err = validation.ValidateStruct(&in,
		validation.Field(&in.Color, validation.RuneLength(0, maxColorLength)),
		validation.Field(&in.Icon, validation.RuneLength(0, maxIconLength)),
	)
	if err != nil {
		return nil, apperr.FromValidation(err)
	}

	now := s.now().UTC()
	f := &models.Folder{
		ID:        uuid.NewString(),
		UserID:    userID,
		ParentID:  normalizeParent(in.ParentID),
		Name:      name,
		Color:     in.Color,
		Icon:      in.Icon,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.db.InTx(ctx, func(q *sqlstore.Queries) error {
		if f.ParentID != nil {
			ok, err := q.FolderExists(ctx, userID, *f.ParentID)
			if err != nil {
				return err
			}
			if !ok {
				return apperr.NotFound("parent folder")
			}
		}
		if id, err := q.SiblingID(ctx, userID, f.ParentID, name); err != nil {
			return err
		} else if id != "" {
			return nameTaken(name)
		}
		if f.SortOrder, err = q.NextSortOrder(ctx, userID, f.ParentID); err != nil {
			return err
		}
		return q.InsertFolder(ctx, f)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("folder created",
		slog.String("id", f.ID),
		slog.String("user", userID),
		slog.String("name", f.Name),
	)
	return f, nil
}

// Get returns one folder.
func (s *Service) Get(ctx context.Context, userID, folderID string) (*models.Folder, error) {
	return s.db.GetFolder(ctx, userID, folderID)
}

// Patch describes a combined folder update. Name renames, Move reparents to
// ParentID (nil = root) and Changes updates display metadata.
type Patch struct {
	Name     *string
	Move     bool
	ParentID *string
	Changes
}

// Rename changes a folder's name, keeping it unique among its siblings.
func (s *Service) Rename(ctx context.Context, userID, folderID, newName string) (*models.Folder, error) {
	return s.Patch(ctx, userID, folderID, Patch{Name: &newName})
}

// Move reparents a folder (nil = root). Moving a folder into itself or into one
// of its descendants fails with InvalidOperation and changes nothing.
func (s *Service) Move(ctx context.Context, userID, folderID string, newParentID *string) (*models.Folder, error) {
	return s.Patch(ctx, userID, folderID, Patch{Move: true, ParentID: newParentID})
}

// Update changes display metadata.
func (s *Service) Update(ctx context.Context, userID, folderID string, c Changes) (*models.Folder, error) {
	return s.Patch(ctx, userID, folderID, Patch{Changes: c})
}

// Patch applies a rename, a move and metadata changes in one transaction:
// either all of them take effect or none do. The sibling-name check runs
// against the final name under the final parent.
func (s *Service) Patch(ctx context.Context, userID, folderID string, p Patch) (*models.Folder, error) {
	var name string
	if p.Name != nil {
		var err error
		if name, err = validateName(*p.Name); err != nil {
			return nil, err
		}
	}
	if p.Move {
		p.ParentID = normalizeParent(p.ParentID)
		if p.ParentID != nil && *p.ParentID == folderID {
			return nil, apperr.InvalidOperation("a folder cannot be its own parent")
		}
	}
	c := p.Changes
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Color, validation.RuneLength(0, maxColorLength)),
		validation.Field(&c.Icon, validation.RuneLength(0, maxIconLength)),
		validation.Field(&c.SortOrder, validation.Min(0)),
	)
	if err != nil {
		return nil, apperr.FromValidation(err)
	}

	var (
		f              *models.Folder
		renamed, moved bool
	)
	err = s.db.InTx(ctx, func(q *sqlstore.Queries) error {
		var err error
		if f, err = q.GetFolder(ctx, userID, folderID); err != nil {
			return err
		}
		parent := f.ParentID
		if p.Move {
			if p.ParentID != nil {
				if err := checkAncestry(ctx, q, userID, folderID, *p.ParentID); err != nil {
					return err
				}
			}
			if !sameParent(f.ParentID, p.ParentID) {
				parent, moved = p.ParentID, true
			}
		}
		renamed = p.Name != nil && name != f.Name
		if !renamed {
			name = f.Name
		}
		if !renamed && !moved && c == (Changes{}) {
			return nil
		}

		if renamed || moved {
			if id, err := q.SiblingID(ctx, userID, parent, name); err != nil {
				return err
			} else if id != "" && id != f.ID {
				return nameTaken(name)
			}
		}
		if moved {
			if f.SortOrder, err = q.NextSortOrder(ctx, userID, parent); err != nil {
				return err
			}
		}
		f.Name, f.ParentID = name, parent
		if c.Color != nil {
			f.Color = *c.Color
		}
		if c.Icon != nil {
			f.Icon = *c.Icon
		}
		if c.SortOrder != nil {
			f.SortOrder = *c.SortOrder
		}
		f.UpdatedAt = s.now().UTC()
		return q.UpdateFolder(ctx, f)
	})
	if err != nil {
		return nil, err
	}

	if renamed || moved {
		s.logger.Info("folder updated",
			slog.String("id", f.ID),
			slog.String("name", f.Name),
			slog.String("parent", deref(f.ParentID)),
		)
	}
	return f, nil
}

// checkAncestry walks upward from parentID and fails if folderID is on the
// chain. The parent must exist and belong to userID.
func checkAncestry(ctx context.Context, q *sqlstore.Queries, userID, folderID, parentID string) error {
	seen := make(map[string]struct{})
	cur := parentID
	for {
		if cur == folderID {
			return apperr.InvalidOperation("cannot move a folder into its own subtree")
		}
		if _, dup := seen[cur]; dup {
			return fmt.Errorf("folders: ancestor chain of %s loops at %s", parentID, cur)
		}
		seen[cur] = struct{}{}

		p, err := q.GetFolder(ctx, userID, cur)
		if err != nil {
			if cur == parentID && errors.Is(err, apperr.ErrNotFound) {
				return apperr.NotFound("parent folder")
			}
			return err
		}
		if p.ParentID == nil {
			return nil
		}
		cur = *p.ParentID
	}
}

// Delete removes a folder. A folder that still holds resources or child
// folders is only removed with force, in which case its direct contents move
// up one level to the folder's own parent first.
func (s *Service) Delete(ctx context.Context, userID, folderID string, force bool) (*DeleteResult, error) {
	res := &DeleteResult{}
	err := s.db.InTx(ctx, func(q *sqlstore.Queries) error {
		f, err := q.GetFolder(ctx, userID, folderID)
		if err != nil {
			return err
		}
		res.Folder = *f

		children, resources, err := q.FolderContents(ctx, userID, folderID)
		if err != nil {
			return err
		}
		if children+resources > 0 {
			if !force {
				return apperr.ErrNotEmpty
			}
			if res.MovedResources, err = q.ReparentResources(ctx, userID, folderID, f.ParentID); err != nil {
				return err
			}
			if children > 0 {
				// A child named like the folder itself must be able to move up.
				if err := q.ReleaseFolderName(ctx, userID, folderID); err != nil {
					return err
				}
			}
			if res.MovedFolders, err = q.ReparentFolders(ctx, userID, folderID, f.ParentID); err != nil {
				return err
			}
		}
		return q.DeleteFolder(ctx, userID, folderID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("folder deleted",
		slog.String("id", folderID),
		slog.Bool("force", force),
		slog.Int64("moved_resources", res.MovedResources),
		slog.Int64("moved_folders", res.MovedFolders),
	)
	return res, nil
}

// List returns all of a user's folders, roots first, then by parent, sort
// order and name.
func (s *Service) List(ctx context.Context, userID string) ([]models.Folder, error) {
	out, err := s.db.ListFolders(ctx, userID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.Folder{}
	}
	return out, nil
}

// ListTree returns the user's folders as nested root nodes.
func (s *Service) ListTree(ctx context.Context, userID string) ([]*models.FolderNode, error) {
	list, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	return BuildTree(list), nil
}

// Validate confirms that folderID exists and belongs to userID.
func (s *Service) Validate(ctx context.Context, userID, folderID string) error {
	ok, err := s.db.FolderExists(ctx, userID, folderID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("folder")
	}
	return nil
}

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
