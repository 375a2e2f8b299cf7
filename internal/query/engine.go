package query

import (
	"context"
	"log/slog"

	"github.com/starford/stash/internal/models"
)

// Finder executes a normalized filter for one user. It returns the requested
// page and the total number of matches, both computed from one snapshot.
type Finder interface {
	FindResources(ctx context.Context, userID string, f Filter) ([]models.Resource, int, error)
}

// Result is one page of a listing.
type Result struct {
	Items []models.Resource `json:"resources"`
	Total int               `json:"total"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
	Pages int               `json:"pages"`
}

// Engine validates filters and runs them against a Finder.
type Engine struct {
	finder Finder
	logger *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(finder Finder, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{finder: finder, logger: logger}
}

// Run normalizes f and returns the matching page for userID.
func (e *Engine) Run(ctx context.Context, userID string, f Filter) (*Result, error) {
	f, err := f.Normalize()
	if err != nil {
		return nil, err
	}
	items, total, err := e.finder.FindResources(ctx, userID, f)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.Resource{}
	}
	e.logger.Debug("query run",
		slog.String("user", userID),
		slog.Int("page", f.Page),
		slog.Int("limit", f.Limit),
		slog.Int("total", total),
	)
	return &Result{
		Items: items,
		Total: total,
		Page:  f.Page,
		Limit: f.Limit,
		Pages: Pages(total, f.Limit),
	}, nil
}
