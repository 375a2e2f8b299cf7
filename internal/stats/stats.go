// Package stats derives per-user resource counts.
package stats

import (
	"context"
	"fmt"

	"github.com/starford/stash/internal/models"
)

// Counter reports raw per-type and favorite counts for one user.
type Counter interface {
	CountResources(ctx context.Context, userID string) (map[models.Type]int, int, error)
}

// Stats is the count summary of one user's resources. Counts always holds
// every resource type, zero included.
type Stats struct {
	Counts    map[models.Type]int `json:"counts"`
	Total     int                 `json:"total"`
	Favorites int                 `json:"favorites"`
}

// Aggregator computes Stats.
type Aggregator struct {
	counter Counter
}

// NewAggregator creates an Aggregator.
func NewAggregator(c Counter) *Aggregator {
	return &Aggregator{counter: c}
}

// ForUser returns the summary for userID. Total is the sum of Counts.
func (a *Aggregator) ForUser(ctx context.Context, userID string) (*Stats, error) {
	raw, favorites, err := a.counter.CountResources(ctx, userID)
	if err != nil {
		return nil, err
	}
	s := &Stats{Counts: make(map[models.Type]int, len(models.Types))}
	for _, t := range models.Types {
		s.Counts[t] = raw[t]
		s.Total += raw[t]
	}
	s.Favorites = favorites
	if s.Favorites > s.Total {
		return nil, fmt.Errorf("stats: %d favorites exceed %d resources", s.Favorites, s.Total)
	}
	return s, nil
}
