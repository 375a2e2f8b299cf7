//go:build !sqlite_fts5

package sqlstore

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/starford/stash/internal/models"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not compiled in; search scores substring hits on the resources table.
	return nil
}

func ftsUpsert(_ context.Context, _ querier, _ *models.Resource) error { return nil }

func ftsDelete(_ context.Context, _ querier, _ string) error { return nil }

// Weighted hit tests for substring scoring, one placeholder each. Tags are
// matched per element so JSON punctuation never counts as a hit.
var searchWeights = []struct {
	hit    string
	weight int
}{
	{"instr(lower(r.title), ?) > 0", 4},
	{"EXISTS (SELECT 1 FROM json_each(r.tags) WHERE instr(lower(json_each.value), ?) > 0)", 3},
	{"instr(lower(r.description), ?) > 0", 2},
	{"instr(lower(r.content), ?) > 0", 1},
	{"instr(lower(r.annotations), ?) > 0", 1},
}

// buildSearch sums a weight for every (term, column) hit. A resource matches
// when any term hits any column; more hits and heavier columns rank higher.
func buildSearch(terms []string) searchClause {
	parts := make([]string, 0, len(terms)*len(searchWeights))
	args := make([]any, 0, cap(parts))
	for _, t := range terms {
		for _, w := range searchWeights {
			parts = append(parts, "("+w.hit+") * "+strconv.Itoa(w.weight))
			args = append(args, t)
		}
	}
	score := "(" + strings.Join(parts, " + ") + ")"
	return searchClause{
		where:     score + " > 0",
		whereArgs: args,
		order:     score + " DESC",
		orderArgs: args,
	}
}
