//go:build sqlite_fts5

package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/stash/internal/models"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS resources_fts USING fts5(
			id UNINDEXED,
			title,
			annotations,
			content,
			description,
			tags,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(ctx context.Context, q querier, r *models.Resource) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM resources_fts WHERE id = ?`, r.ID); err != nil {
		return fmt.Errorf("sqlstore: clear fts: %w", err)
	}
	pf := models.Flatten(r.Payload)
	_, err := q.ExecContext(ctx,
		`INSERT INTO resources_fts (id, title, annotations, content, description, tags) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.Title, r.Annotations, pf.Content, pf.Description, strings.Join(r.Tags, " "))
	if err != nil {
		return fmt.Errorf("sqlstore: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(ctx context.Context, q querier, id string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM resources_fts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlstore: delete fts: %w", err)
	}
	return nil
}

// buildSearch matches any term and orders by bm25, weighting title over tags
// over description over body text. Lower bm25 is better.
//
// bm25 cannot run in a statement that also evaluates a window function, so
// the rank is computed in a materialized CTE and the listing orders by it.
func buildSearch(terms []string) searchClause {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return searchClause{
		with: `WITH fts_rank AS MATERIALIZED (
			SELECT id, bm25(resources_fts, 0.0, 4.0, 1.0, 1.0, 2.0, 3.0) AS rank
			FROM resources_fts WHERE resources_fts MATCH ?)`,
		withArgs: []any{strings.Join(quoted, " OR ")},
		join:     "JOIN fts_rank ON fts_rank.id = r.id",
		order:    "fts_rank.rank",
	}
}
