package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/starford/stash/internal/models"
	"github.com/starford/stash/internal/query"
)

// searchClause is the text-search part of a listing statement. Each fragment
// carries its own arguments in placeholder order.
type searchClause struct {
	with      string
	withArgs  []any
	join      string
	joinArgs  []any
	where     string
	whereArgs []any
	order     string
	orderArgs []any
}

// predicate is the shared WHERE builder for the page and count statements.
type predicate struct {
	conds []string
	args  []any
}

func (p *predicate) add(cond string, args ...any) {
	p.conds = append(p.conds, cond)
	p.args = append(p.args, args...)
}

func (p *predicate) sql() string {
	return strings.Join(p.conds, " AND ")
}

func buildPredicate(userID string, f query.Filter, search *searchClause) predicate {
	var p predicate
	p.add("r.user_id = ?", userID)
	if f.Type != "" {
		p.add("r.type = ?", string(f.Type))
	}
	switch f.Folder {
	case query.RootFolder:
		p.add("r.folder_id IS NULL")
	case query.InFolder:
		p.add("r.folder_id = ?", f.FolderID)
	}
	if f.Favorite != nil {
		p.add("r.favorite = ?", boolInt(*f.Favorite))
	}
	if len(f.Tags) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(f.Tags)), ", ")
		args := make([]any, len(f.Tags))
		for i, t := range f.Tags {
			args[i] = t
		}
		p.add("EXISTS (SELECT 1 FROM json_each(r.tags) WHERE json_each.value IN ("+marks+"))", args...)
	}
	if search != nil && search.where != "" {
		p.add(search.where, search.whereArgs...)
	}
	return p
}

// FindResources returns one page of resources matching f and the total match
// count. The page and the total come from a single statement, so they always
// agree. f must already be normalized.
func (q *Queries) FindResources(ctx context.Context, userID string, f query.Filter) ([]models.Resource, int, error) {
	var search *searchClause
	if terms := f.Terms(); len(terms) > 0 {
		sc := buildSearch(terms)
		search = &sc
	}
	pred := buildPredicate(userID, f, search)

	var (
		b    strings.Builder
		args []any
	)
	if search != nil && search.with != "" {
		b.WriteString(search.with + " ")
		args = append(args, search.withArgs...)
	}
	b.WriteString(`SELECT ` + resourceColumns("r") + `, COUNT(*) OVER () FROM resources r`)
	if search != nil && search.join != "" {
		b.WriteString(" " + search.join)
		args = append(args, search.joinArgs...)
	}
	b.WriteString(" WHERE " + pred.sql())
	args = append(args, pred.args...)
	b.WriteString(" ORDER BY ")
	if search != nil && search.order != "" {
		b.WriteString(search.order + ", ")
		args = append(args, search.orderArgs...)
	}
	b.WriteString("r.created_at DESC, r.rowid DESC LIMIT ? OFFSET ?")
	args = append(args, f.Limit, f.Offset())

	rows, err := q.q.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlstore: find resources: %w", err)
	}
	defer rows.Close()

	out := []models.Resource{}
	total := 0
	for rows.Next() {
		r, err := scanResource(rows, &total)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqlstore: find resources: %w", err)
	}
	if len(out) > 0 || f.Offset() == 0 {
		return out, total, nil
	}

	// Past the last page: the window count never ran, so count directly.
	total, err = q.countMatches(ctx, pred, search)
	return out, total, err
}

func (q *Queries) countMatches(ctx context.Context, pred predicate, search *searchClause) (int, error) {
	stmt := `SELECT count(*) FROM resources r`
	var args []any
	if search != nil && search.with != "" {
		stmt = search.with + " " + stmt
		args = append(args, search.withArgs...)
	}
	if search != nil && search.join != "" {
		stmt += " " + search.join
		args = append(args, search.joinArgs...)
	}
	stmt += " WHERE " + pred.sql()
	args = append(args, pred.args...)

	var n int
	if err := q.q.QueryRowContext(ctx, stmt, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlstore: count matches: %w", err)
	}
	return n, nil
}
