//go:build sqlite_fts5

package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/starford/stash/internal/models"
	"github.com/starford/stash/internal/query"
)

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM resources_fts`).Scan(&count); err != nil {
		t.Fatalf("resources_fts table missing: %v", err)
	}
}

func TestFTS5_UpdateReindexes(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	r := resource("r1", "u1", base, models.Note{Content: "alpha"})
	if err := db.InsertResource(ctx, r); err != nil {
		t.Fatal(err)
	}
	r.Payload = models.Note{Content: "omega"}
	if err := db.UpdateResource(ctx, r); err != nil {
		t.Fatal(err)
	}

	if _, total := mustFind(t, db, "u1", query.Filter{Search: "alpha"}); total != 0 {
		t.Errorf("stale term still matches: total %d", total)
	}
	if _, total := mustFind(t, db, "u1", query.Filter{Search: "omega"}); total != 1 {
		t.Errorf("new term total = %d, want 1", total)
	}
}

func TestFTS5_QuotesAreLiteral(t *testing.T) {
	db := testDB(t)
	r := resource("r1", "u1", base, models.Note{Content: "unbalanced quotes"})
	if err := db.InsertResource(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	items, total := mustFind(t, db, "u1", query.Filter{Search: `"unbalanced OR`})
	if total != 1 || len(items) != 1 || items[0].ID != "r1" {
		t.Errorf("items = %v, total = %d, want r1 only", ids(items), total)
	}
}

func TestFTS5_RanksTitleAboveContentAcrossPages(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	body := resource("body", "u1", base.Add(time.Hour), models.Note{Content: "some kafka notes"})
	body.Title = "Streaming"
	title := resource("title", "u1", base, models.Note{Content: "brokers"})
	title.Title = "Kafka basics"
	other := resource("other", "u1", base, models.Note{Content: "unrelated"})
	for _, r := range []*models.Resource{body, title, other} {
		if err := db.InsertResource(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	items, total := mustFind(t, db, "u1", query.Filter{Search: "kafka", Limit: 1})
	if total != 2 || len(items) != 1 || items[0].ID != "title" {
		t.Errorf("page 1 = %v, total %d", ids(items), total)
	}
	items, total = mustFind(t, db, "u1", query.Filter{Search: "kafka", Page: 2, Limit: 1})
	if total != 2 || len(items) != 1 || items[0].ID != "body" {
		t.Errorf("page 2 = %v, total %d", ids(items), total)
	}
	items, total = mustFind(t, db, "u1", query.Filter{Search: "kafka", Page: 3, Limit: 1})
	if total != 2 || len(items) != 0 {
		t.Errorf("page 3 = %v, total %d", ids(items), total)
	}
}
