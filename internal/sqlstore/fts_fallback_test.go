//go:build !sqlite_fts5

package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/stash/internal/models"
	"github.com/starford/stash/internal/query"
)

func TestFallbackSearchRanksTitleAboveContent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	body := resource("body", "u1", base.Add(time.Hour), models.Note{Content: "some kafka notes"})
	body.Title = "Streaming"
	title := resource("title", "u1", base, models.Note{Content: "brokers"})
	title.Title = "Kafka basics"
	both := resource("both", "u1", base.Add(-time.Hour), models.Note{Content: "kafka partitions"})
	both.Title = "Kafka deep dive"
	for _, r := range []*models.Resource{body, title, both} {
		if err := db.InsertResource(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	items, _ := mustFind(t, db, "u1", query.Filter{Search: "KAFKA"})
	// Relevance wins over recency.
	if diff := cmp.Diff([]string{"both", "title", "body"}, ids(items)); diff != "" {
		t.Errorf("ranking mismatch (-want +got):\n%s", diff)
	}
}

func TestFallbackSearchMatchesTagValues(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	tagged := resource("tagged", "u1", base, models.Note{Content: "plain"})
	tagged.Tags = []string{"golang", "infra"}
	if err := db.InsertResource(ctx, tagged); err != nil {
		t.Fatal(err)
	}

	for _, term := range []string{`"`, ",", "[", `"golang","infra"`} {
		if items, total := mustFind(t, db, "u1", query.Filter{Search: term}); total != 0 {
			t.Errorf("search %q matched %v", term, ids(items))
		}
	}
	items, total := mustFind(t, db, "u1", query.Filter{Search: "lang"})
	if total != 1 || len(items) != 1 || items[0].ID != "tagged" {
		t.Errorf("search lang = %v (total %d), want [tagged]", ids(items), total)
	}
}
