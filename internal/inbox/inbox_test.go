package inbox

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/stash/internal/folders"
	"github.com/starford/stash/internal/models"
	"github.com/starford/stash/internal/parser"
	"github.com/starford/stash/internal/resources"
	"github.com/starford/stash/internal/testutil"
)

var quietLogger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

type collected struct {
	mu    sync.Mutex
	items []*models.Resource
}

func (c *collected) add(r *models.Resource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, r)
}

func (c *collected) titles() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.items))
	for i, r := range c.items {
		out[i] = r.Title
	}
	return out
}

func newImporter(t *testing.T, opts ...Option) (*Importer, *collected, string) {
	t.Helper()
	db := testutil.TestDB(t)
	fs := folders.NewService(db, quietLogger)
	rs := resources.NewService(db, fs, quietLogger)
	dir := filepath.Join(t.TempDir(), "inbox")
	got := &collected{}
	opts = append([]Option{WithOnImport(got.add)}, opts...)
	im, err := New(dir, "u1", rs, quietLogger, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return im, got, dir
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestSweepImportsAndRemoves(t *testing.T) {
	im, got, dir := newImporter(t)
	writeFile(t, dir, "standup.md", "---\ntags: [work]\n---\n# Standup\nShip the thing #daily\n")
	writeFile(t, dir, "link.md", "---\ntitle: Go docs\nurl: https://go.dev/doc\n---\nOfficial docs.\n")
	writeFile(t, dir, "ignored.txt", "not markdown")

	res, err := im.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(SweepResult{Imported: 2}, res); diff != "" {
		t.Errorf("result (-want +got):\n%s", diff)
	}
	for _, name := range []string{"standup.md", "link.md"} {
		if exists(filepath.Join(dir, name)) {
			t.Errorf("%s still in inbox", name)
		}
	}
	if !exists(filepath.Join(dir, "ignored.txt")) {
		t.Error("non-markdown file was touched")
	}

	byTitle := map[string]*models.Resource{}
	for _, r := range got.items {
		byTitle[r.Title] = r
	}
	note := byTitle["Standup"]
	if note == nil || note.Type() != models.TypeNote || note.UserID != "u1" {
		t.Fatalf("note = %+v", note)
	}
	if diff := cmp.Diff([]string{"work", "daily"}, note.Tags); diff != "" {
		t.Errorf("tags (-want +got):\n%s", diff)
	}
	bm := byTitle["Go docs"]
	if bm == nil || bm.Type() != models.TypeBookmark {
		t.Fatalf("bookmark = %+v", bm)
	}
	want := models.Bookmark{URL: "https://go.dev/doc", Description: "Official docs."}
	if diff := cmp.Diff(models.Payload(want), bm.Payload); diff != "" {
		t.Errorf("payload (-want +got):\n%s", diff)
	}
}

func TestSweepRejectsInvalid(t *testing.T) {
	im, got, dir := newImporter(t)
	bad := "---\ntype: bookmark\n---\nno url here\n"

	writeFile(t, dir, "bad.md", bad)
	res, _ := im.Sweep(context.Background())
	if res.Rejected != 1 || len(got.items) != 0 {
		t.Fatalf("result = %+v, imported %v", res, got.titles())
	}
	if !exists(filepath.Join(dir, RejectedDir, "bad.md")) {
		t.Error("bad.md not moved to rejected/")
	}

	// A second rejection with the same name keeps both files.
	writeFile(t, dir, "bad.md", bad)
	if _, err := im.Sweep(context.Background()); err != nil {
		t.Fatal(err)
	}
	entries, _ := os.ReadDir(filepath.Join(dir, RejectedDir))
	if len(entries) != 2 {
		t.Errorf("rejected/ holds %d files, want 2", len(entries))
	}
	if exists(filepath.Join(dir, "bad.md")) {
		t.Error("bad.md left in inbox")
	}
}

type failingCreator struct{}

func (failingCreator) Create(context.Context, string, resources.CreateInput) (*models.Resource, error) {
	return nil, errors.New("database is locked")
}

func TestSweepKeepsFileOnTransientFailure(t *testing.T) {
	dir := t.TempDir()
	im, err := New(dir, "u1", failingCreator{}, quietLogger)
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, dir, "n.md", "hello")
	res, err := im.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed != 1 || !exists(filepath.Join(dir, "n.md")) {
		t.Errorf("result = %+v, file kept = %v", res, exists(filepath.Join(dir, "n.md")))
	}
}

func TestToInput(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		check   func(t *testing.T, in resources.CreateInput)
	}{
		{
			name:    "title from file name",
			file:    "grocery list.md",
			content: "milk\neggs",
			check: func(t *testing.T, in resources.CreateInput) {
				if in.Title != "grocery list" || in.Type != models.TypeNote || in.Content != "milk\neggs" {
					t.Errorf("input = %+v", in)
				}
			},
		},
		{
			name:    "snippet from code block",
			file:    "fib.md",
			content: "---\ntype: snippet\ntitle: fib\n---\n```python\ndef fib(n): ...\n```\n",
			check: func(t *testing.T, in resources.CreateInput) {
				if in.Content != "def fib(n): ..." || in.CodeLanguage != "python" {
					t.Errorf("input = %+v", in)
				}
			},
		},
		{
			name:    "prompt fields",
			file:    "p.md",
			content: "---\ntype: Prompt\nplatform: claude\ncategory: writing\nfavorite: true\n---\nSummarise this.",
			check: func(t *testing.T, in resources.CreateInput) {
				if in.Type != models.TypePrompt || in.Platform != "claude" || in.Category != "writing" || !in.Favorite {
					t.Errorf("input = %+v", in)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := parser.Parse([]byte(tt.content))
			if err != nil {
				t.Fatal(err)
			}
			tt.check(t, ToInput(doc, tt.file))
		})
	}
}

func TestRunImportsNewFiles(t *testing.T) {
	im, got, dir := newImporter(t, WithDebounce(20*time.Millisecond))
	writeFile(t, dir, "early.md", "# Early\nbefore start")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- im.Run(ctx) }()

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return len(got.titles()) == 1
	}, "initial sweep did not import early.md")

	writeFile(t, dir, "late.md", "# Late\nafter start")
	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return len(got.titles()) == 2
	}, "watcher did not import late.md")

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run: %v", err)
	}
	if diff := cmp.Diff([]string{"Early", "Late"}, got.titles()); diff != "" {
		t.Errorf("imported (-want +got):\n%s", diff)
	}
}
