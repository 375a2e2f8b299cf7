package folders

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/stash/internal/apperr"
	"github.com/starford/stash/internal/models"
	"github.com/starford/stash/internal/sqlstore"
	"github.com/starford/stash/internal/testutil"
)

func newService(t *testing.T) (*Service, *sqlstore.DB) {
	t.Helper()
	db := testutil.TestDB(t)
	return NewService(db, nil, WithClock(testutil.Clock())), db
}

func mustCreate(t *testing.T, s *Service, user, name string, parent *models.Folder) *models.Folder {
	t.Helper()
	in := Input{Name: name}
	if parent != nil {
		in.ParentID = &parent.ID
	}
	f, err := s.Create(context.Background(), user, in)
	if err != nil {
		t.Fatalf("Create %q: %v", name, err)
	}
	return f
}

func parentOf(t *testing.T, s *Service, user, id string) *string {
	t.Helper()
	f, err := s.Get(context.Background(), user, id)
	if err != nil {
		t.Fatalf("Get %s: %v", id, err)
	}
	return f.ParentID
}

func TestCreate(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	work := mustCreate(t, s, "u1", "  Work ", nil)
	if work.Name != "Work" || work.ParentID != nil || work.SortOrder != 0 {
		t.Errorf("work = %+v", work)
	}
	home := mustCreate(t, s, "u1", "Home", nil)
	if home.SortOrder != 1 {
		t.Errorf("second root sortOrder = %d, want 1", home.SortOrder)
	}
	proj := mustCreate(t, s, "u1", "Projects", work)
	if proj.ParentID == nil || *proj.ParentID != work.ID || proj.SortOrder != 0 {
		t.Errorf("projects = %+v", proj)
	}

	if _, err := s.Create(ctx, "u1", Input{Name: "Work"}); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("duplicate root err = %v, want conflict", err)
	}
	if _, err := s.Create(ctx, "u1", Input{Name: "Work", ParentID: &work.ID}); err != nil {
		t.Errorf("same name under other parent: %v", err)
	}
	if _, err := s.Create(ctx, "u2", Input{Name: "Work"}); err != nil {
		t.Errorf("same name for other user: %v", err)
	}
}

func TestCreateRejectsBadInput(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	work := mustCreate(t, s, "u1", "Work", nil)
	missing := "nope"

	tests := []struct {
		name string
		user string
		in   Input
		want error
	}{
		{"blank name", "u1", Input{Name: "   "}, apperr.ErrValidation},
		{"long name", "u1", Input{Name: strings.Repeat("x", models.MaxFolderNameLength+1)}, apperr.ErrValidation},
		{"long color", "u1", Input{Name: "c", Color: strings.Repeat("#", 40)}, apperr.ErrValidation},
		{"missing parent", "u1", Input{Name: "c", ParentID: &missing}, apperr.ErrNotFound},
		{"foreign parent", "u2", Input{Name: "c", ParentID: &work.ID}, apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Create(ctx, tt.user, tt.in); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	var ve *apperr.ValidationError
	_, err := s.Create(ctx, "u1", Input{Name: ""})
	if !errors.As(err, &ve) || ve.Fields["name"] == "" {
		t.Errorf("blank name err = %#v, want field error on name", err)
	}
}

func TestCreateEmptyParentMeansRoot(t *testing.T) {
	s, _ := newService(t)
	empty := ""
	f, err := s.Create(context.Background(), "u1", Input{Name: "A", ParentID: &empty})
	if err != nil {
		t.Fatal(err)
	}
	if f.ParentID != nil {
		t.Errorf("ParentID = %q, want nil", *f.ParentID)
	}
}

func TestRename(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	a := mustCreate(t, s, "u1", "A", nil)
	mustCreate(t, s, "u1", "B", nil)

	if _, err := s.Rename(ctx, "u1", a.ID, "B"); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("rename onto sibling err = %v, want conflict", err)
	}
	if _, err := s.Rename(ctx, "u1", a.ID, "A"); err != nil {
		t.Errorf("rename to same name: %v", err)
	}
	got, err := s.Rename(ctx, "u1", a.ID, "Archive")
	if err != nil || got.Name != "Archive" {
		t.Fatalf("Rename = %+v, %v", got, err)
	}
	if _, err := s.Rename(ctx, "u2", a.ID, "Mine"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("foreign rename err = %v, want not found", err)
	}
}

func TestMoveIntoOwnChildIsRejected(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	work := mustCreate(t, s, "u1", "Work", nil)
	projects := mustCreate(t, s, "u1", "Projects", work)

	_, err := s.Move(ctx, "u1", work.ID, &projects.ID)
	if !errors.Is(err, apperr.ErrInvalidOperation) {
		t.Fatalf("Move err = %v, want invalid operation", err)
	}
	if p := parentOf(t, s, "u1", work.ID); p != nil {
		t.Errorf("Work parent = %q, want root", *p)
	}
	if p := parentOf(t, s, "u1", projects.ID); p == nil || *p != work.ID {
		t.Errorf("Projects parent changed: %v", p)
	}
}

func TestMoveIntoAnyDescendantOrSelfIsRejected(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	a := mustCreate(t, s, "u1", "A", nil)
	b := mustCreate(t, s, "u1", "B", a)
	c := mustCreate(t, s, "u1", "C", b)
	d := mustCreate(t, s, "u1", "D", a)
	e := mustCreate(t, s, "u1", "E", c)

	seq, err := s.Descendants(ctx, "u1", a.ID)
	if err != nil {
		t.Fatal(err)
	}
	targets := []string{a.ID}
	for id := range seq {
		targets = append(targets, id)
	}
	if len(targets) != 5 {
		t.Fatalf("descendants of A = %d, want 4", len(targets)-1)
	}
	for _, target := range targets {
		if _, err := s.Move(ctx, "u1", a.ID, &target); !errors.Is(err, apperr.ErrInvalidOperation) {
			t.Errorf("Move(A, %s) err = %v, want invalid operation", target, err)
		}
	}
	if p := parentOf(t, s, "u1", a.ID); p != nil {
		t.Errorf("A was moved under %s", *p)
	}

	// Moving a leaf under an unrelated branch is fine.
	if _, err := s.Move(ctx, "u1", e.ID, &d.ID); err != nil {
		t.Errorf("Move(E, D): %v", err)
	}
}

func TestMove(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	a := mustCreate(t, s, "u1", "A", nil)
	b := mustCreate(t, s, "u1", "B", nil)
	x := mustCreate(t, s, "u1", "X", a)
	mustCreate(t, s, "u1", "Y", b)
	y2 := mustCreate(t, s, "u1", "Y", nil)
	other := mustCreate(t, s, "u2", "Other", nil)

	got, err := s.Move(ctx, "u1", x.ID, &b.ID)
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if got.ParentID == nil || *got.ParentID != b.ID || got.SortOrder != 1 {
		t.Errorf("moved = %+v", got)
	}

	if _, err := s.Move(ctx, "u1", x.ID, nil); err != nil {
		t.Fatalf("Move to root: %v", err)
	}
	if p := parentOf(t, s, "u1", x.ID); p != nil {
		t.Errorf("parent = %q, want root", *p)
	}

	if _, err := s.Move(ctx, "u1", y2.ID, &b.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("name clash err = %v, want conflict", err)
	}
	if _, err := s.Move(ctx, "u1", x.ID, &other.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("foreign parent err = %v, want not found", err)
	}
	if _, err := s.Move(ctx, "u2", x.ID, nil); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("foreign folder err = %v, want not found", err)
	}
}

func TestDeleteNotEmptyThenForce(t *testing.T) {
	for _, nested := range []bool{false, true} {
		name := "root"
		if nested {
			name = "nested"
		}
		t.Run(name, func(t *testing.T) {
			s, db := newService(t)
			ctx := context.Background()
			clock := testutil.Clock()

			var top *models.Folder
			if nested {
				top = mustCreate(t, s, "u1", "Top", nil)
			}
			a := mustCreate(t, s, "u1", "A", top)
			b := mustCreate(t, s, "u1", "B", a)
			testutil.InsertNote(t, db, "u1", "r1", "one", &a.ID, clock())
			testutil.InsertNote(t, db, "u1", "r2", "two", &a.ID, clock())

			_, err := s.Delete(ctx, "u1", a.ID, false)
			if !errors.Is(err, apperr.ErrNotEmpty) {
				t.Fatalf("Delete(force=false) err = %v, want not empty", err)
			}
			if _, err := s.Get(ctx, "u1", a.ID); err != nil {
				t.Fatalf("A gone after refused delete: %v", err)
			}

			res, err := s.Delete(ctx, "u1", a.ID, true)
			if err != nil {
				t.Fatalf("Delete(force=true): %v", err)
			}
			if res.MovedResources != 2 || res.MovedFolders != 1 {
				t.Errorf("result = %+v", res)
			}

			var want *string
			if top != nil {
				want = &top.ID
			}
			if diff := cmp.Diff(want, parentOf(t, s, "u1", b.ID)); diff != "" {
				t.Errorf("B parent (-want +got):\n%s", diff)
			}
			for _, id := range []string{"r1", "r2"} {
				r, err := db.GetResource(ctx, "u1", id)
				if err != nil {
					t.Fatal(err)
				}
				if diff := cmp.Diff(want, r.FolderID); diff != "" {
					t.Errorf("%s folder (-want +got):\n%s", id, diff)
				}
			}
			if _, err := s.Get(ctx, "u1", a.ID); !errors.Is(err, apperr.ErrNotFound) {
				t.Errorf("A still exists: %v", err)
			}
		})
	}
}

func TestDeleteEmpty(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	a := mustCreate(t, s, "u1", "A", nil)
	if _, err := s.Delete(ctx, "u2", a.ID, false); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("foreign delete err = %v, want not found", err)
	}
	if _, err := s.Delete(ctx, "u1", a.ID, false); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Delete(ctx, "u1", a.ID, false); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v, want not found", err)
	}
}

func TestForceDeleteNameClashRollsBack(t *testing.T) {
	s, db := newService(t)
	ctx := context.Background()
	a := mustCreate(t, s, "u1", "A", nil)
	mustCreate(t, s, "u1", "Notes", nil)
	inner := mustCreate(t, s, "u1", "Notes", a)
	testutil.InsertNote(t, db, "u1", "r1", "one", &a.ID, testutil.Clock()())

	if _, err := s.Delete(ctx, "u1", a.ID, true); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
	if p := parentOf(t, s, "u1", inner.ID); p == nil || *p != a.ID {
		t.Errorf("inner Notes moved despite rollback: %v", p)
	}
	r, _ := db.GetResource(ctx, "u1", "r1")
	if r.FolderID == nil || *r.FolderID != a.ID {
		t.Errorf("resource moved despite rollback: %v", r.FolderID)
	}
}

func TestForceDeleteChildNamedLikeParent(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	outer := mustCreate(t, s, "u1", "A", nil)
	inner := mustCreate(t, s, "u1", "A", outer)

	res, err := s.Delete(ctx, "u1", outer.ID, true)
	if err != nil {
		t.Fatalf("force delete: %v", err)
	}
	if res.MovedFolders != 1 || res.Folder.Name != "A" {
		t.Errorf("result = %+v", res)
	}
	if p := parentOf(t, s, "u1", inner.ID); p != nil {
		t.Errorf("inner A parent = %v, want root", *p)
	}
	list, err := s.List(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != inner.ID || list[0].Name != "A" {
		t.Errorf("folders = %+v", list)
	}
}

func TestUpdateMetadata(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	a := mustCreate(t, s, "u1", "A", nil)
	color, order := "#00ff00", 7
	got, err := s.Update(ctx, "u1", a.ID, Changes{Color: &color, SortOrder: &order})
	if err != nil {
		t.Fatal(err)
	}
	if got.Color != color || got.SortOrder != order || got.Name != "A" {
		t.Errorf("updated = %+v", got)
	}
	neg := -1
	if _, err := s.Update(ctx, "u1", a.ID, Changes{SortOrder: &neg}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("negative sortOrder err = %v, want validation", err)
	}
}

func TestPatchIsAtomic(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	a := mustCreate(t, s, "u1", "A", nil)
	b := mustCreate(t, s, "u1", "B", nil)
	mustCreate(t, s, "u1", "Notes", b)

	// The rename alone is fine but "Notes" is taken under B.
	name, color := "Notes", "#123456"
	_, err := s.Patch(ctx, "u1", a.ID, Patch{Name: &name, Move: true, ParentID: &b.ID, Changes: Changes{Color: &color}})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
	got, err := s.Get(ctx, "u1", a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "A" || got.ParentID != nil || got.Color != "" {
		t.Errorf("folder changed by failed patch: %+v", got)
	}

	// With a free name every part applies.
	name = "Archive"
	got, err = s.Patch(ctx, "u1", a.ID, Patch{Name: &name, Move: true, ParentID: &b.ID, Changes: Changes{Color: &color}})
	if err != nil {
		t.Fatalf("Patch: %v", err)
	}
	if got.Name != "Archive" || got.ParentID == nil || *got.ParentID != b.ID || got.Color != color {
		t.Errorf("patched = %+v", got)
	}
}

func TestListAndTree(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	work := mustCreate(t, s, "u1", "Work", nil)
	home := mustCreate(t, s, "u1", "Home", nil)
	mustCreate(t, s, "u1", "Projects", work)
	mustCreate(t, s, "u1", "Archive", work)
	mustCreate(t, s, "u1", "Garden", home)
	mustCreate(t, s, "u2", "Elsewhere", nil)

	list, err := s.List(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 5 {
		t.Fatalf("List len = %d, want 5", len(list))
	}
	if list[0].ParentID != nil || list[1].ParentID != nil {
		t.Errorf("roots not first: %+v", list[:2])
	}

	tree, err := s.ListTree(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Work[Projects Archive]", "Home[Garden]"}
	if diff := cmp.Diff(want, shape(tree)); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}
}

func shape(nodes []*models.FolderNode) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		s := n.Name
		if len(n.Children) > 0 {
			s += "[" + strings.Join(shape(n.Children), " ") + "]"
		}
		out = append(out, s)
	}
	return out
}

func TestBuildTreeOrphanBecomesRoot(t *testing.T) {
	ghost := "ghost"
	tree := BuildTree([]models.Folder{
		{ID: "a", Name: "A"},
		{ID: "b", Name: "B", ParentID: &ghost},
	})
	if diff := cmp.Diff([]string{"A", "B"}, shape(tree)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestDescendantsBreadthFirstAndLazy(t *testing.T) {
	children := map[string][]string{
		"root": {"a", "b"},
		"a":    {"a1", "a2"},
		"b":    {"b1"},
		"a1":   {"root"}, // corrupt back-edge must not loop
	}
	var got []string
	for id := range descendants(children, "root") {
		got = append(got, id)
	}
	if diff := cmp.Diff([]string{"a", "b", "a1", "a2", "b1"}, got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	got = got[:0]
	for id := range descendants(children, "root") {
		got = append(got, id)
		if len(got) == 2 {
			break
		}
	}
	if len(got) != 2 {
		t.Errorf("early stop yielded %d ids", len(got))
	}
}

func TestDescendantsOfForeignFolder(t *testing.T) {
	s, _ := newService(t)
	a := mustCreate(t, s, "u1", "A", nil)
	if _, err := s.Descendants(context.Background(), "u2", a.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestValidate(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	a := mustCreate(t, s, "u1", "A", nil)
	if err := s.Validate(ctx, "u1", a.ID); err != nil {
		t.Errorf("own folder: %v", err)
	}
	if err := s.Validate(ctx, "u2", a.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("foreign folder err = %v, want not found", err)
	}
}

func TestConcurrentCreateSameName(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok, clash int
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Create(ctx, "u1", Input{Name: "Inbox"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, apperr.ErrConflict):
				clash++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if ok != 1 || clash != n-1 {
		t.Errorf("ok=%d conflict=%d, want 1 and %d", ok, clash, n-1)
	}
}
