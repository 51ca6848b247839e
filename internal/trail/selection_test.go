package trail_test

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/text/language"

	"trail-go/internal/testutil"
	"trail-go/internal/trail"
)

type selectionFixture struct {
	repo     *trail.Repository
	catalog  *trail.Catalog
	renderer *testutil.RecordingRenderer
	sel      *trail.Selection
	a, b, c  string
}

func newSelectionFixture(t *testing.T, palette ...trail.Style) *selectionFixture {
	t.Helper()
	repo, _ := newRepo(t, false)
	f := &selectionFixture{repo: repo}
	f.a = mustCreate(t, repo, "A", trail.Path{westminster, bridge})
	f.b = mustCreate(t, repo, "B", trail.Path{eye, bridge})
	f.c = mustCreate(t, repo, "C", trail.Path{bridge, eye})

	f.catalog = trail.NewCatalog(repo, language.Und, nil)
	if err := f.catalog.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	f.renderer = testutil.NewRecordingRenderer()
	f.sel = trail.NewSelection(f.catalog, f.renderer, palette, nil)
	return f
}

func TestSelection_CombinationStylesAndRecenter(t *testing.T) {
	f := newSelectionFixture(t)

	if err := f.sel.Toggle(f.a); err != nil {
		t.Fatalf("Toggle(A) error = %v", err)
	}
	if err := f.sel.Toggle(f.b); err != nil {
		t.Fatalf("Toggle(B) error = %v", err)
	}

	if f.sel.Mode() != trail.MultiSelection {
		t.Errorf("Mode() = %v, want multi", f.sel.Mode())
	}
	overlays := f.renderer.LastDraw()
	if len(overlays) != 2 {
		t.Fatalf("overlays = %d, want 2", len(overlays))
	}
	if overlays[0].TrailID != f.a || overlays[0].Style != trail.DefaultPalette[0] {
		t.Errorf("overlay 0 = %+v, want A in %s", overlays[0], trail.DefaultPalette[0])
	}
	if overlays[1].TrailID != f.b || overlays[1].Style != trail.DefaultPalette[1] {
		t.Errorf("overlay 1 = %+v, want B in %s", overlays[1], trail.DefaultPalette[1])
	}
	if overlays[0].Start != westminster || overlays[0].Stop != bridge {
		t.Errorf("overlay 0 endpoints = %v -> %v", overlays[0].Start, overlays[0].Stop)
	}
	if center, _ := f.renderer.LastCenter(); center != westminster {
		t.Errorf("recenter = %v, want A.start %v", center, westminster)
	}
}

func TestSelection_PaletteCycles(t *testing.T) {
	f := newSelectionFixture(t, "red", "blue")
	for _, id := range []string{f.a, f.b, f.c} {
		if err := f.sel.Toggle(id); err != nil {
			t.Fatalf("Toggle() error = %v", err)
		}
	}
	overlays := f.renderer.LastDraw()
	want := []trail.Style{"red", "blue", "red"}
	for i, o := range overlays {
		if o.Style != want[i] {
			t.Errorf("overlay %d style = %s, want %s", i, o.Style, want[i])
		}
	}
}

func TestSelection_ToggleRemoves(t *testing.T) {
	f := newSelectionFixture(t)
	f.sel.Toggle(f.a)
	f.sel.Toggle(f.b)
	f.sel.Toggle(f.a)

	sel := f.sel.Selected()
	if len(sel) != 1 || sel[0] != f.b {
		t.Fatalf("Selected() = %v, want [B]", sel)
	}
	overlays := f.renderer.LastDraw()
	if len(overlays) != 1 || overlays[0].Style != trail.DefaultPalette[0] {
		t.Errorf("B should take palette[0] once it is first: %+v", overlays)
	}
	if center, _ := f.renderer.LastCenter(); center != eye {
		t.Errorf("recenter = %v, want B.start", center)
	}
}

func TestSelection_SingleReplaces(t *testing.T) {
	f := newSelectionFixture(t)
	f.sel.Toggle(f.a)
	f.sel.Toggle(f.b)

	if err := f.sel.Select(f.c); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if f.sel.Mode() != trail.SingleSelection {
		t.Errorf("Mode() = %v, want single", f.sel.Mode())
	}
	if sel := f.sel.Selected(); len(sel) != 1 || sel[0] != f.c {
		t.Errorf("Selected() = %v, want [C]", sel)
	}
	if center, _ := f.renderer.LastCenter(); center != bridge {
		t.Errorf("recenter = %v, want C.start", center)
	}

	// Toggling from single mode starts a fresh combination.
	f.sel.Toggle(f.a)
	if sel := f.sel.Selected(); len(sel) != 1 || sel[0] != f.a {
		t.Errorf("Selected() = %v, want [A]", sel)
	}
}

func TestSelection_EmptyFallsBack(t *testing.T) {
	f := newSelectionFixture(t)
	home := trail.Position{Latitude: 48.8584, Longitude: 2.2945}
	f.sel.SetFallback(home)

	f.sel.Select(f.a)
	f.sel.Clear()

	if center, _ := f.renderer.LastCenter(); center != home {
		t.Errorf("recenter = %v, want fallback %v", center, home)
	}
	if len(f.renderer.LastDraw()) != 0 {
		t.Error("overlays drawn for empty selection")
	}
}

func TestSelection_UnknownTrail(t *testing.T) {
	f := newSelectionFixture(t)
	if err := f.sel.Select("nope"); !errors.Is(err, trail.ErrTrailGone) {
		t.Errorf("Select() error = %v, want ErrTrailGone", err)
	}
	if err := f.sel.Toggle("nope"); !errors.Is(err, trail.ErrTrailGone) {
		t.Errorf("Toggle() error = %v, want ErrTrailGone", err)
	}
}

func TestSelection_FollowDropsRemovedTrails(t *testing.T) {
	f := newSelectionFixture(t)
	unfollow := f.sel.Follow()
	defer unfollow()

	f.sel.Toggle(f.a)
	f.sel.Toggle(f.b)
	if err := f.catalog.Remove(context.Background(), f.a); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	if sel := f.sel.Selected(); len(sel) != 1 || sel[0] != f.b {
		t.Errorf("Selected() = %v, want [B]", sel)
	}
	overlays := f.renderer.LastDraw()
	if len(overlays) != 1 || overlays[0].TrailID != f.b {
		t.Errorf("overlays = %+v, want only B", overlays)
	}
}
