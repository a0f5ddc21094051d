package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/quincelabs/quince/internal/annotation"
)

func TestMove_FilteredReassignment(t *testing.T) {
	st := testStore(t)
	t1 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	inGroup := func(id string, updated time.Time, tags ...string) annotation.Annotation {
		a := remoteAnnotation(id, updated, tags...)
		a.Group = "inbox"
		return a
	}
	src := newFakeSource(
		inGroup("m1", t1, "keep"),
		inGroup("m2", t1.Add(time.Hour)),
		inGroup("m3", t1.Add(2*time.Hour), "keep", annotation.IgnoreTag),
	)
	s := New(st, src, "", 200, quietLogger())

	keep := func(a *annotation.Annotation) bool { return a.HasTag("keep") }
	moved, err := s.Move(context.Background(), "inbox", "main", keep)
	if err != nil {
		t.Fatalf("Move() failed: %v", err)
	}
	if moved != 1 {
		t.Errorf("Move() = %d, want 1", moved)
	}

	// Only the matching, non-tombstoned annotation was pushed upstream.
	if got := src.moves["m1"]; got != "main" {
		t.Errorf("upstream group for m1 = %q, want %q", got, "main")
	}
	for _, id := range []string{"m2", "m3"} {
		if _, pushed := src.moves[id]; pushed {
			t.Errorf("%s was moved upstream, want untouched", id)
		}
	}

	// The moved annotation enters the mirror under the new group.
	a, err := st.Get("m1")
	if err != nil {
		t.Fatalf("Get(m1) failed: %v", err)
	}
	if a.Group != "main" {
		t.Errorf("mirrored group = %q, want %q", a.Group, "main")
	}
	if n, _ := st.Count(); n != 1 {
		t.Errorf("Count() = %d, want 1 (skipped annotations mirrored?)", n)
	}
}

func TestMove_NilKeepMovesWholeGroup(t *testing.T) {
	st := testStore(t)
	t1 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	a1 := remoteAnnotation("m1", t1)
	a1.Group = "inbox"
	a2 := remoteAnnotation("m2", t1.Add(time.Hour))
	a2.Group = "inbox"
	other := remoteAnnotation("x1", t1)
	other.Group = "elsewhere"
	src := newFakeSource(a1, a2, other)

	// Page size 1 forces the group fetch through multiple pages.
	s := New(st, src, "", 1, quietLogger())

	moved, err := s.Move(context.Background(), "inbox", "main", nil)
	if err != nil {
		t.Fatalf("Move() failed: %v", err)
	}
	if moved != 2 {
		t.Errorf("Move() = %d, want 2", moved)
	}
	if _, pushed := src.moves["x1"]; pushed {
		t.Error("annotation outside the source group was moved")
	}
}
