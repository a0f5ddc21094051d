package store

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"testing"

	"github.com/quincelabs/quince/internal/annotation"
)

// checkBidirectional verifies the two tag mappings agree: every annotation's
// tag set is mirrored by membership in exactly those tag buckets, and every
// bucket member's tag set contains the bucket's tag.
func checkBidirectional(t *testing.T, st *Store) {
	t.Helper()
	ctx := context.Background()

	anns, err := st.All(ctx)
	if err != nil {
		t.Fatalf("All() failed: %v", err)
	}
	for _, a := range anns {
		tags, err := st.Tags(a.ID)
		if err != nil {
			t.Fatalf("Tags(%s) failed: %v", a.ID, err)
		}
		buckets := tags
		if len(buckets) == 0 {
			buckets = []string{annotation.EmptyTag}
		}
		for _, tag := range buckets {
			ids, err := st.TaggedIDs(tag)
			if err != nil {
				t.Fatalf("TaggedIDs(%s) failed: %v", tag, err)
			}
			found := false
			for _, id := range ids {
				if id == a.ID {
					found = true
				}
			}
			if !found {
				t.Errorf("annotation %s lists tag %q but is missing from its bucket %v", a.ID, tag, ids)
			}
		}
	}
}

func TestUpsert_IndexesNewAnnotation(t *testing.T) {
	st := testStore(t)

	if err := st.Upsert(testAnnotation("a1", "x", "y")); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	for _, tag := range []string{"x", "y"} {
		ids, err := st.TaggedIDs(tag)
		if err != nil {
			t.Fatalf("TaggedIDs(%s) failed: %v", tag, err)
		}
		if !reflect.DeepEqual(ids, []string{"a1"}) {
			t.Errorf("TaggedIDs(%s) = %v, want [a1]", tag, ids)
		}
	}
	tags, err := st.Tags("a1")
	if err != nil {
		t.Fatalf("Tags() failed: %v", err)
	}
	if !reflect.DeepEqual(tags, []string{"x", "y"}) {
		t.Errorf("Tags(a1) = %v, want [x y]", tags)
	}
	checkBidirectional(t, st)
}

func TestUpsert_ReplacesStaleTagMemberships(t *testing.T) {
	st := testStore(t)

	if err := st.Upsert(testAnnotation("a1", "x", "y")); err != nil {
		t.Fatalf("first Upsert() failed: %v", err)
	}
	if err := st.Upsert(testAnnotation("a1", "y", "z")); err != nil {
		t.Fatalf("second Upsert() failed: %v", err)
	}

	// The dropped tag's bucket is gone entirely, not just emptied.
	if _, err := st.TaggedIDs("x"); !errors.Is(err, ErrTagNotFound) {
		t.Errorf("TaggedIDs(x) error = %v, want ErrTagNotFound", err)
	}
	for _, tag := range []string{"y", "z"} {
		ids, err := st.TaggedIDs(tag)
		if err != nil {
			t.Fatalf("TaggedIDs(%s) failed: %v", tag, err)
		}
		if !reflect.DeepEqual(ids, []string{"a1"}) {
			t.Errorf("TaggedIDs(%s) = %v, want [a1]", tag, ids)
		}
	}
	checkBidirectional(t, st)
}

func TestUpsert_Idempotent(t *testing.T) {
	st := testStore(t)

	a := testAnnotation("a1", "x")
	for i := 0; i < 3; i++ {
		if err := st.Upsert(a); err != nil {
			t.Fatalf("Upsert() round %d failed: %v", i, err)
		}
	}

	ids, err := st.TaggedIDs("x")
	if err != nil {
		t.Fatalf("TaggedIDs() failed: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"a1"}) {
		t.Errorf("TaggedIDs(x) after repeats = %v, want [a1]", ids)
	}
	if n, _ := st.Count(); n != 1 {
		t.Errorf("Count() after repeats = %d, want 1", n)
	}
}

func TestUpsert_SharedTagAccumulatesMembers(t *testing.T) {
	st := testStore(t)

	for _, id := range []string{"a1", "a2", "a3"} {
		if err := st.Upsert(testAnnotation(id, "shared")); err != nil {
			t.Fatalf("Upsert(%s) failed: %v", id, err)
		}
	}

	ids, err := st.TaggedIDs("shared")
	if err != nil {
		t.Fatalf("TaggedIDs() failed: %v", err)
	}
	sort.Strings(ids)
	if !reflect.DeepEqual(ids, []string{"a1", "a2", "a3"}) {
		t.Errorf("TaggedIDs(shared) = %v", ids)
	}
}

func TestUpsert_UntaggedUsesEmptyBucket(t *testing.T) {
	st := testStore(t)

	if err := st.Upsert(testAnnotation("bare")); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	// Callers see an empty set, never the sentinel literal.
	tags, err := st.Tags("bare")
	if err != nil {
		t.Fatalf("Tags() failed: %v", err)
	}
	if len(tags) != 0 {
		t.Errorf("Tags(bare) = %v, want empty", tags)
	}

	// The untagged bucket is reachable by the sentinel and by folding.
	for _, lookup := range []string{annotation.EmptyTag, "", "   "} {
		ids, err := st.TaggedIDs(lookup)
		if err != nil {
			t.Fatalf("TaggedIDs(%q) failed: %v", lookup, err)
		}
		if !reflect.DeepEqual(ids, []string{"bare"}) {
			t.Errorf("TaggedIDs(%q) = %v, want [bare]", lookup, ids)
		}
	}
}

func TestUpsert_TaggingRemovesFromEmptyBucket(t *testing.T) {
	st := testStore(t)

	if err := st.Upsert(testAnnotation("a1")); err != nil {
		t.Fatalf("untagged Upsert() failed: %v", err)
	}
	if err := st.Upsert(testAnnotation("a1", "x")); err != nil {
		t.Fatalf("tagged Upsert() failed: %v", err)
	}

	if _, err := st.TaggedIDs(annotation.EmptyTag); !errors.Is(err, ErrTagNotFound) {
		t.Errorf("TaggedIDs(empty sentinel) error = %v, want ErrTagNotFound", err)
	}
	checkBidirectional(t, st)
}

func TestUpsert_NormalizesTags(t *testing.T) {
	st := testStore(t)

	if err := st.Upsert(testAnnotation("a1", " x ", "x", "", "y")); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	tags, err := st.Tags("a1")
	if err != nil {
		t.Fatalf("Tags() failed: %v", err)
	}
	if !reflect.DeepEqual(tags, []string{"x", "y"}) {
		t.Errorf("Tags(a1) = %v, want [x y]", tags)
	}
}

func TestUpsert_RejectsReservedTags(t *testing.T) {
	st := testStore(t)

	tests := []struct {
		name string
		tag  string
	}{
		{"delimiter", "a;b"},
		{"empty sentinel", annotation.EmptyTag},
		{"ignore sentinel", annotation.IgnoreTag},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := st.Upsert(testAnnotation("a1", tt.tag))
			if !errors.Is(err, ErrCorruptIndex) {
				t.Errorf("Upsert() error = %v, want ErrCorruptIndex", err)
			}
			// Nothing may be applied on rejection.
			if _, err := st.Get("a1"); !errors.Is(err, ErrAnnotationNotFound) {
				t.Errorf("rejected upsert left a record behind: %v", err)
			}
		})
	}
}

func TestDelete_RemovesAllTraces(t *testing.T) {
	st := testStore(t)

	if err := st.Upsert(testAnnotation("a1", "x", "shared")); err != nil {
		t.Fatalf("Upsert(a1) failed: %v", err)
	}
	if err := st.Upsert(testAnnotation("a2", "shared")); err != nil {
		t.Fatalf("Upsert(a2) failed: %v", err)
	}

	removed, err := st.Delete("a1")
	if err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if removed.ID != "a1" {
		t.Errorf("Delete() returned %q, want a1", removed.ID)
	}

	if _, err := st.Get("a1"); !errors.Is(err, ErrAnnotationNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrAnnotationNotFound", err)
	}
	if _, err := st.Tags("a1"); !errors.Is(err, ErrAnnotationNotFound) {
		t.Errorf("Tags() after delete error = %v, want ErrAnnotationNotFound", err)
	}
	// The sole-member bucket vanishes, the shared one shrinks.
	if _, err := st.TaggedIDs("x"); !errors.Is(err, ErrTagNotFound) {
		t.Errorf("TaggedIDs(x) error = %v, want ErrTagNotFound", err)
	}
	ids, err := st.TaggedIDs("shared")
	if err != nil {
		t.Fatalf("TaggedIDs(shared) failed: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"a2"}) {
		t.Errorf("TaggedIDs(shared) = %v, want [a2]", ids)
	}
	checkBidirectional(t, st)
}

func TestDelete_NotFound(t *testing.T) {
	st := testStore(t)
	if _, err := st.Delete("ghost"); !errors.Is(err, ErrAnnotationNotFound) {
		t.Errorf("Delete() error = %v, want ErrAnnotationNotFound", err)
	}
}

func TestDeleteBatch_MatchesRepeatedDelete(t *testing.T) {
	ctx := context.Background()

	seed := func(st *Store) {
		for _, a := range []*annotation.Annotation{
			testAnnotation("a1", "x", "shared"),
			testAnnotation("a2", "shared", "y"),
			testAnnotation("a3", "y"),
			testAnnotation("a4"),
		} {
			if err := st.Upsert(a); err != nil {
				t.Fatalf("Upsert(%s) failed: %v", a.ID, err)
			}
		}
	}

	batch := testStore(t)
	seed(batch)
	removed, err := batch.DeleteBatch(ctx, []string{"a1", "a2", "a4"})
	if err != nil {
		t.Fatalf("DeleteBatch() failed: %v", err)
	}
	if len(removed) != 3 {
		t.Fatalf("DeleteBatch() removed %d, want 3", len(removed))
	}

	single := testStore(t)
	seed(single)
	for _, id := range []string{"a1", "a2", "a4"} {
		if _, err := single.Delete(id); err != nil {
			t.Fatalf("Delete(%s) failed: %v", id, err)
		}
	}

	// Same surviving records and the same visible tag state either way.
	for _, st := range []*Store{batch, single} {
		anns, err := st.All(ctx)
		if err != nil {
			t.Fatalf("All() failed: %v", err)
		}
		if len(anns) != 1 || anns[0].ID != "a3" {
			t.Errorf("survivors = %v, want [a3]", anns)
		}
		if _, err := st.TaggedIDs("shared"); !errors.Is(err, ErrTagNotFound) {
			t.Errorf("TaggedIDs(shared) error = %v, want ErrTagNotFound", err)
		}
		ids, err := st.TaggedIDs("y")
		if err != nil {
			t.Fatalf("TaggedIDs(y) failed: %v", err)
		}
		if !reflect.DeepEqual(ids, []string{"a3"}) {
			t.Errorf("TaggedIDs(y) = %v, want [a3]", ids)
		}
		checkBidirectional(t, st)
	}
}

func TestDeleteBatch_MissingIDAbortsWholeBatch(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	if err := st.Upsert(testAnnotation("a1", "x")); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	if _, err := st.DeleteBatch(ctx, []string{"a1", "ghost"}); !errors.Is(err, ErrAnnotationNotFound) {
		t.Fatalf("DeleteBatch() error = %v, want ErrAnnotationNotFound", err)
	}

	// The present ID must survive: the batch applies completely or not at all.
	if _, err := st.Get("a1"); err != nil {
		t.Errorf("Get(a1) after aborted batch failed: %v", err)
	}
	ids, err := st.TaggedIDs("x")
	if err != nil {
		t.Fatalf("TaggedIDs(x) after aborted batch failed: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"a1"}) {
		t.Errorf("TaggedIDs(x) = %v, want [a1]", ids)
	}
}

func TestTaggedIDs_UnknownTag(t *testing.T) {
	st := testStore(t)
	if _, err := st.TaggedIDs("never-seen"); !errors.Is(err, ErrTagNotFound) {
		t.Errorf("TaggedIDs() error = %v, want ErrTagNotFound", err)
	}
}

func TestCursor_Lifecycle(t *testing.T) {
	st := testStore(t)

	cursor, err := st.Cursor("")
	if err != nil {
		t.Fatalf("Cursor() failed: %v", err)
	}
	if cursor != MinCursor {
		t.Errorf("fresh Cursor() = %q, want MinCursor", cursor)
	}

	if err := st.SetCursor("", "2024-03-01T10:00:00Z"); err != nil {
		t.Fatalf("SetCursor() failed: %v", err)
	}
	if err := st.SetCursor("group9", "2024-06-01T10:00:00Z"); err != nil {
		t.Fatalf("scoped SetCursor() failed: %v", err)
	}

	// Scopes are independent watermarks.
	if cursor, _ := st.Cursor(""); cursor != "2024-03-01T10:00:00Z" {
		t.Errorf("Cursor() = %q", cursor)
	}
	if cursor, _ := st.Cursor("group9"); cursor != "2024-06-01T10:00:00Z" {
		t.Errorf("Cursor(group9) = %q", cursor)
	}
	if cursor, _ := st.Cursor("other"); cursor != MinCursor {
		t.Errorf("Cursor(other) = %q, want MinCursor", cursor)
	}

	if err := st.ResetCursor("group9"); err != nil {
		t.Fatalf("ResetCursor() failed: %v", err)
	}
	if cursor, _ := st.Cursor("group9"); cursor != MinCursor {
		t.Errorf("Cursor(group9) after reset = %q, want MinCursor", cursor)
	}
	if cursor, _ := st.Cursor(""); cursor != "2024-03-01T10:00:00Z" {
		t.Errorf("Cursor() after scoped reset = %q, reset leaked across scopes", cursor)
	}
}
