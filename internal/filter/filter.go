// Package filter evaluates declarative predicates over mirrored annotations.
//
// A Spec is constructed once per command invocation and never mutated. It is
// evaluated as a pure predicate over one annotation; Apply runs it over the
// whole mirror, using the tag index as a targeted fast path when the spec is
// tag-only.
package filter

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/quincelabs/quince/internal/annotation"
	"github.com/quincelabs/quince/internal/store"
)

// Spec is an immutable compound predicate.
//
// From and Before are mutually exclusive: only one side of the time range is
// meaningful per query, mirroring ascending-vs-descending pagination intent.
// The lower bound is inclusive, the upper bound exclusive.
//
// Not negates the conjunction of all other predicates as a whole: records
// that fail the composed predicate are kept. It is not applied per field.
type Spec struct {
	From           *time.Time
	Before         *time.Time
	IncludeUpdated bool

	URI   string
	Any   string
	Quote string
	Text  string

	Tags        []string
	AllTags     bool
	ExcludeTags []string

	OnlyPageNotes bool
	OnlyInContent bool

	Not bool
}

// Matches evaluates the spec against one annotation.
func (s *Spec) Matches(a *annotation.Annotation) bool {
	matched := s.conjunction(a)
	if s.Not {
		return !matched
	}
	return matched
}

// conjunction is the composed predicate before top-level negation.
func (s *Spec) conjunction(a *annotation.Annotation) bool {
	when := a.Created
	if s.IncludeUpdated {
		when = a.Updated
	}
	if s.From != nil && when.Before(*s.From) {
		return false
	}
	if s.Before != nil && !when.Before(*s.Before) {
		return false
	}

	if s.URI != "" && !strings.Contains(a.URI, s.URI) {
		return false
	}
	if s.Text != "" && !strings.Contains(a.Text, s.Text) {
		return false
	}
	if s.Quote != "" && !containsAny(a.Quotes(), s.Quote) {
		return false
	}
	if s.Any != "" && !s.matchesAny(a) {
		return false
	}

	if len(s.Tags) > 0 {
		if s.AllTags {
			for _, tag := range s.Tags {
				if !a.HasTag(tag) {
					return false
				}
			}
		} else if !hasAnyTag(a, s.Tags) {
			return false
		}
	}
	if hasAnyTag(a, s.ExcludeTags) {
		return false
	}

	if s.OnlyPageNotes && !a.IsPageNote() {
		return false
	}
	if s.OnlyInContent && a.IsPageNote() {
		return false
	}

	return true
}

// matchesAny checks the pattern against the uri, body text, joined tags, and
// extracted highlighted quotes.
func (s *Spec) matchesAny(a *annotation.Annotation) bool {
	if strings.Contains(a.URI, s.Any) || strings.Contains(a.Text, s.Any) {
		return true
	}
	if strings.Contains(strings.Join(a.Tags, ","), s.Any) {
		return true
	}
	return containsAny(a.Quotes(), s.Any)
}

// tagOnly reports whether the tag fast path applies: a plain tag lookup with
// no other predicates and no negation.
func (s *Spec) tagOnly() bool {
	return len(s.Tags) > 0 && !s.Not &&
		s.From == nil && s.Before == nil &&
		s.URI == "" && s.Any == "" && s.Quote == "" && s.Text == "" &&
		len(s.ExcludeTags) == 0 && !s.OnlyPageNotes && !s.OnlyInContent
}

// Apply evaluates the spec over the whole mirror and returns matching
// annotations sorted by Created (Updated when IncludeUpdated) ascending, or
// descending when Before drives the query.
//
// A tag-only spec is answered from the tag index; any other combination
// scans the record store, since no secondary index exists for time or
// substring fields.
func (s *Spec) Apply(ctx context.Context, st *store.Store) ([]*annotation.Annotation, error) {
	var (
		anns []*annotation.Annotation
		err  error
	)
	if s.tagOnly() {
		anns, err = s.applyTagLookup(ctx, st)
	} else {
		anns, err = s.applyScan(ctx, st)
	}
	if err != nil {
		return nil, err
	}

	Sort(anns, s.IncludeUpdated, s.Before != nil)
	return anns, nil
}

// applyTagLookup answers a tag-only spec from the tag index: union of the
// query tags for ANY-of semantics, intersection for ALL-of. A tag that was
// never observed contributes no matches.
func (s *Spec) applyTagLookup(ctx context.Context, st *store.Store) ([]*annotation.Annotation, error) {
	counts := make(map[string]int)
	var order []string
	for _, tag := range s.Tags {
		ids, err := st.TaggedIDsContext(ctx, tag)
		if err != nil {
			if errors.Is(err, store.ErrTagNotFound) {
				if s.AllTags {
					return nil, nil
				}
				continue
			}
			return nil, err
		}
		for _, id := range ids {
			if counts[id] == 0 {
				order = append(order, id)
			}
			counts[id]++
		}
	}

	var ids []string
	for _, id := range order {
		if !s.AllTags || counts[id] == len(s.Tags) {
			ids = append(ids, id)
		}
	}
	return st.GetMany(ctx, ids)
}

// applyScan evaluates the predicate over a full scan of the record store.
func (s *Spec) applyScan(ctx context.Context, st *store.Store) ([]*annotation.Annotation, error) {
	all, err := st.All(ctx)
	if err != nil {
		return nil, err
	}
	var matched []*annotation.Annotation
	for _, a := range all {
		if s.Matches(a) {
			matched = append(matched, a)
		}
	}
	return matched, nil
}

// Sort orders annotations by Created (or Updated) time, ascending unless
// descending is requested. Ties break on ID for stable output.
func Sort(anns []*annotation.Annotation, byUpdated, descending bool) {
	key := func(a *annotation.Annotation) time.Time {
		if byUpdated {
			return a.Updated
		}
		return a.Created
	}
	sort.SliceStable(anns, func(i, j int) bool {
		ti, tj := key(anns[i]), key(anns[j])
		if ti.Equal(tj) {
			if descending {
				return anns[i].ID > anns[j].ID
			}
			return anns[i].ID < anns[j].ID
		}
		if descending {
			return ti.After(tj)
		}
		return ti.Before(tj)
	})
}

func containsAny(haystacks []string, pattern string) bool {
	for _, h := range haystacks {
		if strings.Contains(h, pattern) {
			return true
		}
	}
	return false
}

func hasAnyTag(a *annotation.Annotation, tags []string) bool {
	for _, tag := range tags {
		if a.HasTag(tag) {
			return true
		}
	}
	return false
}
