package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/quincelabs/quince/internal/annotation"
	"github.com/quincelabs/quince/internal/hypothesis"
	"github.com/quincelabs/quince/internal/store"
)

// Move pulls every annotation in a remote group and moves the ones keep
// accepts into toGroup: the group change is pushed upstream, then the record
// is upserted locally so it is queryable before the next sync. A nil keep
// moves everything. Records carrying the ignore sentinel are left alone.
// Returns the number of annotations moved.
func (s *Syncer) Move(ctx context.Context, fromGroup, toGroup string, keep func(*annotation.Annotation) bool) (int, error) {
	anns, err := s.fetchGroup(ctx, fromGroup)
	if err != nil {
		return 0, err
	}

	moved := 0
	for i := range anns {
		a := &anns[i]
		if a.HasTag(annotation.IgnoreTag) {
			continue
		}
		if keep != nil && !keep(a) {
			continue
		}
		if err := s.source.Move(ctx, a.ID, toGroup); err != nil {
			return moved, fmt.Errorf("failed to move %s to group %q: %w", a.ID, toGroup, err)
		}
		a.Group = toGroup
		if err := s.store.UpsertContext(ctx, a); err != nil {
			return moved, err
		}
		moved++
		s.logger.Printf("Moved %s into group %q", a.ID, toGroup)
	}

	s.logger.Printf("Moved %d annotations from group %q to %q", moved, fromGroup, toGroup)
	return moved, nil
}

// fetchGroup pages through a whole remote group from the beginning of time.
// It collects before mutating anything, so the remote result set stays
// stable while paging. Same tie discipline as the sync loop: regressed
// fetches with dedupe, widening a stalled full window before advancing.
func (s *Syncer) fetchGroup(ctx context.Context, group string) ([]annotation.Annotation, error) {
	query := hypothesis.Query{
		User:        s.user,
		Group:       group,
		SearchAfter: regress(store.MinCursor),
		Limit:       s.pageSize,
	}
	seen := make(map[string]bool)
	var out []annotation.Annotation

	for {
		page, err := s.source.Search(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch group %q: %w", group, err)
		}
		if len(page) == 0 {
			break
		}

		collected := 0
		for _, a := range page {
			if seen[a.ID] {
				continue
			}
			seen[a.ID] = true
			out = append(out, a)
			collected++
		}

		last := page[len(page)-1].Updated.UTC().Format(time.RFC3339Nano)
		if collected == 0 {
			if widened, ok := s.widen(query.Limit, len(page)); ok {
				query.Limit = widened
				continue
			}
			query.SearchAfter = last
			query.Limit = s.pageSize
			continue
		}
		query.SearchAfter = regress(last)
		query.Limit = s.pageSize
	}
	return out, nil
}
