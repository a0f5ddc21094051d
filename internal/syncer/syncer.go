// Package syncer pulls annotations from the remote source into the local
// mirror, and pushes local tag edits back upstream.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/quincelabs/quince/internal/annotation"
	"github.com/quincelabs/quince/internal/hypothesis"
	"github.com/quincelabs/quince/internal/store"
)

// Counts reports what one sync run did. On failure the counts cover the
// prefix of work that completed.
type Counts struct {
	// Added is the number of annotations observed for the first time.
	Added int
	// Updated is the number of already-mirrored annotations replaced.
	Updated int
	// Ignored is the number of records carrying the ignore sentinel tag,
	// tombstoned locally.
	Ignored int
}

// Add accumulates counts across sync targets.
func (c *Counts) Add(other Counts) {
	c.Added += other.Added
	c.Updated += other.Updated
	c.Ignored += other.Ignored
}

// Syncer drives incremental synchronization between the remote source and
// the local store.
//
// One Sync invocation is resumable: the cursor is persisted only after a
// full page has been applied, so an interruption can only redo a page, never
// skip one. Re-running from an unmoved cursor against identical remote pages
// reproduces the same local state, because upsert rebuilds the same
// mappings. Remote failures propagate immediately with the cursor left at
// the last durable point; retry is re-running, not an in-process loop.
type Syncer struct {
	store    *store.Store
	source   hypothesis.Source
	user     string
	pageSize int
	logger   *log.Logger
}

// New creates a Syncer over an open store and a remote source.
//
// user scopes remote queries to one author (empty means no user filter).
// pageSize bounds each fetch; zero uses the source default.
// If logger is nil, a default logger writing to stderr is used.
func New(st *store.Store, source hypothesis.Source, user string, pageSize int, logger *log.Logger) *Syncer {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	if pageSize <= 0 {
		pageSize = hypothesis.DefaultPageSize
	}
	return &Syncer{
		store:    st,
		source:   source,
		user:     user,
		pageSize: pageSize,
		logger:   logger,
	}
}

// Sync pulls changes for each group in turn and applies them to the local
// mirror. Each group has its own persisted cursor. Counts accumulate across
// groups; on error the counts cover what completed.
func (s *Syncer) Sync(ctx context.Context, groups []string) (Counts, error) {
	if len(groups) == 0 {
		groups = []string{""}
	}
	var total Counts
	for _, group := range groups {
		counts, err := s.syncGroup(ctx, group)
		total.Add(counts)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// syncGroup runs the page loop for one sync target.
//
// The remote's search_after is strictly-after, so records sharing the exact
// cursor timestamp would be skipped when a tie straddles a page boundary.
// To keep the loop lossless, each fetch regresses the cursor by one
// nanosecond; records already applied in this run (same ID, same or older
// Updated) are skipped without counting. A full page with nothing new means
// a tie group may extend past the page cut, so the window is widened (up to
// maxWidenFactor times the page size) before the fetch point advances
// strictly, which keeps the loop terminating even when every record in a
// page shares one timestamp.
func (s *Syncer) syncGroup(ctx context.Context, group string) (Counts, error) {
	var counts Counts

	cursor, err := s.store.CursorContext(ctx, group)
	if err != nil {
		return counts, err
	}
	s.logger.Printf("Syncing group=%q since %s", group, cursor)

	query := hypothesis.Query{
		User:        s.user,
		Group:       group,
		SearchAfter: regress(cursor),
		Limit:       s.pageSize,
	}
	seen := make(map[string]time.Time)

	for {
		page, err := s.source.Search(ctx, query)
		if err != nil {
			return counts, fmt.Errorf("failed to fetch page after %s: %w", query.SearchAfter, err)
		}
		if len(page) == 0 {
			break
		}

		applied := 0
		for i := range page {
			a := &page[i]
			if when, ok := seen[a.ID]; ok && !a.Updated.After(when) {
				continue
			}
			if err := s.apply(ctx, a, &counts); err != nil {
				return counts, err
			}
			seen[a.ID] = a.Updated
			applied++
		}

		last := page[len(page)-1].Updated.UTC().Format(time.RFC3339Nano)
		if applied == 0 {
			if widened, ok := s.widen(query.Limit, len(page)); ok {
				query.Limit = widened
				continue
			}
			if len(page) == query.Limit {
				s.logger.Printf("Tie group at %s wider than %d records, advancing past it", last, query.Limit)
			}
			// Everything here was applied earlier in this run; move the
			// fetch point strictly past it so the loop cannot stall.
			query.SearchAfter = last
			query.Limit = s.pageSize
			continue
		}

		// The whole page is applied; now and only now move the watermark.
		cursor = last
		if err := s.store.SetCursorContext(ctx, group, cursor); err != nil {
			return counts, err
		}
		query.SearchAfter = regress(cursor)
		query.Limit = s.pageSize

		s.logger.Printf("Applied page of %d (group=%q, cursor=%s)", applied, group, cursor)
	}

	s.logger.Printf("Group %q done: added=%d updated=%d ignored=%d",
		group, counts.Added, counts.Updated, counts.Ignored)
	return counts, nil
}

// maxWidenFactor bounds how far a fetch window grows while working through a
// tie group: a group wider than maxWidenFactor times the page size is
// abandoned past the cut.
const maxWidenFactor = 32

// widen doubles a fetch window that came back full of already-applied
// records. Reports false when the window was not full (the tie group is
// exhausted) or the bound is reached.
func (s *Syncer) widen(limit, got int) (int, bool) {
	if got < limit || limit >= s.pageSize*maxWidenFactor {
		return limit, false
	}
	limit *= 2
	if bound := s.pageSize * maxWidenFactor; limit > bound {
		limit = bound
	}
	return limit, true
}

// regress steps a timestamp cursor back one nanosecond, so a strictly-after
// fetch re-delivers records tied exactly at the watermark. Opaque cursors
// pass through unchanged.
func regress(cursor string) string {
	t, err := time.Parse(time.RFC3339Nano, cursor)
	if err != nil {
		return cursor
	}
	return t.Add(-time.Nanosecond).UTC().Format(time.RFC3339Nano)
}

// apply classifies one incoming record and mutates the mirror accordingly.
func (s *Syncer) apply(ctx context.Context, a *annotation.Annotation, counts *Counts) error {
	if a.HasTag(annotation.IgnoreTag) {
		if _, err := s.store.DeleteContext(ctx, a.ID); err != nil {
			if !errors.Is(err, store.ErrAnnotationNotFound) {
				return err
			}
		}
		counts.Ignored++
		return nil
	}

	_, err := s.store.GetContext(ctx, a.ID)
	switch {
	case err == nil:
		if err := s.store.UpsertContext(ctx, a); err != nil {
			return err
		}
		counts.Updated++
	case errors.Is(err, store.ErrAnnotationNotFound):
		if err := s.store.UpsertContext(ctx, a); err != nil {
			return err
		}
		counts.Added++
	default:
		return err
	}
	return nil
}
