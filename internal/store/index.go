package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/quincelabs/quince/internal/annotation"
)

// bucketTags returns the tag_annotations buckets an annotation with the given
// normalized tag set belongs to: the tags themselves, or the empty-tag
// sentinel when there are none.
func bucketTags(tags []string) []string {
	if len(tags) == 0 {
		return []string{annotation.EmptyTag}
	}
	return tags
}

// Upsert inserts or replaces an annotation and rebuilds both tag mappings.
//
// If the ID is already present its old tag memberships are removed first,
// then the fresh record is inserted and both mappings are rebuilt from the
// new tag set. The delete-then-insert discipline keeps a later update from
// leaving stale tag associations behind; membership lists are maintained by
// explicit read-modify-write, never blind append.
//
// The whole operation is one transaction: it either applies completely or
// not at all.
func (s *Store) Upsert(a *annotation.Annotation) error {
	return s.UpsertContext(context.Background(), a)
}

// UpsertContext inserts or replaces an annotation with context support.
func (s *Store) UpsertContext(ctx context.Context, a *annotation.Annotation) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("invalid annotation: %w", err)
	}

	tags := annotation.NormalizeTags(a.Tags)
	for _, tag := range tags {
		if err := annotation.ValidateTag(tag); err != nil {
			return fmt.Errorf("annotation %s: %v: %w", a.ID, err, ErrCorruptIndex)
		}
	}

	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal annotation %s: %w", a.ID, err)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Remove old memberships first.
	oldValue, found, err := txTagsValue(ctx, tx, a.ID)
	if err != nil {
		return err
	}
	if found {
		for _, tag := range bucketTags(decodeTagsValue(oldValue)) {
			if err := txRemoveFromTag(ctx, tx, tag, a.ID); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM annotation_tags WHERE id = ?`, a.ID); err != nil {
			return fmt.Errorf("failed to clear tag list for %s: %w", a.ID, err)
		}
	}

	query := `
	INSERT INTO records (id, body) VALUES (?, ?)
	ON CONFLICT(id) DO UPDATE SET body = excluded.body
	`
	if _, err := tx.ExecContext(ctx, query, a.ID, string(body)); err != nil {
		return fmt.Errorf("failed to upsert record %s: %w", a.ID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO annotation_tags (id, tags) VALUES (?, ?)`,
		a.ID, encodeTagsValue(tags)); err != nil {
		return fmt.Errorf("failed to write tag list for %s: %w", a.ID, err)
	}

	for _, tag := range bucketTags(tags) {
		if err := txAddToTag(ctx, tx, tag, a.ID); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Delete removes an annotation from the record store and from both tag
// mappings, returning the removed record.
// Returns ErrAnnotationNotFound if the ID is absent; nothing is applied.
func (s *Store) Delete(id string) (*annotation.Annotation, error) {
	return s.DeleteContext(context.Background(), id)
}

// DeleteContext removes an annotation with context support.
func (s *Store) DeleteContext(ctx context.Context, id string) (*annotation.Annotation, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	removed, err := txDeleteOne(ctx, tx, id, func(tag string) error {
		return txRemoveFromTag(ctx, tx, tag, id)
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return removed, nil
}

// DeleteBatch removes several annotations as one logical unit.
//
// Semantics match repeated Delete, but the index is updated in two passes:
// all annotation_tags removals first, then one rewrite per touched
// tag_annotations entry, bounding the number of underlying writes. A missing
// ID aborts the whole batch unapplied.
func (s *Store) DeleteBatch(ctx context.Context, ids []string) ([]*annotation.Annotation, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Pass 1: remove records and per-annotation tag lists, accumulating
	// which IDs leave which tag buckets.
	removedByTag := make(map[string]map[string]bool)
	removed := make([]*annotation.Annotation, 0, len(ids))
	for _, id := range ids {
		a, err := txDeleteOne(ctx, tx, id, func(tag string) error {
			if removedByTag[tag] == nil {
				removedByTag[tag] = make(map[string]bool)
			}
			removedByTag[tag][id] = true
			return nil
		})
		if err != nil {
			return nil, err
		}
		removed = append(removed, a)
	}

	// Pass 2: one rewrite per touched tag.
	for tag, gone := range removedByTag {
		value, found, err := txTagIDsValue(ctx, tx, tag)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("%s: %w", tag, ErrTagNotFound)
		}
		var kept []string
		for _, existing := range splitList(value) {
			if !gone[existing] {
				kept = append(kept, existing)
			}
		}
		if err := txWriteTag(ctx, tx, tag, kept); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return removed, nil
}

// Tags returns the tag set of an annotation. Callers always see the empty
// set for untagged annotations, never the on-disk sentinel literal.
// Returns ErrAnnotationNotFound if the ID is absent.
func (s *Store) Tags(id string) ([]string, error) {
	return s.TagsContext(context.Background(), id)
}

// TagsContext returns the tag set of an annotation with context support.
func (s *Store) TagsContext(ctx context.Context, id string) ([]string, error) {
	var value string
	err := s.conn.QueryRowContext(ctx, `SELECT tags FROM annotation_tags WHERE id = ?`, id).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s: %w", id, ErrAnnotationNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read tag list for %s: %w", id, err)
	}
	tags := decodeTagsValue(value)
	if tags == nil {
		tags = []string{}
	}
	return tags, nil
}

// TaggedIDs returns the IDs of all annotations carrying the given tag. An
// empty or whitespace-only tag is folded into the empty-tag sentinel bucket,
// so untagged annotations are a normal lookup.
// Returns ErrTagNotFound if the tag has never been observed.
func (s *Store) TaggedIDs(tag string) ([]string, error) {
	return s.TaggedIDsContext(context.Background(), tag)
}

// TaggedIDsContext returns tagged annotation IDs with context support.
func (s *Store) TaggedIDsContext(ctx context.Context, tag string) ([]string, error) {
	if normalized := annotation.NormalizeTags([]string{tag}); len(normalized) == 0 {
		tag = annotation.EmptyTag
	} else {
		tag = normalized[0]
	}

	var value string
	err := s.conn.QueryRowContext(ctx, `SELECT ids FROM tag_annotations WHERE tag = ?`, tag).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s: %w", tag, ErrTagNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read tag %s: %w", tag, err)
	}
	return splitList(value), nil
}

// txDeleteOne removes a single annotation's record and tag list inside tx,
// reporting each tag bucket it leaves through leaveTag. The caller is
// responsible for updating tag_annotations.
func txDeleteOne(ctx context.Context, tx *sql.Tx, id string, leaveTag func(tag string) error) (*annotation.Annotation, error) {
	var body string
	err := tx.QueryRowContext(ctx, `SELECT body FROM records WHERE id = ?`, id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s: %w", id, ErrAnnotationNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record %s: %w", id, err)
	}
	removed, err := decodeRecord(id, body)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("failed to delete record %s: %w", id, err)
	}

	value, found, err := txTagsValue(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if found {
		for _, tag := range bucketTags(decodeTagsValue(value)) {
			if err := leaveTag(tag); err != nil {
				return nil, err
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM annotation_tags WHERE id = ?`, id); err != nil {
			return nil, fmt.Errorf("failed to delete tag list for %s: %w", id, err)
		}
	}
	return removed, nil
}

// txTagsValue reads the raw annotation_tags value for an ID inside tx.
func txTagsValue(ctx context.Context, tx *sql.Tx, id string) (string, bool, error) {
	var value string
	err := tx.QueryRowContext(ctx, `SELECT tags FROM annotation_tags WHERE id = ?`, id).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read tag list for %s: %w", id, err)
	}
	return value, true, nil
}

// txTagIDsValue reads the raw tag_annotations value for a tag inside tx.
func txTagIDsValue(ctx context.Context, tx *sql.Tx, tag string) (string, bool, error) {
	var value string
	err := tx.QueryRowContext(ctx, `SELECT ids FROM tag_annotations WHERE tag = ?`, tag).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read tag %s: %w", tag, err)
	}
	return value, true, nil
}

// txWriteTag replaces a tag's membership list, deleting the row when the
// list is empty.
func txWriteTag(ctx context.Context, tx *sql.Tx, tag string, ids []string) error {
	if len(ids) == 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tag_annotations WHERE tag = ?`, tag); err != nil {
			return fmt.Errorf("failed to delete tag %s: %w", tag, err)
		}
		return nil
	}
	query := `
	INSERT INTO tag_annotations (tag, ids) VALUES (?, ?)
	ON CONFLICT(tag) DO UPDATE SET ids = excluded.ids
	`
	if _, err := tx.ExecContext(ctx, query, tag, joinList(ids)); err != nil {
		return fmt.Errorf("failed to write tag %s: %w", tag, err)
	}
	return nil
}

// txAddToTag adds an ID to a tag's membership list if not already present.
func txAddToTag(ctx context.Context, tx *sql.Tx, tag, id string) error {
	value, found, err := txTagIDsValue(ctx, tx, tag)
	if err != nil {
		return err
	}
	var ids []string
	if found {
		ids = splitList(value)
		for _, existing := range ids {
			if existing == id {
				return nil
			}
		}
	}
	return txWriteTag(ctx, tx, tag, append(ids, id))
}

// txRemoveFromTag removes an ID from a tag's membership list.
func txRemoveFromTag(ctx context.Context, tx *sql.Tx, tag, id string) error {
	value, found, err := txTagIDsValue(ctx, tx, tag)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%s: %w", tag, ErrTagNotFound)
	}
	var kept []string
	for _, existing := range splitList(value) {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	return txWriteTag(ctx, tx, tag, kept)
}

// encodeTagsValue encodes a normalized tag set as the on-disk
// annotation_tags value, standing in the sentinel for "no tags".
func encodeTagsValue(tags []string) string {
	if len(tags) == 0 {
		return annotation.EmptyTag
	}
	return joinList(tags)
}

// decodeTagsValue decodes an annotation_tags value back to a tag set.
func decodeTagsValue(value string) []string {
	if value == annotation.EmptyTag {
		return nil
	}
	return splitList(value)
}
