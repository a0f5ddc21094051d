package syncer

import (
	"context"
	"fmt"

	"github.com/quincelabs/quince/internal/annotation"
)

// AddTag adds a tag to each of the given annotations, updating the local
// mirror and pushing the new tag set upstream. Annotations that already
// carry the tag are skipped. Returns the number of annotations changed.
//
// The upstream push happens before the local write, so a remote failure
// leaves the mirror consistent with the remote state.
func (s *Syncer) AddTag(ctx context.Context, anns []*annotation.Annotation, tag string) (int, error) {
	if err := annotation.ValidateTag(tag); err != nil {
		return 0, err
	}

	changed := 0
	for _, a := range anns {
		if a.HasTag(tag) {
			continue
		}
		tags := append(append([]string(nil), a.Tags...), tag)
		if err := s.source.Update(ctx, a.ID, tags); err != nil {
			return changed, fmt.Errorf("failed to push tag %q to %s: %w", tag, a.ID, err)
		}
		a.Tags = tags
		if err := s.store.UpsertContext(ctx, a); err != nil {
			return changed, err
		}
		changed++
		s.logger.Printf("Tagged %s with %q", a.ID, tag)
	}
	return changed, nil
}

// RemoveTag removes a tag from each of the given annotations, updating the
// local mirror and pushing the new tag set upstream. Annotations without the
// tag are skipped. Returns the number of annotations changed.
func (s *Syncer) RemoveTag(ctx context.Context, anns []*annotation.Annotation, tag string) (int, error) {
	changed := 0
	for _, a := range anns {
		if !a.HasTag(tag) {
			continue
		}
		var tags []string
		for _, t := range a.Tags {
			if t != tag {
				tags = append(tags, t)
			}
		}
		if err := s.source.Update(ctx, a.ID, tags); err != nil {
			return changed, fmt.Errorf("failed to remove tag %q from %s: %w", tag, a.ID, err)
		}
		a.Tags = tags
		if err := s.store.UpsertContext(ctx, a); err != nil {
			return changed, err
		}
		changed++
		s.logger.Printf("Removed tag %q from %s", tag, a.ID)
	}
	return changed, nil
}

// Forget removes annotations from the local mirror.
//
// Without alsoRemote, each annotation is marked with the ignore sentinel
// upstream so future syncs tombstone it instead of re-adding it. With
// alsoRemote, the annotation is deleted from the remote service outright.
// Local removal is applied as one batch after all upstream calls succeed.
func (s *Syncer) Forget(ctx context.Context, anns []*annotation.Annotation, alsoRemote bool) (int, error) {
	ids := make([]string, 0, len(anns))
	for _, a := range anns {
		if alsoRemote {
			if err := s.source.Delete(ctx, a.ID); err != nil {
				return 0, fmt.Errorf("failed to delete %s upstream: %w", a.ID, err)
			}
		} else {
			tags := append(append([]string(nil), a.Tags...), annotation.IgnoreTag)
			if err := s.source.Update(ctx, a.ID, tags); err != nil {
				return 0, fmt.Errorf("failed to tombstone %s upstream: %w", a.ID, err)
			}
		}
		ids = append(ids, a.ID)
	}

	if len(ids) == 0 {
		return 0, nil
	}
	removed, err := s.store.DeleteBatch(ctx, ids)
	if err != nil {
		return 0, err
	}
	s.logger.Printf("Forgot %d annotations (remote delete=%v)", len(removed), alsoRemote)
	return len(removed), nil
}
