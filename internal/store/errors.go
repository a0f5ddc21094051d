package store

import "errors"

// Sentinel errors returned by store operations.
//
// These can be checked with errors.Is():
//
//	if errors.Is(err, store.ErrAnnotationNotFound) {
//	    // Handle missing annotation
//	}
var (
	// ErrAnnotationNotFound is returned when an annotation ID does not match
	// any mirrored record.
	ErrAnnotationNotFound = errors.New("annotation not found")

	// ErrTagNotFound is returned when a tag has never been observed. "No
	// matches" and "never seen" intentionally surface the same error.
	ErrTagNotFound = errors.New("tag not found")

	// ErrCorruptIndex is returned when a stored record or index value cannot
	// be decoded. It indicates store corruption or a reserved-character
	// collision in a tag name, and is fatal.
	ErrCorruptIndex = errors.New("corrupt index value")
)
