// Package annotation provides the data model for records mirrored from a
// web-annotation service.
//
// Annotations are authored remotely and cached locally verbatim: the full
// JSON payload is stored in the record store, and only the fields needed for
// indexing and filtering are decoded into typed fields. Everything else
// (selectors, document metadata, links) passes through unchanged.
package annotation

import (
	"fmt"
	"strings"
	"time"
)

// Reserved tag values. Neither may appear as a literal tag on a stored
// annotation.
const (
	// EmptyTag is the on-disk stand-in for "no tags". An annotation with an
	// empty tag set is indexed under EmptyTag so that untagged lookups are a
	// normal tag lookup.
	EmptyTag = "quince_untagged"

	// IgnoreTag marks an annotation for local removal. It is never stored:
	// when sync sees it on an incoming record, the record is tombstoned.
	IgnoreTag = "quince_ignore"
)

// Delimiter joins tag lists and ID lists in the on-disk index encoding.
// Tags containing it are rejected on the write path.
const Delimiter = ";"

// Selector is one selector inside a target. Quote selectors carry the
// highlighted text in Exact; other selector kinds are kept for round-tripping.
type Selector struct {
	Type   string `json:"type,omitempty"`
	Exact  string `json:"exact,omitempty"`
	Prefix string `json:"prefix,omitempty"`
	Suffix string `json:"suffix,omitempty"`
	Start  int    `json:"start,omitempty"`
	End    int    `json:"end,omitempty"`
	Value  string `json:"value,omitempty"`
}

// Target locates an annotation within a document.
type Target struct {
	Source   string     `json:"source,omitempty"`
	Selector []Selector `json:"selector,omitempty"`
}

// Document holds document metadata reported by the service.
type Document struct {
	Title []string `json:"title,omitempty"`
}

// UserInfo holds display information about the annotation's author.
type UserInfo struct {
	DisplayName string `json:"display_name,omitempty"`
}

// Annotation is one record mirrored from the remote service.
//
// ID is assigned remotely, globally unique, and immutable. Updated is
// non-decreasing across edits to the same ID, which is what makes it usable
// as a sync watermark.
type Annotation struct {
	ID       string            `json:"id"`
	Created  time.Time         `json:"created"`
	Updated  time.Time         `json:"updated"`
	User     string            `json:"user,omitempty"`
	URI      string            `json:"uri"`
	Text     string            `json:"text"`
	Tags     []string          `json:"tags"`
	Group    string            `json:"group,omitempty"`
	Target   []Target          `json:"target,omitempty"`
	Document *Document         `json:"document,omitempty"`
	Links    map[string]string `json:"links,omitempty"`
	UserInfo *UserInfo         `json:"user_info,omitempty"`
}

// Validate checks the fields required for indexing and sync.
func (a *Annotation) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("id is required")
	}
	if a.Updated.IsZero() {
		return fmt.Errorf("updated timestamp is required")
	}
	return nil
}

// HasTag reports whether the annotation carries the given tag.
func (a *Annotation) HasTag(tag string) bool {
	for _, t := range a.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Quotes returns the exact text of every quote selector, in target order.
// An annotation with no quote selectors returns nil.
func (a *Annotation) Quotes() []string {
	var quotes []string
	for _, target := range a.Target {
		for _, sel := range target.Selector {
			if sel.Type == "TextQuoteSelector" && sel.Exact != "" {
				quotes = append(quotes, sel.Exact)
			}
		}
	}
	return quotes
}

// IsPageNote reports whether the annotation is a note on the whole page
// rather than an in-document highlight, distinguished by the absence of any
// selector payload.
func (a *Annotation) IsPageNote() bool {
	for _, target := range a.Target {
		if len(target.Selector) > 0 {
			return false
		}
	}
	return true
}

// Title returns the first document title, or a placeholder when the service
// reported none.
func (a *Annotation) Title() string {
	if a.Document != nil && len(a.Document.Title) > 0 && a.Document.Title[0] != "" {
		return a.Document.Title[0]
	}
	return "Untitled document"
}

// NormalizeTags prepares a tag list for indexing: whitespace is trimmed,
// empty and whitespace-only tags are dropped (they fold into the EmptyTag
// bucket), and duplicates are removed preserving first-seen order. The source
// permits duplicate tags; locally a tag set is maintained.
func NormalizeTags(tags []string) []string {
	var out []string
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

// ValidateTag rejects tag values that cannot be stored: the reserved
// sentinels and tags containing the index delimiter.
func ValidateTag(tag string) error {
	if strings.TrimSpace(tag) == "" {
		return fmt.Errorf("tag must not be empty")
	}
	if tag == EmptyTag || tag == IgnoreTag {
		return fmt.Errorf("tag %q is reserved", tag)
	}
	if strings.Contains(tag, Delimiter) {
		return fmt.Errorf("tag %q contains reserved delimiter %q", tag, Delimiter)
	}
	return nil
}

// NestedTagPath is a display-time transform that rewrites a configurable
// separator inside a tag into a path separator. The stored tag value is
// never changed.
func NestedTagPath(tag, separator, pathSeparator string) string {
	if separator == "" {
		return tag
	}
	return strings.ReplaceAll(tag, separator, pathSeparator)
}
