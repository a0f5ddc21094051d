package main

import (
	"fmt"
	"os"
	"time"

	"github.com/quincelabs/quince/internal/filter"
	"github.com/spf13/cobra"
)

// filterFlags collects the shared annotation filter options.
type filterFlags struct {
	from           string
	before         string
	includeUpdated bool
	uri            string
	any            string
	quote          string
	text           string
	tags           []string
	allTags        bool
	excludeTags    []string
	pageNotes      bool
	inContent      bool
	not            bool
}

// register adds the filter flags to a command.
func (f *filterFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.from, "from", "", `only annotations after this date ("2024-01-02", "last friday 8pm")`)
	flags.StringVar(&f.before, "before", "", "only annotations before this date")
	flags.BoolVarP(&f.includeUpdated, "include-updated", "i", false, "compare the updated date instead of created")
	flags.StringVar(&f.uri, "uri", "", "only annotations with this pattern in their URL")
	flags.StringVar(&f.any, "any", "", "only annotations with this pattern in their quote, tags, text, or URL")
	flags.StringVar(&f.quote, "quote", "", "only annotations with this pattern in their highlighted quote")
	flags.StringVar(&f.text, "text", "", "only annotations with this pattern in their body text")
	flags.StringSliceVar(&f.tags, "tags", nil, "only annotations with any of these tags")
	flags.BoolVar(&f.allTags, "and", false, "require all of --tags instead of any")
	flags.StringSliceVar(&f.excludeTags, "exclude-tags", nil, "skip annotations with any of these tags")
	flags.BoolVar(&f.pageNotes, "page-notes", false, "only page notes (no highlight)")
	flags.BoolVar(&f.inContent, "in-content", false, "only in-document annotations")
	flags.BoolVar(&f.not, "not", false, "invert the whole filter")
	cmd.MarkFlagsMutuallyExclusive("from", "before")
	cmd.MarkFlagsMutuallyExclusive("page-notes", "in-content")
}

// spec builds the immutable filter spec for this invocation.
func (f *filterFlags) spec() *filter.Spec {
	spec := &filter.Spec{
		IncludeUpdated: f.includeUpdated,
		URI:            f.uri,
		Any:            f.any,
		Quote:          f.quote,
		Text:           f.text,
		Tags:           f.tags,
		AllTags:        f.allTags,
		ExcludeTags:    f.excludeTags,
		OnlyPageNotes:  f.pageNotes,
		OnlyInContent:  f.inContent,
		Not:            f.not,
	}
	spec.From = parseDateFlag("--from", f.from)
	spec.Before = parseDateFlag("--before", f.before)
	return spec
}

func parseDateFlag(name, value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := filter.ParseDate(value)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing %s: %v\n", name, err)
		os.Exit(1)
	}
	return &t
}
