package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// dateLayouts are tried in order before falling back to colloquial parsing.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseDate turns a date string into a UTC timestamp. Accepts RFC 3339 and
// plain dates, plus colloquial phrases like "today" or "last friday 8pm".
// "today" means midnight today.
func ParseDate(input string) (time.Time, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return time.Time{}, fmt.Errorf("empty date string")
	}

	now := time.Now()
	if strings.EqualFold(input, "today") {
		year, month, day := now.Date()
		return time.Date(year, month, day, 0, 0, 0, 0, now.Location()).UTC(), nil
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, input); err == nil {
			return t.UTC(), nil
		}
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	result, err := w.Parse(input, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse date %q: %w", input, err)
	}
	if result == nil {
		return time.Time{}, fmt.Errorf("failed to parse date %q", input)
	}
	return result.Time.UTC(), nil
}
