package stats

import (
	"fmt"
	"regexp"

	"github.com/singleronbio/scopetools/internal/filter"
)

// Rule locates the statistics span in a tool's stdout and decides which
// statistics are shown in the report.
type Rule interface {
	Name() string
	// Locate returns the span holding the statistics, one per line.
	Locate(text string) (string, bool)
	// Visible reports whether the named statistic belongs in the visible table.
	Visible(name string) bool
}

// MarkerRule finds the span starting at a start marker and ending at the end
// of the line holding the end marker.
type MarkerRule struct {
	name      string
	pattern   *regexp.Regexp
	invisible []filter.Pattern
}

// NewMarkerRule builds a rule from literal start and end markers. Statistics
// matching any invisible pattern are kept out of the visible table.
func NewMarkerRule(name, start, end string, invisible []filter.Pattern) (*MarkerRule, error) {
	if name == "" || start == "" || end == "" {
		return nil, fmt.Errorf("marker rule %q: name, start and end are required", name)
	}
	expr := fmt.Sprintf(`(?s)(%s.*?%s.*?)\n`, regexp.QuoteMeta(start), regexp.QuoteMeta(end))
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("marker rule %q: %w", name, err)
	}
	return &MarkerRule{name: name, pattern: re, invisible: invisible}, nil
}

// Name implements Rule.
func (r *MarkerRule) Name() string { return r.name }

// Locate implements Rule.
func (r *MarkerRule) Locate(text string) (string, bool) {
	m := r.pattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Visible implements Rule.
func (r *MarkerRule) Visible(name string) bool {
	return !filter.Any(r.invisible, name)
}

var _ Rule = (*MarkerRule)(nil)
