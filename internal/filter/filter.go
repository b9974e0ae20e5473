// Package filter matches stage names and statistic names against user patterns.
package filter

import (
	"fmt"
	"regexp"
	"strings"
)

// Pattern represents a compiled filter condition supporting substring and regex matching.
// Patterns wrapped in slashes ("/^Reads/") are regular expressions; everything
// else is a case-insensitive substring.
type Pattern struct {
	raw   string
	regex *regexp.Regexp
	lower string
}

// Compile transforms raw pattern strings into Pattern values.
func Compile(patterns []string) ([]Pattern, error) {
	result := make([]Pattern, 0, len(patterns))
	for _, raw := range patterns {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.HasPrefix(raw, "/") && strings.HasSuffix(raw, "/") && len(raw) >= 2 {
			expr := raw[1 : len(raw)-1]
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("compile regexp %q: %w", raw, err)
			}
			result = append(result, Pattern{raw: raw, regex: re})
			continue
		}
		result = append(result, Pattern{raw: raw, lower: strings.ToLower(raw)})
	}
	return result, nil
}

// MustCompile is like Compile but panics on error. Intended for built-in patterns.
func MustCompile(patterns ...string) []Pattern {
	compiled, err := Compile(patterns)
	if err != nil {
		panic(err)
	}
	return compiled
}

// String returns the pattern as written.
func (p Pattern) String() string { return p.raw }

// Match reports whether the pattern matches the supplied string.
func (p Pattern) Match(s string) bool {
	if s == "" {
		return false
	}
	if p.regex != nil {
		return p.regex.MatchString(s)
	}
	return strings.Contains(strings.ToLower(s), p.lower)
}

// Any reports whether any pattern matches any of the candidate strings.
func Any(patterns []Pattern, candidates ...string) bool {
	for _, pattern := range patterns {
		for _, c := range candidates {
			if pattern.Match(c) {
				return true
			}
		}
	}
	return false
}

// Select keeps the items whose keys match at least one only pattern (when any
// are given) and none of the skip patterns. Order is preserved.
func Select[T any](items []T, keys func(T) []string, only, skip []Pattern) []T {
	if len(items) == 0 {
		return nil
	}
	result := make([]T, 0, len(items))
	for _, item := range items {
		k := keys(item)
		if len(only) > 0 && !Any(only, k...) {
			continue
		}
		if len(skip) > 0 && Any(skip, k...) {
			continue
		}
		result = append(result, item)
	}
	return result
}
