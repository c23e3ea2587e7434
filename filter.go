// SPDX-License-Identifier: MIT
// Copyright (c) 2026 gbtami
// Source: github.com/gbtami/cbv

package cbv

import (
	"fmt"
	"strings"

	"github.com/woozymasta/pathrules"
)

// entrySelector holds compiled include/exclude rules for entry selection.
type entrySelector struct {
	matcher *pathrules.Matcher
}

// newEntrySelector compiles selection rules. A nil selector selects everything.
func newEntrySelector(rules []pathrules.Rule, opts pathrules.MatcherOptions) (*entrySelector, error) {
	rules = normalizeRules(rules)
	if len(rules) == 0 {
		return nil, nil
	}

	opts = withDefaultAction(opts, rules)
	matcher, err := pathrules.NewMatcher(rules, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: compile rules: %w", ErrInvalidRules, err)
	}

	return &entrySelector{matcher: matcher}, nil
}

// normalizeRules normalizes rule patterns and drops empty patterns.
func normalizeRules(rules []pathrules.Rule) []pathrules.Rule {
	normalized := make([]pathrules.Rule, 0, len(rules))
	for _, rule := range rules {
		pattern := strings.TrimPrefix(strings.ReplaceAll(strings.TrimSpace(rule.Pattern), `\`, `/`), "./")
		if pattern == "" {
			continue
		}

		normalized = append(normalized, pathrules.Rule{
			Action:  rule.Action,
			Pattern: pattern,
		})
	}

	return normalized
}

// withDefaultAction fills an unset default action: unmatched paths are
// excluded when any include rule is present and included otherwise.
func withDefaultAction(opts pathrules.MatcherOptions, rules []pathrules.Rule) pathrules.MatcherOptions {
	if opts.DefaultAction != pathrules.ActionUnknown {
		return opts
	}

	opts.DefaultAction = pathrules.ActionInclude
	for _, rule := range rules {
		if rule.Action == pathrules.ActionInclude {
			opts.DefaultAction = pathrules.ActionExclude
			break
		}
	}

	return opts
}

// Match reports whether the entry path is selected.
func (s *entrySelector) Match(path string) bool {
	if s == nil || s.matcher == nil {
		return true
	}

	candidate := NormalizePath(path)
	if candidate == "" {
		return false
	}

	return s.matcher.Included(candidate, false)
}

// FilterEntries keeps entries selected by rules; empty rules keep all entries.
func FilterEntries(entries []EntryInfo, rules []pathrules.Rule, opts pathrules.MatcherOptions) ([]EntryInfo, error) {
	selector, err := newEntrySelector(rules, opts)
	if err != nil {
		return nil, err
	}

	if selector == nil {
		return entries, nil
	}

	out := make([]EntryInfo, 0, len(entries))
	for _, entry := range entries {
		if selector.Match(entry.Path) {
			out = append(out, entry)
		}
	}

	return out, nil
}
