// Package match implements spec.md §4.1's pattern matcher: a
// case-insensitive, shell-style (not regex) multi-glob membership test over
// a file's leaf name.
/*
 * Copyright (c) 2024, filesyncd authors.
 */
package match

import (
	"strings"

	tidwallmatch "github.com/tidwall/match"
)

// Match reports whether name (a leaf name, not a path) matches any pattern
// in patterns, case-insensitively on both sides. An empty patterns list is
// normalized to ["*"] per spec.md §4.1, so callers that already hold a
// SyncConfiguration should prefer its NormalizedPatterns() — Match itself
// also defends against the empty case so it is safe to call directly.
func Match(name string, patterns []string) bool {
	if len(patterns) == 0 {
		patterns = []string{"*"}
	}
	name = strings.ToLower(name)
	for _, p := range patterns {
		if tidwallmatch.Match(name, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
