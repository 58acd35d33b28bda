package config

import (
	"os"
	"path/filepath"

	"github.com/coreweave-labs/filesyncd/match"
)

// PreflightReport is the result of a dry-run check, per SPEC_FULL.md §3.4:
// pure domain logic the (out-of-core) HTTP layer's "validate" route can
// call before anything is started.
type PreflightReport struct {
	SourceExists      bool
	DestinationExists bool
	MatchedTopLevel   int  // files directly under source_root that match a pattern
	NoMatches         bool // true iff source_root has top-level files but none match
}

// Preflight stats both roots and reports whether the configured patterns
// currently match anything, without starting an engine or touching
// history/retention state.
func Preflight(c *SyncConfiguration) (PreflightReport, error) {
	var rep PreflightReport

	if info, err := os.Stat(c.SourceRoot); err == nil && info.IsDir() {
		rep.SourceExists = true
	}
	if info, err := os.Stat(c.DestinationRoot); err == nil && info.IsDir() {
		rep.DestinationExists = true
	}
	if !rep.SourceExists {
		return rep, nil
	}

	entries, err := os.ReadDir(c.SourceRoot)
	if err != nil {
		return rep, err
	}
	patterns := c.NormalizedPatterns()
	total := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		total++
		if match.Match(filepath.Base(e.Name()), patterns) {
			rep.MatchedTopLevel++
		}
	}
	rep.NoMatches = total > 0 && rep.MatchedTopLevel == 0
	return rep, nil
}
