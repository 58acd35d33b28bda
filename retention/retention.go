// Package retention implements spec.md §4.4: enforcing the days/count/sync
// retention policy on destination entries matching a configuration's
// patterns.
/*
 * Copyright (c) 2024, filesyncd authors.
 */
package retention

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/coreweave-labs/filesyncd/cmn/cos"
	"github.com/coreweave-labs/filesyncd/cmn/fname"
	"github.com/coreweave-labs/filesyncd/cmn/nlog"
	"github.com/coreweave-labs/filesyncd/config"
	"github.com/coreweave-labs/filesyncd/history"
	"github.com/coreweave-labs/filesyncd/match"
)

// entry is one candidate for retention: a destination-relative path plus
// the effective timestamp spec.md's GLOSSARY defines (history value if
// present and parseable, else the newest mtime found under the entry).
type entry struct {
	relKey string // history key / destination-relative POSIX path
	path   string // absolute path on disk
	isDir  bool
	ts     time.Time
}

// Apply enforces cfg's retention policy against destinationRoot and hist,
// mutating hist in place (removing keys for anything deleted) and
// returning whether hist changed, so the caller knows whether to persist
// it. Per spec.md §4.4, "sync" mode is a no-op here — deletion under that
// mode is driven by source-side delete events instead (Engine.handleDelete
// in engine/copy.go).
func Apply(cfg *config.SyncConfiguration, destinationRoot string, hist history.Map) (removed int, changed bool, errs *cos.Errs) {
	errs = &cos.Errs{}
	if cfg.RetentionMode == config.RetentionSync {
		return 0, false, errs
	}
	if cfg.RetentionValue <= 0 {
		return 0, false, errs
	}

	entries := scan(destinationRoot, cfg.NormalizedPatterns(), hist, errs)

	var toDelete []entry
	switch cfg.RetentionMode {
	case config.RetentionDays:
		threshold := time.Now().UTC().AddDate(0, 0, -cfg.RetentionValue)
		for _, e := range entries {
			if e.ts.Before(threshold) {
				toDelete = append(toDelete, e)
			}
		}
	case config.RetentionCount:
		if len(entries) <= cfg.RetentionValue {
			break
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].ts.After(entries[j].ts) })
		toDelete = append(toDelete, entries[cfg.RetentionValue:]...)
	}

	for _, e := range toDelete {
		if err := remove(e); err != nil {
			errs.Add(err)
			nlog.Warningf("retention: failed to remove %q: %v", e.path, err)
			continue
		}
		removed++
		if _, ok := hist[e.relKey]; ok {
			delete(hist, e.relKey)
			changed = true
		}
		if e.isDir && dropHistoryPrefix(hist, e.relKey+"/") {
			changed = true
		}
	}
	return removed, changed, errs
}

// dropHistoryPrefix removes every history key nested under a removed
// directory entry, so a days/count deletion of a directory doesn't orphan
// the history keys of the files that were nested under it.
func dropHistoryPrefix(hist history.Map, prefix string) bool {
	changed := false
	for k := range hist {
		if strings.HasPrefix(k, prefix) {
			delete(hist, k)
			changed = true
		}
	}
	return changed
}

// scan walks only the top level of destinationRoot (skipping .history) and
// builds one entry per matching name, treating both regular files and
// directories as countable candidates per spec.md §4.4's "directory as
// countable entry" reading. A matched directory counts and deletes as a
// single entry keyed by its own name; removal also sweeps every history key
// nested under that name (dropHistoryPrefix above) so files that lived
// under a deleted directory don't leave orphaned history entries behind.
func scan(destinationRoot string, patterns []string, hist history.Map, errs *cos.Errs) []entry {
	var out []entry
	topEntries, err := os.ReadDir(destinationRoot)
	if err != nil {
		errs.Add(err)
		return out
	}
	for _, de := range topEntries {
		if de.Name() == fname.HistoryDir {
			continue
		}
		if !match.Match(de.Name(), patterns) {
			continue
		}
		full := filepath.Join(destinationRoot, de.Name())
		e := entry{relKey: history.Key(destinationRoot, full), path: full, isDir: de.IsDir()}
		e.ts = effectiveTimestamp(full, de.IsDir(), hist[e.relKey], errs)
		out = append(out, e)
	}
	return out
}

// effectiveTimestamp implements the GLOSSARY's "Effective timestamp":
// history value if present and parseable, else the newest mtime found
// under the entry (recursive max for directories, own mtime for files; an
// empty directory uses its own mtime).
func effectiveTimestamp(path string, isDir bool, historyValue string, errs *cos.Errs) time.Time {
	if historyValue != "" {
		if t, ok := history.Parse(historyValue); ok {
			return t
		}
	}
	if !isDir {
		if info, err := os.Stat(path); err == nil {
			return info.ModTime()
		}
		return time.Time{}
	}
	var maxT time.Time
	err := filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // best-effort: skip unreadable children, keep scanning
		}
		if p == path {
			return nil // only what lies under the directory counts
		}
		if info.ModTime().After(maxT) {
			maxT = info.ModTime()
		}
		return nil
	})
	if err != nil {
		errs.Add(err)
	}
	if maxT.IsZero() {
		// empty directory: fall back to its own mtime
		if info, serr := os.Stat(path); serr == nil {
			maxT = info.ModTime()
		}
	}
	return maxT
}

func remove(e entry) error {
	if e.isDir {
		return cos.RemoveAllRetrying(e.path)
	}
	if err := os.Remove(e.path); err != nil && !cos.IsNotExist(err) {
		return err
	}
	return nil
}
