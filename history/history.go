// Package history implements spec.md §4.2: a durable map from
// destination-relative POSIX path to the UTC ISO-8601 timestamp of that
// path's last successful sync, stored at
// <destination>/.history/sync_history.json.
/*
 * Copyright (c) 2024, filesyncd authors.
 */
package history

import (
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/coreweave-labs/filesyncd/cmn/cos"
	"github.com/coreweave-labs/filesyncd/cmn/fname"
	"github.com/coreweave-labs/filesyncd/cmn/nlog"
)

// Map is the in-memory rendering of sync_history.json.
type Map map[string]string

// TimeLayout is the UTC ISO-8601 form every history value is written and
// parsed in.
const TimeLayout = time.RFC3339

func dir(destination string) string  { return filepath.Join(destination, fname.HistoryDir) }
func path(destination string) string { return filepath.Join(dir(destination), fname.HistoryFile) }

// Load opens <destination>/.history/sync_history.json. A missing file,
// malformed JSON, or a JSON value that isn't an object all yield an empty
// map with a warning logged — history is best-effort, never fatal, per
// spec.md §4.2 and §7's "History corruption" row.
func Load(destination string) Map {
	b, err := os.ReadFile(path(destination))
	if err != nil {
		if !cos.IsNotExist(err) {
			nlog.Warningf("history: read %q: %v", path(destination), err)
		}
		return Map{}
	}
	var m Map
	if err := jsoniter.Unmarshal(b, &m); err != nil || m == nil {
		nlog.Warningf("history: discarding unparseable history at %q: %v", path(destination), err)
		return Map{}
	}
	return m
}

// Save writes m to <destination>/.history/sync_history.json via a
// temp-file-plus-rename, so a reader never observes a partially written
// file. Failures are logged and swallowed: the next successful Save
// restores durability, per spec.md §4.2.
func Save(destination string, m Map) {
	if err := save(destination, m); err != nil {
		nlog.Warningf("history: save for %q failed (best-effort, will retry next sync): %v", destination, err)
	}
}

func save(destination string, m Map) error {
	d := dir(destination)
	if err := cos.CreateDir(d); err != nil {
		return err
	}
	b, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(d, ".sync_history.*.json.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return cos.RenameFile(tmpName, path(destination))
}

// Key canonicalizes path as a destination-relative POSIX string, per
// spec.md §4.2: if path is outside destination, it falls back to just the
// leaf name so every path still maps to *some* history key (spec.md §9's
// "None-is-first-use" total-function requirement).
func Key(destination, p string) string {
	if rel, ok := cos.ToPosixRel(destination, p); ok {
		return rel
	}
	return filepath.Base(p)
}

// Now formats the current instant the way every history value is stored.
func Now() string { return time.Now().UTC().Format(TimeLayout) }

// Parse reads a stored history timestamp back into a time.Time; ok is false
// for anything that doesn't parse, so callers can fall back to mtime per
// spec.md §4.4.
func Parse(s string) (t time.Time, ok bool) {
	t, err := time.Parse(TimeLayout, s)
	return t, err == nil
}
