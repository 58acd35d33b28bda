package engine

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/coreweave-labs/filesyncd/cmn/cos"
	"github.com/coreweave-labs/filesyncd/config"
	"github.com/coreweave-labs/filesyncd/history"
	"github.com/coreweave-labs/filesyncd/match"
)

type scannedFile struct {
	path  string
	size  int64
	mtime time.Time
}

// walkSourceRoot lists every regular file under source_root whose leaf
// matches cfg's patterns, for the initial scan and periodic rescan of
// spec.md §4.7.
func (e *Engine) walkSourceRoot() []scannedFile {
	patterns := e.cfg.NormalizedPatterns()
	var out []scannedFile
	_ = filepath.WalkDir(e.cfg.SourceRoot, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !match.Match(d.Name(), patterns) {
			return nil
		}
		info, ierr := d.Info()
		if ierr != nil {
			return nil
		}
		out = append(out, scannedFile{path: p, size: info.Size(), mtime: info.ModTime()})
		return nil
	})
	return out
}

// initialScan seeds the pending queue from a full walk of source_root at
// startup, capped to the retention_value newest entries under "count"
// retention, per spec.md §4.7's run() row.
func (e *Engine) initialScan() {
	files := e.walkSourceRoot()
	if e.cfg.RetentionMode == config.RetentionCount && e.cfg.RetentionValue > 0 && len(files) > e.cfg.RetentionValue {
		sort.Slice(files, func(i, j int) bool { return files[i].mtime.After(files[j].mtime) })
		files = files[:e.cfg.RetentionValue]
	}
	for _, f := range files {
		e.registerScanned(f)
	}
	e.status.event("initial scan complete")
}

// rescanAll performs an uncapped full walk, registering any new or changed
// matching file — the periodic rescan spec.md §9 calls load-bearing for
// catching events the observer missed, duplicated, or reordered.
func (e *Engine) rescanAll() {
	for _, f := range e.walkSourceRoot() {
		e.registerScanned(f)
	}
}

// registerPath is the observer-driven entry point: it stats path itself
// before applying the same registration rules as registerScanned.
func (e *Engine) registerPath(path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}
	if !match.Match(filepath.Base(path), e.cfg.NormalizedPatterns()) {
		return
	}
	e.registerScanned(scannedFile{path: path, size: info.Size(), mtime: info.ModTime()})
}

// registerScanned applies spec.md §4.6's registration rules: reject paths
// outside source_root, skip files already mirrored at the same size, else
// upsert into the pending queue.
func (e *Engine) registerScanned(f scannedFile) {
	if _, ok := cos.ToPosixRel(e.cfg.SourceRoot, f.path); !ok {
		return
	}
	relKey := history.Key(e.cfg.DestinationRoot, destPathFor(e.cfg, f.path))
	if sz, ok := e.destExistingSize(relKey); ok && sz == f.size {
		return // already mirrored at this size
	}
	e.queue.Register(f.path, f.size, f.mtime)
	snap := e.status.snapshot()
	if snap.State == StateIdle || snap.State == StateStopped {
		e.status.set(StateScanning, "", "Watching for file changes...", snap.ProgressPercent)
		e.publish()
	}
}

// destPathFor computes the overwrite-mode destination path for a source
// file, used only to derive the existing-backups index key — the copier
// computes the authoritative (possibly timestamp-suffixed) path itself.
func destPathFor(cfg *config.SyncConfiguration, sourceFile string) string {
	rel, ok := cos.ToPosixRel(cfg.SourceRoot, sourceFile)
	if !ok {
		rel = filepath.Base(sourceFile)
	}
	return filepath.Join(cfg.DestinationRoot, filepath.FromSlash(rel))
}
