package engine

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/coreweave-labs/filesyncd/cmn/cos"
	"github.com/coreweave-labs/filesyncd/cmn/nlog"
	"github.com/coreweave-labs/filesyncd/config"
	"github.com/coreweave-labs/filesyncd/copier"
	"github.com/coreweave-labs/filesyncd/history"
	"github.com/coreweave-labs/filesyncd/pending"
)

// copyOne drives a single stabilized file through spec.md §4.6's copy
// step: already-mirrored short-circuit, coordinator acquire, the copy
// itself, then history/retention/queue bookkeeping. Every exit path
// releases the coordinator slot once acquired, and every exit path except
// a cancelled copy removes the file from the queue.
func (e *Engine) copyOne(f pending.File) {
	relKey := history.Key(e.cfg.DestinationRoot, destPathFor(e.cfg, f.Path))

	destSize, destExists := e.destExistingSize(relKey)
	if destExists && destSize == f.LastSize {
		e.queue.Remove(f.Path)
		return
	}
	overwrite := e.cfg.RetentionMode == config.RetentionSync || (destExists && destSize != f.LastSize)

	waitStart := time.Now()
	acquired := e.coord.Acquire(e.cfg.SourceRoot, e.cfg.ID, e, func(blockerID int64) {
		e.status.set(StateWaiting, f.Path, waitingDetails(blockerID), e.status.snapshot().ProgressPercent)
		e.publish()
	})
	e.observeCoordinatorWait(time.Since(waitStart))
	if !acquired {
		e.queue.Remove(f.Path)
		return
	}
	defer e.coord.Release(e.cfg.SourceRoot, e.cfg.ID)

	e.status.set(StateCopying, f.Path, "Copying...", e.status.snapshot().ProgressPercent)
	e.publish()

	var lastPublishedPct int
	progress := func(name string, copied, total int64) {
		pct := e.queue.ProgressPercent(copied)
		if pct != lastPublishedPct {
			lastPublishedPct = pct
			e.status.set(StateCopying, f.Path, "Copying "+name, pct)
			e.publish()
		}
	}

	cancelCh := make(chan struct{})
	stopWatch := make(chan struct{})
	go func() {
		select {
		case <-e.cancel:
			close(cancelCh)
		case <-stopWatch:
		}
	}()

	result, err := copier.Copy(f.Path, e.cfg.DestinationRoot, e.cfg.SourceRoot, overwrite, progress, cancelCh)
	close(stopWatch)

	if err != nil {
		if cos.IsErrCancelled(err) {
			nlog.Infof("engine[%d]: copy of %q cancelled, .part preserved", e.cfg.ID, f.Path)
			return
		}
		nlog.Warningf("engine[%d]: copy of %q failed: %v", e.cfg.ID, f.Path, err)
		e.queue.Remove(f.Path)
		e.incCopyError()
		return
	}

	e.queue.Remove(f.Path)

	switch result.Outcome {
	case copier.Skipped:
		e.setExisting(relKey, result.BytesCopied)
		e.queue.AddCompleted(result.BytesCopied)
	case copier.Published:
		e.setExisting(relKey, result.BytesCopied)
		e.queue.AddCompleted(result.BytesCopied)

		ts := history.Now()
		e.histMu.Lock()
		e.hist[relKey] = ts
		e.histMu.Unlock()
		e.status.setLastSync(ts)
		e.status.event("copied " + relKey)
		e.incFilesCopied(result.BytesCopied)

		e.applyRetention()
	}
}

func waitingDetails(blockerID int64) string {
	return "waiting on configuration " + strconv.FormatInt(blockerID, 10) + " to release the shared source"
}

// handleDelete mirrors a source-side deletion to the destination when
// retention_mode is "sync", per spec.md §4.7's deletion-mirroring rule.
// Every other mode drains and ignores delete events.
func (e *Engine) handleDelete(sourcePath string) {
	if e.cfg.RetentionMode != config.RetentionSync {
		return
	}
	rel, ok := cos.ToPosixRel(e.cfg.SourceRoot, sourcePath)
	if !ok {
		rel = filepath.Base(sourcePath)
	}
	target := filepath.Join(e.cfg.DestinationRoot, filepath.FromSlash(rel))

	info, err := os.Stat(target)
	if err != nil || info.IsDir() {
		return
	}
	if err := os.Remove(target); err != nil {
		nlog.Warningf("engine[%d]: deletion mirror for %q: %v", e.cfg.ID, target, err)
		return
	}

	relKey := history.Key(e.cfg.DestinationRoot, target)
	e.histMu.Lock()
	delete(e.hist, relKey)
	e.histMu.Unlock()
	e.dropExisting(relKey)
	e.persistHistoryIfChanged(true)
	e.status.event("deleted " + relKey)
	e.publish()
}
