package engine

import (
	"os"
	"strconv"

	"github.com/coreweave-labs/filesyncd/cmn/cos"
	"github.com/coreweave-labs/filesyncd/config"
	"github.com/coreweave-labs/filesyncd/pending"
)

// reportQueueMetrics publishes the pending queue's current depth and byte
// total as gauges, when a Tracker is wired in.
func (e *Engine) reportQueueMetrics() {
	if e.stats == nil {
		return
	}
	id := strconv.FormatInt(e.cfg.ID, 10)
	e.stats.QueueDepth.WithLabelValues(id).Set(float64(e.queue.Len()))
	e.stats.QueueBytes.WithLabelValues(id).Set(float64(e.queue.TotalBytes()))
}

// tick advances the debounce timers (spec.md §4.6) and copies every file
// that has become stable.
func (e *Engine) tick() {
	e.debounce()
	e.reportQueueMetrics()

	var eligible []pending.File
	if e.cfg.RetentionMode == config.RetentionCount {
		eligible = e.queue.StableNewestFirst(e.cfg.SettleSeconds)
	} else {
		eligible = e.queue.Stable(e.cfg.SettleSeconds)
	}

	if len(eligible) == 0 {
		if e.queue.Len() == 0 {
			snap := e.status.snapshot()
			if snap.State != StateStopped {
				e.status.set(StateIdle, "", "Watching for file changes...", 0)
				e.queue.ResetCompleted()
				e.publish()
			}
		}
		return
	}

	for _, f := range eligible {
		if e.Cancelled() {
			return
		}
		e.copyOne(f)
	}

	if e.queue.Len() == 0 {
		e.status.set(StateIdle, "", "Watching for file changes...", 0)
		e.queue.ResetCompleted()
		e.publish()
	}
}

// debounce re-stats every pending entry: missing files are dropped,
// changed ones reset their stability window, per spec.md §4.6.
func (e *Engine) debounce() {
	for _, f := range e.queue.Snapshot() {
		info, err := os.Stat(f.Path)
		if err != nil {
			if cos.IsNotExist(err) {
				e.queue.Remove(f.Path)
				continue
			}
			continue // transient stat error: leave the entry, retry next tick
		}
		if info.Size() != f.LastSize || !info.ModTime().Equal(f.LastMtime) {
			e.queue.Register(f.Path, info.Size(), info.ModTime())
		}
	}
}
