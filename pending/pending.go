// Package pending implements spec.md §3's PendingFile lifecycle and §4.6's
// debounce/settle bookkeeping. It is pure in-memory state: the engine is
// responsible for stat'ing the filesystem and feeding observed
// (size, mtime) pairs in; this package only tracks stability and totals.
/*
 * Copyright (c) 2024, filesyncd authors.
 */
package pending

import (
	"sort"
	"sync"
	"time"

	"github.com/coreweave-labs/filesyncd/cmn/mono"
)

// File is one entry in the engine's pending queue, per spec.md §3.
type File struct {
	Path        string
	LastSize    int64
	LastMtime   time.Time
	StableSince int64 // mono.NanoTime() reading
}

// stableFor reports how long the entry has held its current (size, mtime).
func (f File) stableFor() time.Duration { return mono.Since(f.StableSince) }

// Queue is one engine's pending-file set plus the running byte totals that
// drive EngineStatus.ProgressPercent.
type Queue struct {
	mu             sync.Mutex
	files          map[string]*File
	totalBytes     int64
	completedBytes int64
}

func New() *Queue { return &Queue{files: make(map[string]*File)} }

// Register inserts or updates the entry for path. A brand-new path, or one
// whose (size, mtime) changed since last seen, resets StableSince to now —
// duplicates from repeated observation of an unchanged file are coalesced
// into a no-op, per spec.md §4.6.
func (q *Queue) Register(path string, size int64, mtime time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if f, ok := q.files[path]; ok {
		if f.LastSize == size && f.LastMtime.Equal(mtime) {
			return // unchanged: no reset, no byte-total adjustment
		}
		q.totalBytes += size - f.LastSize
		f.LastSize, f.LastMtime, f.StableSince = size, mtime, mono.NanoTime()
		return
	}
	q.files[path] = &File{Path: path, LastSize: size, LastMtime: mtime, StableSince: mono.NanoTime()}
	q.totalBytes += size
}

// Remove drops path from the queue (file gone, copied, or skipped),
// subtracting its last known size from the running total.
func (q *Queue) Remove(path string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if f, ok := q.files[path]; ok {
		q.totalBytes -= f.LastSize
		delete(q.files, path)
	}
}

// Snapshot returns a point-in-time copy of every pending entry, for the
// engine to re-stat against the live filesystem on its ~1s tick.
func (q *Queue) Snapshot() []File {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]File, 0, len(q.files))
	for _, f := range q.files {
		out = append(out, *f)
	}
	return out
}

// Stable returns entries whose (size, mtime) has held for at least
// settleSeconds, in insertion-agnostic (map iteration) order — the default
// ordering for every retention mode except "count".
func (q *Queue) Stable(settleSeconds int) []File {
	q.mu.Lock()
	defer q.mu.Unlock()
	threshold := time.Duration(settleSeconds) * time.Second
	out := make([]File, 0)
	for _, f := range q.files {
		if f.stableFor() >= threshold {
			out = append(out, *f)
		}
	}
	return out
}

// StableNewestFirst is Stable sorted by mtime descending, per spec.md
// §4.6's "For count retention the snapshot is sorted by mtime desc so
// newest-first is copied when source count exceeds retention."
func (q *Queue) StableNewestFirst(settleSeconds int) []File {
	out := q.Stable(settleSeconds)
	sort.Slice(out, func(i, j int) bool { return out[i].LastMtime.After(out[j].LastMtime) })
	return out
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.files)
}

func (q *Queue) TotalBytes() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.totalBytes
}

func (q *Queue) CompletedBytes() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.completedBytes
}

// AddCompleted accumulates bytes successfully copied, for the
// ProgressPercent computation in spec.md §4.6 step 4.
func (q *Queue) AddCompleted(n int64) {
	q.mu.Lock()
	q.completedBytes += n
	q.mu.Unlock()
}

// ResetCompleted zeroes the completed-bytes counter, called whenever the
// queue drains back to IDLE so a subsequent batch starts its percentage
// from zero.
func (q *Queue) ResetCompleted() {
	q.mu.Lock()
	q.completedBytes = 0
	q.mu.Unlock()
}

// ProgressPercent computes spec.md §4.6 step 4's whole-batch percentage:
// (completed_bytes_prior + copied_current) / queue_total_bytes.
func (q *Queue) ProgressPercent(copiedCurrent int64) int {
	q.mu.Lock()
	total := q.totalBytes
	completed := q.completedBytes
	q.mu.Unlock()
	if total <= 0 {
		return 100
	}
	pct := float64(completed+copiedCurrent) / float64(total) * 100
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	return int(pct)
}
