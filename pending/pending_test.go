package pending_test

import (
	"testing"
	"time"

	"github.com/coreweave-labs/filesyncd/pending"
)

func TestRegisterNewEntryAddsBytes(t *testing.T) {
	q := pending.New()
	q.Register("a.bak", 100, time.Now())
	if got := q.TotalBytes(); got != 100 {
		t.Fatalf("TotalBytes() = %d, want 100", got)
	}
	if q.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", q.Len())
	}
}

func TestRegisterUnchangedIsNoop(t *testing.T) {
	q := pending.New()
	mtime := time.Now()
	q.Register("a.bak", 100, mtime)
	time.Sleep(5 * time.Millisecond)
	q.Register("a.bak", 100, mtime)
	stable := q.Stable(0)
	if len(stable) != 1 {
		t.Fatalf("expected one stable entry, got %d", len(stable))
	}
}

func TestRegisterChangedResetsStability(t *testing.T) {
	q := pending.New()
	mtime := time.Now()
	q.Register("a.bak", 100, mtime)
	time.Sleep(20 * time.Millisecond)
	// stable after 20ms at a 0s threshold
	if len(q.Stable(0)) != 1 {
		t.Fatal("expected entry to be stable")
	}
	// size changes: stability resets, so a non-zero threshold finds nothing yet
	q.Register("a.bak", 200, mtime.Add(time.Second))
	if got := q.TotalBytes(); got != 200 {
		t.Fatalf("TotalBytes() = %d, want 200 after growth", got)
	}
	stable := q.Stable(1) // 1 second threshold: just-reset entry isn't stable
	if len(stable) != 0 {
		t.Fatalf("expected no stable entries immediately after change, got %d", len(stable))
	}
}

func TestRemoveSubtractsBytes(t *testing.T) {
	q := pending.New()
	q.Register("a.bak", 100, time.Now())
	q.Register("b.bak", 50, time.Now())
	q.Remove("a.bak")
	if got := q.TotalBytes(); got != 50 {
		t.Fatalf("TotalBytes() = %d, want 50", got)
	}
	if q.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", q.Len())
	}
}

func TestStableNewestFirstOrdering(t *testing.T) {
	q := pending.New()
	base := time.Now().Add(-time.Hour)
	q.Register("old", 10, base)
	q.Register("new", 10, base.Add(time.Minute))
	q.Register("newest", 10, base.Add(2*time.Minute))

	out := q.StableNewestFirst(0)
	if len(out) != 3 {
		t.Fatalf("expected 3 stable entries, got %d", len(out))
	}
	if out[0].Path != "newest" || out[1].Path != "new" || out[2].Path != "old" {
		t.Fatalf("unexpected order: %+v", out)
	}
}

func TestProgressPercent(t *testing.T) {
	q := pending.New()
	q.Register("a.bak", 100, time.Now())
	q.Register("b.bak", 100, time.Now())
	if got := q.ProgressPercent(0); got != 0 {
		t.Fatalf("ProgressPercent(0) = %d, want 0", got)
	}
	if got := q.ProgressPercent(100); got != 50 {
		t.Fatalf("ProgressPercent(100) = %d, want 50", got)
	}
	q.AddCompleted(100)
	if got := q.ProgressPercent(100); got != 100 {
		t.Fatalf("ProgressPercent after AddCompleted = %d, want 100", got)
	}
}

func TestProgressPercentEmptyQueueIsComplete(t *testing.T) {
	q := pending.New()
	if got := q.ProgressPercent(0); got != 100 {
		t.Fatalf("ProgressPercent() on empty queue = %d, want 100", got)
	}
}
