// Package engine implements spec.md §4.7: the per-configuration sync
// engine state machine orchestrating the observer, pending queue, copier,
// history store, and retention engine.
/*
 * Copyright (c) 2024, filesyncd authors.
 */
package engine

import (
	"sync"
	"time"
)

// State is one of spec.md §3's EngineStatus states.
type State string

const (
	StateIdle     State = "IDLE"
	StateScanning State = "SCANNING"
	StateWaiting  State = "WAITING"
	StateCopying  State = "COPYING"
	StateStopped  State = "STOPPED"
)

// maxRecentEvents bounds SPEC_FULL.md §3's supplemented RecentEvents ring
// buffer: a short human-readable trail of what the engine last did, for an
// operator glancing at a status panel without a log tail.
const maxRecentEvents = 20

// Status is a read-only snapshot of EngineStatus (spec.md §3), safe to
// hand to a callback or web layer without further synchronization.
type Status struct {
	State           State
	CurrentFile     string
	Details         string
	ProgressPercent int
	LastSyncTime    string
	UpdatedAt       string
	RecentEvents    []string
}

// statusBox is the engine's mutex-guarded live status, per §5's "EngineStatus
// is guarded by a per-engine lock; status reads return snapshots."
type statusBox struct {
	mu     sync.Mutex
	status Status
	events []string
}

func newStatusBox() *statusBox {
	return &statusBox{status: Status{State: StateStopped, Details: "Not started", UpdatedAt: nowISO()}}
}

func nowISO() string { return time.Now().UTC().Format(time.RFC3339) }

func (b *statusBox) snapshot() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.status
	s.RecentEvents = append([]string(nil), b.events...)
	return s
}

// set updates state/current-file/details/progress in one step and stamps
// UpdatedAt, matching §4.7's "any state transition updates updated_at".
func (b *statusBox) set(state State, currentFile, details string, progress int) {
	b.mu.Lock()
	b.status.State = state
	b.status.CurrentFile = currentFile
	b.status.Details = details
	b.status.ProgressPercent = progress
	b.status.UpdatedAt = nowISO()
	b.mu.Unlock()
}

func (b *statusBox) setProgress(progress int) {
	b.mu.Lock()
	b.status.ProgressPercent = progress
	b.status.UpdatedAt = nowISO()
	b.mu.Unlock()
}

func (b *statusBox) setLastSync(t string) {
	b.mu.Lock()
	b.status.LastSyncTime = t
	b.mu.Unlock()
}

// event appends a line to the RecentEvents ring buffer, dropping the
// oldest entry once maxRecentEvents is exceeded.
func (b *statusBox) event(line string) {
	b.mu.Lock()
	b.events = append(b.events, line)
	if len(b.events) > maxRecentEvents {
		b.events = b.events[len(b.events)-maxRecentEvents:]
	}
	b.mu.Unlock()
}
