// Package supervisor implements spec.md §4.9: lifecycle management
// (start/stop/restart/resume_all/status) for the set of active sync
// engines, replacing the ambient "sync_managers" global with an explicit,
// injectable owner the way the teacher's xreg registry replaces package
// globals with an explicit struct.
/*
 * Copyright (c) 2024, filesyncd authors.
 */
package supervisor

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/coreweave-labs/filesyncd/cmn/nlog"
	"github.com/coreweave-labs/filesyncd/config"
	"github.com/coreweave-labs/filesyncd/coordinator"
	"github.com/coreweave-labs/filesyncd/engine"
)

// joinTimeout is spec.md §4.9's "joins the worker with a 2s timeout".
const joinTimeout = 2 * time.Second

// Supervisor owns every active engine, keyed by configuration id, and the
// single process-wide copy coordinator they share.
type Supervisor struct {
	mu      sync.Mutex // coarse lock over engines, per §5's shared-resource policy
	coord   *coordinator.Coordinator
	engines map[int64]*engine.Engine
	cb      engine.StatusCallback
}

// New creates a Supervisor. cb, if non-nil, is wired into every engine it
// starts so all status callbacks flow through one place.
func New(cb engine.StatusCallback) *Supervisor {
	return &Supervisor{
		coord:   coordinator.New(),
		engines: make(map[int64]*engine.Engine),
		cb:      cb,
	}
}

// Start rejects a double-start for the same id, validates cfg up front via
// Engine.Run, and registers the engine on success.
func (s *Supervisor) Start(cfg *config.SyncConfiguration) (ok bool, reason string) {
	s.mu.Lock()
	if _, exists := s.engines[cfg.ID]; exists {
		s.mu.Unlock()
		return false, fmt.Sprintf("configuration %d is already running", cfg.ID)
	}
	e := engine.New(cfg, s.coord, s.cb)
	s.engines[cfg.ID] = e
	s.mu.Unlock()

	if err := e.Run(); err != nil {
		s.mu.Lock()
		delete(s.engines, cfg.ID)
		s.mu.Unlock()
		return false, err.Error()
	}
	return true, ""
}

// Stop signals id's engine to stop and joins it with a 2s timeout, per
// spec.md §4.9 and §5. preserveDB mirrors the "caller requests
// DB-preserving stop" option: the core never touches persistence either
// way, so it is accepted purely as a pass-through signal for the external
// store's own is_active bookkeeping and otherwise ignored here.
func (s *Supervisor) Stop(id int64, preserveDB bool) (ok bool, reason string) {
	_ = preserveDB
	s.mu.Lock()
	e, exists := s.engines[id]
	if !exists {
		s.mu.Unlock()
		return false, fmt.Sprintf("configuration %d is not running", id)
	}
	delete(s.engines, id)
	s.mu.Unlock()

	e.Stop()
	select {
	case <-e.Done():
	case <-time.After(joinTimeout):
		nlog.Warningf("supervisor: engine %d did not stop within %s", id, joinTimeout)
	}
	return true, ""
}

// Restart stops id if running, then starts it with cfg — used both for an
// explicit restart request and for "the engine was running when an edit
// was saved", per spec.md §4.9.
func (s *Supervisor) Restart(cfg *config.SyncConfiguration) (ok bool, reason string) {
	s.Stop(cfg.ID, true)
	return s.Start(cfg)
}

// ResumeAll starts every configuration in active concurrently, via
// errgroup, matching spec.md §4.9's boot-time "enumerate active
// configurations and start(config) each" — concurrent because a slow or
// misconfigured source_root on one configuration must not delay the rest.
func (s *Supervisor) ResumeAll(active []*config.SyncConfiguration) map[int64]string {
	var mu sync.Mutex
	failures := make(map[int64]string)

	var g errgroup.Group
	for _, cfg := range active {
		cfg := cfg
		g.Go(func() error {
			if ok, reason := s.Start(cfg); !ok {
				mu.Lock()
				failures[cfg.ID] = reason
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait() // Start never returns an error value; failures are collected above
	return failures
}

// Status returns id's engine status, or the zero Status and false if it
// isn't running.
func (s *Supervisor) Status(id int64) (engine.Status, bool) {
	s.mu.Lock()
	e, exists := s.engines[id]
	s.mu.Unlock()
	if !exists {
		return engine.Status{}, false
	}
	return e.Status(), true
}

// TriggerRescan forwards SPEC_FULL.md's supplemented rescan operation to
// id's engine, if running.
func (s *Supervisor) TriggerRescan(id int64) bool {
	s.mu.Lock()
	e, exists := s.engines[id]
	s.mu.Unlock()
	if !exists {
		return false
	}
	e.TriggerRescan()
	return true
}

// StopAll stops every running engine concurrently with the same 2s join
// timeout as Stop, for process shutdown/restart per spec.md §5: "supervisor
// stops all engines (no DB write), waits briefly, then exits."
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	ids := make([]int64, 0, len(s.engines))
	for id := range s.engines {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Stop(id, true)
		}()
	}
	wg.Wait()
}
