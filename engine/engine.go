package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/coreweave-labs/filesyncd/cmn/cos"
	"github.com/coreweave-labs/filesyncd/cmn/nlog"
	"github.com/coreweave-labs/filesyncd/config"
	"github.com/coreweave-labs/filesyncd/coordinator"
	"github.com/coreweave-labs/filesyncd/history"
	"github.com/coreweave-labs/filesyncd/pending"
	"github.com/coreweave-labs/filesyncd/retention"
	"github.com/coreweave-labs/filesyncd/stats"
	"github.com/coreweave-labs/filesyncd/watch"
)

// StatusCallback is invoked synchronously, on the goroutine that changed
// the status, each time the engine publishes a status update, per spec.md
// §6's "(config_id, is_running, EngineStatus) -> void". Run's failure
// paths and its "Starting watcher..." step set the status without
// publishing. A panic inside the callback is recovered, logged, and never
// propagated (§7's "Callback failure" row).
type StatusCallback func(configID int64, isRunning bool, status Status)

// Engine is the per-configuration sync engine of spec.md §4.7.
type Engine struct {
	cfg   *config.SyncConfiguration
	coord *coordinator.Coordinator
	cb    StatusCallback

	status *statusBox
	queue  *pending.Queue
	hist   history.Map
	histMu sync.Mutex

	existing   map[string]int64 // existing-backups index: dest-relative -> size
	existingMu sync.Mutex

	observer *watch.Observer
	stats    *stats.Tracker

	runID string // correlation id for this Run's log lines, stamped fresh each start

	cancel     chan struct{}
	cancelOnce sync.Once
	done       chan struct{}
	rescanNow  chan struct{}
}

// New constructs an Engine for cfg. The engine does not start running
// until Run is called.
func New(cfg *config.SyncConfiguration, coord *coordinator.Coordinator, cb StatusCallback) *Engine {
	return &Engine{
		cfg:       cfg,
		coord:     coord,
		cb:        cb,
		status:    newStatusBox(),
		queue:     pending.New(),
		existing:  make(map[string]int64),
		cancel:    make(chan struct{}),
		done:      make(chan struct{}),
		rescanNow: make(chan struct{}, 1),
	}
}

// SetStats wires a shared metrics tracker into the engine. Must be called
// before Run; nil (the default) disables metric updates entirely.
func (e *Engine) SetStats(t *stats.Tracker) { e.stats = t }

// Status returns a snapshot of the engine's current EngineStatus.
func (e *Engine) Status() Status { return e.status.snapshot() }

// Done is closed once the engine's loop goroutine has fully exited,
// letting the supervisor join with a timeout per spec.md §4.9.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Cancelled satisfies coordinator.CancelSignal.
func (e *Engine) Cancelled() bool {
	select {
	case <-e.cancel:
		return true
	default:
		return false
	}
}

// Run validates cfg, starts the observer, performs the initial retention
// pass and seed scan, and launches the engine's event loop. It returns
// synchronously with an error if validation or observer startup fails; in
// both cases the engine is left in STOPPED with the reason in Details, per
// spec.md §4.7's first transition row.
func (e *Engine) Run() error {
	e.runID = cos.GenUUID()
	nlog.Infof("engine[%d] run %s: starting", e.cfg.ID, e.runID)

	if err := e.cfg.Validate(); err != nil {
		e.status.set(StateStopped, "", err.Error(), 0)
		return err
	}

	// destination_root is created on first use, per spec.md §3's invariant
	// and SPEC_FULL.md's supplemented auto-create behavior.
	if err := cos.CreateDir(e.cfg.DestinationRoot); err != nil {
		details := fmt.Sprintf("failed to create destination_root: %v", err)
		e.status.set(StateStopped, "", details, 0)
		return err
	}

	e.hist = history.Load(e.cfg.DestinationRoot)
	e.loadExistingIndex()

	e.status.set(StateScanning, "", "Starting watcher...", 0)

	obs := watch.New(e.cfg.SourceRoot)
	if err := obs.Start(); err != nil {
		details := fmt.Sprintf("failed to start watcher: %v", err)
		e.status.set(StateStopped, "", details, 0)
		return err
	}
	e.observer = obs

	e.applyRetention()
	e.initialScan()

	nlog.Infof("engine[%d] run %s: started", e.cfg.ID, e.runID)
	e.status.event("started")
	e.publish()

	go e.loop()
	return nil
}

// Stop signals cancellation; the loop goroutine releases/abandons any held
// coordinator slot, stops the observer, and closes Done. Idempotent.
func (e *Engine) Stop() {
	e.cancelOnce.Do(func() { close(e.cancel) })
}

// TriggerRescan is SPEC_FULL.md §3's supplemented operator-initiated
// rescan: it schedules an immediate full walk of source_root on the
// engine's own goroutine, without waiting for scan_interval_minutes.
func (e *Engine) TriggerRescan() {
	select {
	case e.rescanNow <- struct{}{}:
	default:
	}
}

func (e *Engine) loop() {
	defer close(e.done)
	defer e.shutdown()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	rescanInterval := time.Duration(e.cfg.ScanIntervalMinutes) * time.Minute
	var rescanTimer *time.Timer
	var rescanC <-chan time.Time
	if rescanInterval > 0 {
		rescanTimer = time.NewTimer(rescanInterval) // first rescan deferred one interval, per §4.7
		defer rescanTimer.Stop()
		rescanC = rescanTimer.C
	}

	for {
		select {
		case <-e.cancel:
			return
		case fe, ok := <-e.observer.Files():
			if !ok {
				return
			}
			e.registerPath(fe.Path)
		case de, ok := <-e.observer.Deletes():
			if !ok {
				return
			}
			e.handleDelete(de.Path)
		case <-e.rescanNow:
			e.rescanAll()
		case <-rescanC:
			e.rescanAll()
			rescanTimer.Reset(rescanInterval)
		case <-ticker.C:
			e.tick()
		}
	}
}

// shutdown releases any coordinator hold, stops the observer, and records
// the STOPPED transition, per spec.md §4.7's "any -> stop()/cancel" row.
func (e *Engine) shutdown() {
	e.coord.Abandon(e.cfg.SourceRoot, e.cfg.ID)
	if e.observer != nil {
		e.observer.Stop()
	}
	e.status.set(StateStopped, "", "Stopped", e.status.snapshot().ProgressPercent)
	e.status.event("stopped")
	e.publish()
	nlog.Infof("engine[%d] run %s: stopped", e.cfg.ID, e.runID)
}

// publish hands a status snapshot to the caller's callback, recovering and
// logging any panic so a misbehaving listener can never bring the engine
// down, per spec.md §7's "Callback failure" row.
func (e *Engine) publish() {
	if e.cb == nil {
		return
	}
	snap := e.status.snapshot()
	isRunning := snap.State != StateStopped
	defer func() {
		if r := recover(); r != nil {
			nlog.Warningf("engine[%d]: status callback panicked: %v", e.cfg.ID, r)
		}
	}()
	e.cb(e.cfg.ID, isRunning, snap)
}

func (e *Engine) loadExistingIndex() {
	e.existingMu.Lock()
	defer e.existingMu.Unlock()
	_ = filepath.WalkDir(e.cfg.DestinationRoot, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel := history.Key(e.cfg.DestinationRoot, p)
		if info, ierr := d.Info(); ierr == nil {
			e.existing[rel] = info.Size()
		}
		return nil
	})
}

func (e *Engine) destExistingSize(relKey string) (int64, bool) {
	e.existingMu.Lock()
	defer e.existingMu.Unlock()
	sz, ok := e.existing[relKey]
	return sz, ok
}

func (e *Engine) setExisting(relKey string, size int64) {
	e.existingMu.Lock()
	e.existing[relKey] = size
	e.existingMu.Unlock()
}

func (e *Engine) dropExisting(relKey string) {
	e.existingMu.Lock()
	delete(e.existing, relKey)
	e.existingMu.Unlock()
}

func (e *Engine) persistHistoryIfChanged(changed bool) {
	if !changed {
		return
	}
	e.histMu.Lock()
	snapshot := make(history.Map, len(e.hist))
	for k, v := range e.hist {
		snapshot[k] = v
	}
	e.histMu.Unlock()
	history.Save(e.cfg.DestinationRoot, snapshot)
}

func (e *Engine) applyRetention() {
	e.histMu.Lock()
	removed, changed, errs := retention.Apply(e.cfg, e.cfg.DestinationRoot, e.hist)
	e.histMu.Unlock()
	if errs.Cnt() > 0 {
		nlog.Warningf("engine[%d]: retention pass: %v", e.cfg.ID, errs.Error())
	}
	e.incRetentionDeletions(removed)
	e.persistHistoryIfChanged(changed)
}
