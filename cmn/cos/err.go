// Package cos provides common low-level types and utilities shared by the
// sync engine, coordinator, and history store.
/*
 * Copyright (c) 2024, filesyncd authors.
 */
package cos

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"
	ratomic "sync/atomic"
	"syscall"

	"github.com/coreweave-labs/filesyncd/cmn/nlog"
)

type (
	// ErrValidation reports a SyncConfiguration that fails §3's invariants;
	// the supervisor surfaces it to the caller of start() without ever
	// starting an engine.
	ErrValidation struct{ what string }

	// ErrCancelled is returned by the copier when the engine's cancel
	// signal fires mid-copy; the engine branches on it explicitly instead
	// of treating it as a generic failure. (Coordinator.Acquire reports
	// cancellation by returning false, not with this error.)
	ErrCancelled struct{ op string }

	// ErrNotUnderRoot signals that a path escaped its expected root
	// (source_root or destination_root); callers fall back to the leaf
	// name per spec.md §4.2/§4.3.
	ErrNotUnderRoot struct{ path, root string }

	// Errs accumulates up to maxErrs distinct errors from a single
	// retention/rescan pass without aborting it, per spec.md §7's
	// "errors on individual entries are logged and do not abort the scan".
	Errs struct {
		errs []error
		cnt  int64
		mu   sync.Mutex
	}
)

func NewErrValidation(format string, a ...any) *ErrValidation {
	return &ErrValidation{fmt.Sprintf(format, a...)}
}
func (e *ErrValidation) Error() string { return "invalid configuration: " + e.what }

func NewErrCancelled(op string) *ErrCancelled { return &ErrCancelled{op} }
func (e *ErrCancelled) Error() string         { return e.op + ": cancelled" }

func IsErrCancelled(err error) bool {
	var c *ErrCancelled
	return errors.As(err, &c)
}

func NewErrNotUnderRoot(path, root string) *ErrNotUnderRoot {
	return &ErrNotUnderRoot{path, root}
}
func (e *ErrNotUnderRoot) Error() string {
	return fmt.Sprintf("%q is not under root %q", e.path, e.root)
}

const maxErrs = 4

func (e *Errs) Add(err error) {
	if err == nil {
		return
	}
	e.mu.Lock()
	for _, added := range e.errs {
		if added.Error() == err.Error() {
			e.mu.Unlock()
			return
		}
	}
	if len(e.errs) < maxErrs {
		e.errs = append(e.errs, err)
		ratomic.StoreInt64(&e.cnt, int64(len(e.errs)))
	}
	e.mu.Unlock()
}

func (e *Errs) Cnt() int { return int(ratomic.LoadInt64(&e.cnt)) }

func (e *Errs) Error() (s string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.errs) == 0 {
		return ""
	}
	err := e.errs[0]
	if len(e.errs) > 1 {
		return fmt.Sprintf("%v (and %d more error%s)", err, len(e.errs)-1, Plural(len(e.errs)-1))
	}
	return err.Error()
}

// isCrossDevice reports whether err is the EXDEV a rename() returns when
// src and dst live on different filesystems.
func isCrossDevice(err error) bool {
	return errors.Is(err, syscall.EXDEV)
}

const fatalPrefix = "FATAL ERROR: "

// ExitLogf logs a fatal startup error (when logging is already initialized)
// and terminates the process with exit code 1, mirroring the teacher's
// cos.ExitLogf used by every aisnode/authn main() on unrecoverable startup
// failure.
func ExitLogf(f string, a ...any) {
	msg := fmt.Sprintf(fatalPrefix+f, a...)
	if flag.Parsed() {
		nlog.ErrorDepth(1, msg)
		nlog.Flush(true)
	}
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
