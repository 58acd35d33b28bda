// Package watch wraps fsnotify into the recursive source-directory observer
// described in spec.md §4.5: one watcher per sync configuration, emitting
// file events (create/modify/move-in) and delete events (remove/move-out)
// while ignoring directory-level events themselves.
/*
 * Copyright (c) 2024, filesyncd authors.
 */
package watch

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/coreweave-labs/filesyncd/cmn/nlog"
	"github.com/fsnotify/fsnotify"
)

// FileEvent names a regular file under the watched root that was created,
// written to, or renamed into place.
type FileEvent struct {
	Path string
}

// DeleteEvent names a path removed from, or renamed out of, the watched
// root. The engine only acts on these under "sync" retention mode.
type DeleteEvent struct {
	Path string
}

// Observer recursively watches a root directory and republishes fsnotify's
// per-inode event stream as the two channels the engine consumes.
type Observer struct {
	root    string
	watcher *fsnotify.Watcher
	files   chan FileEvent
	deletes chan DeleteEvent
	errs    chan error
	done    chan struct{}
}

// New creates an Observer for root without starting it. Callers must call
// Start before reading from Files/Deletes/Errors.
func New(root string) *Observer {
	return &Observer{
		root:    root,
		files:   make(chan FileEvent, 256),
		deletes: make(chan DeleteEvent, 256),
		errs:    make(chan error, 1),
		done:    make(chan struct{}),
	}
}

func (o *Observer) Files() <-chan FileEvent     { return o.files }
func (o *Observer) Deletes() <-chan DeleteEvent { return o.deletes }
func (o *Observer) Errors() <-chan error        { return o.errs }

// Start installs watches on root and every existing subdirectory, then
// begins the dispatch goroutine. A failure here — root missing, inotify
// instance limit reached — is returned so the engine can transition to
// STOPPED with the failure recorded in EngineStatus.Details, per spec.md
// §4.7's "watcher setup failure" row.
func (o *Observer) Start() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: create watcher: %w", err)
	}
	if err := addRecursive(w, o.root); err != nil {
		w.Close()
		return fmt.Errorf("watch: add %q: %w", o.root, err)
	}
	o.watcher = w
	go o.dispatch()
	return nil
}

// Stop tears down the underlying fsnotify watcher and ends the dispatch
// goroutine. Safe to call once; a second call is a no-op.
func (o *Observer) Stop() {
	select {
	case <-o.done:
		return
	default:
		close(o.done)
	}
	if o.watcher != nil {
		o.watcher.Close()
	}
}

func addRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}

// dispatch translates raw fsnotify.Events into FileEvent/DeleteEvent,
// dropping directory-level events and registering watches on newly created
// subdirectories as they appear.
func (o *Observer) dispatch() {
	defer close(o.files)
	defer close(o.deletes)
	for {
		select {
		case <-o.done:
			return
		case ev, ok := <-o.watcher.Events:
			if !ok {
				return
			}
			o.handle(ev)
		case err, ok := <-o.watcher.Errors:
			if !ok {
				return
			}
			nlog.Warningf("watch: %q: %v", o.root, err)
			select {
			case o.errs <- err:
			default:
			}
		}
	}
}

func (o *Observer) handle(ev fsnotify.Event) {
	info, statErr := os.Stat(ev.Name)
	isDir := statErr == nil && info.IsDir()

	switch {
	case ev.Op&fsnotify.Create != 0:
		if isDir {
			if err := addRecursive(o.watcher, ev.Name); err != nil {
				nlog.Warningf("watch: add new subdir %q: %v", ev.Name, err)
			}
			return
		}
		o.emitFile(ev.Name)
	case ev.Op&fsnotify.Write != 0:
		if isDir {
			return
		}
		o.emitFile(ev.Name)
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// statErr != nil here in the common case (path is gone); a rename
		// that lands back under the same root arrives as a separate Create
		// for the new name, so this is always a departure from root's
		// point of view.
		o.emitDelete(ev.Name)
	}
}

func (o *Observer) emitFile(path string) {
	select {
	case o.files <- FileEvent{Path: path}:
	case <-o.done:
	}
}

func (o *Observer) emitDelete(path string) {
	select {
	case o.deletes <- DeleteEvent{Path: path}:
	case <-o.done:
	}
}
