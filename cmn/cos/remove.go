// Package cos provides common low-level types and utilities shared by the
// sync engine, coordinator, and history store.
/*
 * Copyright (c) 2024, filesyncd authors.
 */
package cos

import (
	"errors"
	"os"
	"syscall"
	"time"

	"github.com/coreweave-labs/filesyncd/cmn/nlog"
)

const (
	removeRetries = 3
	removeSleep   = 256 * time.Millisecond
)

// RemoveAllRetrying removes dir recursively, retrying on ENOTEMPTY — the
// race between a directory-tree removal and a concurrent new write into
// that same tree — the way the teacher's fs.RemoveAll does for mountpath
// cleanup.
func RemoveAllRetrying(dir string) (err error) {
	for i := 0; i < removeRetries; i++ {
		err = os.RemoveAll(dir)
		if err == nil {
			return nil
		}
		if !errors.Is(err, syscall.ENOTEMPTY) {
			return err
		}
		if i < removeRetries-1 {
			nlog.Warningf("cos: %q not empty, retrying removal", dir)
			time.Sleep(removeSleep)
		}
	}
	return err
}
