//go:build linux

package copier

import (
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// copyStat mirrors source's mtime, atime, and permission bits onto target,
// per spec.md §4.3 step 6. golang.org/x/sys gives us atime (not just
// mtime), which os.Chtimes alone cannot set independently of mtime — the
// reason the teacher's own fs package reaches past os.Chtimes for this on
// Linux.
func copyStat(target, _ string, srcInfo os.FileInfo) error {
	mtime := srcInfo.ModTime()
	atime := mtime
	if stat, ok := srcInfo.Sys().(*syscall.Stat_t); ok {
		atime = time.Unix(stat.Atim.Sec, stat.Atim.Nsec)
	}
	tv := []unix.Timeval{
		unix.NsecToTimeval(atime.UnixNano()),
		unix.NsecToTimeval(mtime.UnixNano()),
	}
	if err := unix.Utimes(target, tv); err != nil {
		return err
	}
	return os.Chmod(target, srcInfo.Mode().Perm())
}
