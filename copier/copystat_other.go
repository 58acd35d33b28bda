//go:build !linux

package copier

import "os"

// copyStat falls back to mtime-only preservation on non-Linux platforms,
// where the Linux-specific Utimes path in copystat_linux.go doesn't apply.
func copyStat(target, _ string, srcInfo os.FileInfo) error {
	if err := os.Chtimes(target, srcInfo.ModTime(), srcInfo.ModTime()); err != nil {
		return err
	}
	return os.Chmod(target, srcInfo.Mode().Perm())
}
