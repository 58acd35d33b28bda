// Package copier implements spec.md §4.3: a resumable, chunked,
// cancellable byte-stream copy with atomic publish via temp-file-plus-rename.
/*
 * Copyright (c) 2024, filesyncd authors.
 */
package copier

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/OneOfOne/xxhash"
	"github.com/pkg/errors"

	"github.com/coreweave-labs/filesyncd/cmn/cos"
	"github.com/coreweave-labs/filesyncd/cmn/fname"
	"github.com/coreweave-labs/filesyncd/cmn/nlog"
)

// ChunkSize is the fixed read/write unit spec.md §4.3 mandates: 8 MiB.
const ChunkSize = 8 * 1024 * 1024

// Outcome discriminates the copier's two non-error results so the engine
// can branch explicitly instead of inferring intent from a zero value, per
// spec.md §7's "exceptions as control flow" design note.
type Outcome int

const (
	Published Outcome = iota
	Skipped
)

// Result is returned on every non-error, non-cancelled completion.
type Result struct {
	Outcome     Outcome
	Destination string // valid when Outcome == Published
	BytesCopied int64
	Digest      uint64 // xxhash64 of the full source file, always populated
}

// ProgressFunc is invoked at every chunk boundary (and once at start, once
// at end) with the file's leaf name, bytes copied so far, and total size.
type ProgressFunc func(name string, copied, total int64)

// CancelSignal is closed to request cancellation; the copier checks it
// around every chunk boundary.
type CancelSignal <-chan struct{}

// Copy mirrors sourceFile (which must be a regular file under sourceRoot)
// into destinationRoot, preserving its relative path. overwrite controls
// name-collision behavior: true replaces an existing same-path target in
// place, false mints a timestamp-suffixed name instead. progress and
// cancel may both be nil.
func Copy(sourceFile, destinationRoot, sourceRoot string, overwrite bool, progress ProgressFunc, cancel CancelSignal) (Result, error) {
	srcInfo, err := os.Stat(sourceFile)
	if err != nil {
		return Result{}, errors.Wrapf(err, "stat source %q", sourceFile)
	}
	total := srcInfo.Size()
	name := filepath.Base(sourceFile)

	target := buildDestinationPath(sourceFile, destinationRoot, sourceRoot, overwrite)
	if err := cos.CreateDir(filepath.Dir(target)); err != nil {
		return Result{}, errors.Wrap(err, "create destination parent dir")
	}

	if dstInfo, err := os.Stat(target); err == nil {
		if overwrite && dstInfo.Size() == total {
			identical, digest, err := sameContent(sourceFile, target)
			if err != nil {
				return Result{}, err
			}
			if identical {
				return Result{Outcome: Skipped, Destination: target, BytesCopied: total, Digest: digest}, nil
			}
			nlog.Infof("copier: %q same size as %q but content differs, re-copying", sourceFile, target)
		}
	} else if !cos.IsNotExist(err) {
		return Result{}, errors.Wrapf(err, "stat destination %q", target)
	}

	temp := target + fname.PartSuffix
	src, offset, err := openSourceForResume(sourceFile, temp)
	if err != nil {
		return Result{}, err
	}
	defer src.Close()

	dst, err := openTempForResume(temp, offset)
	if err != nil {
		return Result{}, err
	}

	digest := xxhash.New64()
	if offset > 0 {
		if err := seedDigestFromExisting(digest, temp, offset); err != nil {
			dst.Close()
			return Result{}, err
		}
	}

	copied := offset
	if progress != nil {
		progress(name, copied, total)
	}

	buf := make([]byte, ChunkSize)
	for copied < total {
		if isCancelled(cancel) {
			dst.Close()
			return Result{}, cos.NewErrCancelled("copy")
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				dst.Close()
				return Result{}, errors.Wrap(werr, "write chunk to temp file")
			}
			digest.Write(buf[:n])
			copied += int64(n)
			if progress != nil {
				progress(name, copied, total)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			dst.Close()
			return Result{}, errors.Wrap(rerr, "read chunk from source")
		}
		if isCancelled(cancel) {
			dst.Close()
			return Result{}, cos.NewErrCancelled("copy")
		}
	}
	if err := dst.Close(); err != nil {
		return Result{}, errors.Wrap(err, "close temp file")
	}

	if err := publish(temp, target, sourceFile, srcInfo, overwrite); err != nil {
		return Result{}, err
	}
	if progress != nil {
		progress(name, total, total)
	}
	return Result{Outcome: Published, Destination: target, BytesCopied: copied, Digest: digest.Sum64()}, nil
}

func isCancelled(cancel CancelSignal) bool {
	if cancel == nil {
		return false
	}
	select {
	case <-cancel:
		return true
	default:
		return false
	}
}

// buildDestinationPath implements spec.md §8 invariant 1: deterministic for
// overwrite=true; a timestamp-suffixed variant of the same name otherwise.
func buildDestinationPath(sourceFile, destinationRoot, sourceRoot string, overwrite bool) string {
	var rel string
	if r, ok := cos.ToPosixRel(sourceRoot, sourceFile); ok {
		rel = r
	} else {
		rel = filepath.Base(sourceFile)
	}
	target := filepath.Join(destinationRoot, filepath.FromSlash(rel))
	if overwrite {
		return target
	}
	if _, err := os.Stat(target); err != nil {
		return target // no collision
	}
	ext := filepath.Ext(target)
	stem := strings.TrimSuffix(target, ext)
	suffix := time.Now().Format(fname.CollisionTimeLayout)
	return stem + "_" + suffix + ext
}

func openSourceForResume(sourceFile, temp string) (*os.File, int64, error) {
	var offset int64
	if ti, err := os.Stat(temp); err == nil && !ti.IsDir() {
		if srcInfo, serr := os.Stat(sourceFile); serr == nil && ti.Size() < srcInfo.Size() {
			offset = ti.Size()
		}
	}
	src, err := os.Open(sourceFile)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "open source %q", sourceFile)
	}
	if offset > 0 {
		if _, err := src.Seek(offset, io.SeekStart); err != nil {
			src.Close()
			return nil, 0, errors.Wrap(err, "seek source to resume offset")
		}
	}
	return src, offset, nil
}

func openTempForResume(temp string, offset int64) (*os.File, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if offset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(temp, flags, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open temp %q", temp)
	}
	return f, nil
}

// sameContent hashes both files with xxhash64 and reports whether their
// content matches, so a same-size destination is never trusted as
// "already mirrored" on size alone. Returns the source's digest either way.
func sameContent(a, b string) (bool, uint64, error) {
	da, err := hashFile(a)
	if err != nil {
		return false, 0, errors.Wrapf(err, "hash %q", a)
	}
	db, err := hashFile(b)
	if err != nil {
		return false, 0, errors.Wrapf(err, "hash %q", b)
	}
	return da == db, da, nil
}

func hashFile(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	h := xxhash.New64()
	if _, err := io.Copy(h, f); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}

// seedDigestFromExisting folds the bytes already on disk (from a prior,
// interrupted attempt) into the running checksum so Result.Digest covers
// the whole file, not just the bytes copied in this call.
func seedDigestFromExisting(digest *xxhash.XXHash64, temp string, n int64) error {
	f, err := os.Open(temp)
	if err != nil {
		return errors.Wrapf(err, "reopen temp %q to seed checksum", temp)
	}
	defer f.Close()
	if _, err := io.CopyN(digest, f, n); err != nil {
		return errors.Wrap(err, "seed checksum from existing temp bytes")
	}
	return nil
}

func publish(temp, target, sourceFile string, srcInfo os.FileInfo, overwrite bool) error {
	if _, err := os.Stat(target); err == nil {
		if !overwrite {
			// buildDestinationPath already avoided the collision; reaching
			// here means a concurrent writer raced us. Prefer our copy.
			nlog.Warningf("copier: %q appeared concurrently, overwriting", target)
		}
		if err := os.Remove(target); err != nil && !cos.IsNotExist(err) {
			nlog.Warningf("copier: could not remove existing %q before publish: %v", target, err)
			return errors.Wrapf(err, "remove existing target %q", target)
		}
	}
	if err := cos.RenameFile(temp, target); err != nil {
		return errors.Wrap(err, "publish temp file")
	}
	if err := copyStat(target, sourceFile, srcInfo); err != nil {
		nlog.Warningf("copier: copied %q but failed to preserve mtime/perms: %v", target, err)
	}
	return nil
}
