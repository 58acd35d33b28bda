// Package mono provides a monotonic clock for elapsed-time measurements
// (debounce timers, coordinator wait spans) that must never be perturbed by
// wall-clock adjustments (NTP step, DST).
/*
 * Copyright (c) 2024, filesyncd authors.
 */
package mono

import "time"

var start = time.Now()

// NanoTime returns a monotonically increasing nanosecond counter anchored at
// package init. The teacher's mono package links directly against
// runtime.nanotime behind a "mono" build tag; that linkname trick is a
// private-runtime-symbol hack gated on a build tag nothing else in this
// repo sets, so it would silently fall back to nothing at all. time.Since
// on a value captured once at init already walks the monotonic reading
// time.Time carries internally (see the time package docs), so it gives the
// same guarantee without reaching past the language boundary.
func NanoTime() int64 { return time.Since(start).Nanoseconds() }

// Since returns the elapsed duration from a NanoTime() reading to now.
func Since(start int64) time.Duration { return time.Duration(NanoTime() - start) }
