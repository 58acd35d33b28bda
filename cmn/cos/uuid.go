// Package cos provides common low-level types and utilities shared by the
// sync engine, coordinator, and history store.
/*
 * Copyright (c) 2024, filesyncd authors.
 */
package cos

import (
	"sync"
	"time"

	"github.com/teris-io/shortid"
)

const uuidABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

var (
	sidOnce sync.Once
	sid     *shortid.Shortid
)

func initSid() {
	sid = shortid.MustNew(1 /*worker*/, uuidABC, uint64(time.Now().UnixNano()))
}

// GenUUID mints a short, log-friendly correlation id: stamped on every
// engine run (for multi-engine log interleaving) and on every coordinator
// wait span (for tracing who a WAITING engine is blocked behind).
func GenUUID() string {
	sidOnce.Do(initSid)
	return sid.MustGenerate()
}
