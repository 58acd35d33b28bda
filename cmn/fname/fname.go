// Package fname contains filename and directory-name constants shared
// across the daemon, so that the on-disk layout is defined in exactly one
// place.
/*
 * Copyright (c) 2024, filesyncd authors.
 */
package fname

const (
	// HistoryDir sits under a destination root: <destination>/.history/.
	HistoryDir = ".history"
	// HistoryFile is the durable sync-history map, JSON-encoded.
	HistoryFile = "sync_history.json"

	// PartSuffix marks an in-progress, resumable copy.
	PartSuffix = ".part"

	// CollisionTimeLayout formats the local-time suffix minted for a
	// non-overwrite name collision: <stem>_YYYYMMDD-HHMMSS<suffix>.
	CollisionTimeLayout = "20060102-150405"
)
