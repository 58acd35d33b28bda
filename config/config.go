// Package config defines the SyncConfiguration record the core consumes
// from the external store (or, for the CLI surface, builds from flags),
// and the validation the supervisor runs before it will start an engine.
/*
 * Copyright (c) 2024, filesyncd authors.
 */
package config

import (
	"os"
	"strings"

	"github.com/coreweave-labs/filesyncd/cmn/cos"
)

// RetentionMode selects which of spec.md §4.4's three retention policies a
// configuration enforces.
type RetentionMode string

const (
	RetentionDays  RetentionMode = "days"
	RetentionCount RetentionMode = "count"
	RetentionSync  RetentionMode = "sync"
)

// SyncConfiguration is a snapshot of a durable configuration row, per
// spec.md §3. The core never mutates or persists it; the external store
// owns the record's lifetime.
type SyncConfiguration struct {
	ID                  int64
	Name                string
	SourceRoot          string
	DestinationRoot     string
	Patterns            []string
	RetentionMode       RetentionMode
	RetentionValue      int
	SettleSeconds       int
	ScanIntervalMinutes int
	IsActive            bool
}

// SplitPatterns implements SPEC_FULL.md §3.2's comma-separated boundary:
// split on ',', trim whitespace, drop empties. Case is left untouched —
// case-folding is the matcher's job, not the split's.
func SplitPatterns(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// NormalizedPatterns returns c.Patterns, defaulting an empty list to ["*"]
// per spec.md §4.1.
func (c *SyncConfiguration) NormalizedPatterns() []string {
	if len(c.Patterns) == 0 {
		return []string{"*"}
	}
	return c.Patterns
}

// Validate enforces spec.md §3's invariant that source_root exists and is
// a directory, plus the retention_value constraints from §3's data model:
// non-negative always, and exactly 0 when RetentionMode is "sync".
func (c *SyncConfiguration) Validate() error {
	if strings.TrimSpace(c.SourceRoot) == "" {
		return cos.NewErrValidation("source_root is empty")
	}
	if strings.TrimSpace(c.DestinationRoot) == "" {
		return cos.NewErrValidation("destination_root is empty")
	}
	info, err := os.Stat(c.SourceRoot)
	if err != nil {
		return cos.NewErrValidation("source_root %q: %v", c.SourceRoot, err)
	}
	if !info.IsDir() {
		return cos.NewErrValidation("source_root %q is not a directory", c.SourceRoot)
	}
	switch c.RetentionMode {
	case RetentionDays, RetentionCount:
		if c.RetentionValue < 0 {
			return cos.NewErrValidation("retention_value must be non-negative, got %d", c.RetentionValue)
		}
	case RetentionSync:
		if c.RetentionValue != 0 {
			return cos.NewErrValidation("retention_value must be 0 for sync retention, got %d", c.RetentionValue)
		}
	default:
		return cos.NewErrValidation("unknown retention_mode %q", c.RetentionMode)
	}
	if c.SettleSeconds < 0 {
		return cos.NewErrValidation("settle_seconds must be non-negative, got %d", c.SettleSeconds)
	}
	if c.ScanIntervalMinutes < 0 {
		return cos.NewErrValidation("scan_interval_minutes must be non-negative, got %d", c.ScanIntervalMinutes)
	}
	return nil
}
