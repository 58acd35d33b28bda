// Package main is the one-shot CLI surface for the file-replication
// daemon core: one configuration per invocation, running until an
// interrupt signal requests a clean stop.
/*
 * Copyright (c) 2024, filesyncd authors.
 */
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coreweave-labs/filesyncd/cmn/cos"
	"github.com/coreweave-labs/filesyncd/cmn/nlog"
	"github.com/coreweave-labs/filesyncd/config"
	"github.com/coreweave-labs/filesyncd/coordinator"
	"github.com/coreweave-labs/filesyncd/engine"
	"github.com/coreweave-labs/filesyncd/stats"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

var (
	build     string
	buildtime string

	source      string
	destination string
	pattern     string

	retentionMode  string
	retentionValue int
	retentionDays  int
	retentionFiles int

	settleSeconds       int
	scanIntervalMinutes int
	logLevel            int
)

func init() {
	flag.StringVar(&source, "source", "", "source directory to watch")
	flag.StringVar(&destination, "destination", "", "destination directory to mirror into")
	flag.StringVar(&pattern, "pattern", "*", "comma-separated list of case-insensitive glob patterns")
	flag.StringVar(&retentionMode, "retention-mode", "days", "retention mode: days, count, or sync")
	flag.IntVar(&retentionValue, "retention", 0, "retention value (meaning depends on retention-mode)")
	flag.IntVar(&retentionDays, "retention-days", 0, "alias for -retention when retention-mode=days")
	flag.IntVar(&retentionFiles, "retention-files", 0, "alias for -retention when retention-mode=count")
	flag.IntVar(&settleSeconds, "settle-seconds", 3, "seconds a file's size and mtime must be unchanged before copy")
	flag.IntVar(&scanIntervalMinutes, "scan-interval-minutes", 0, "periodic full rescan interval; 0 disables it")
	flag.IntVar(&logLevel, "log-level", 0, "log verbosity threshold")
}

func main() {
	if len(os.Args) == 2 && os.Args[1] == "version" {
		printVer()
		os.Exit(0)
	}
	if len(os.Args) == 2 && strings.Contains(os.Args[1], "help") {
		printVer()
		flag.PrintDefaults()
		os.Exit(0)
	}
	flag.Parse()
	nlog.SetLevel(logLevel)

	cfg := buildConfig()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	tracker := stats.New(reg)

	statusCB := func(configID int64, isRunning bool, s engine.Status) {
		nlog.Infof("config %d running=%v state=%s details=%q progress=%d%%",
			configID, isRunning, s.State, s.Details, s.ProgressPercent)
	}

	e := engine.New(cfg, coordinator.New(), statusCB)
	e.SetStats(tracker)

	if err := e.Run(); err != nil {
		cos.ExitLogf("failed to start: %v", err)
	}

	g := new(errgroup.Group)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	g.Go(func() error {
		<-stop
		e.Stop()
		return nil
	})

	<-e.Done()
	_ = g.Wait()
	nlog.Flush(false)
	os.Exit(0)
}

func buildConfig() *config.SyncConfiguration {
	mode := config.RetentionMode(retentionMode)
	value := retentionValue
	switch mode {
	case config.RetentionDays:
		if retentionDays > 0 {
			value = retentionDays
		}
	case config.RetentionCount:
		if retentionFiles > 0 {
			value = retentionFiles
		}
	}
	return &config.SyncConfiguration{
		ID:                  1,
		Name:                "cli",
		SourceRoot:          source,
		DestinationRoot:     destination,
		Patterns:            config.SplitPatterns(pattern),
		RetentionMode:       mode,
		RetentionValue:      value,
		SettleSeconds:       settleSeconds,
		ScanIntervalMinutes: scanIntervalMinutes,
		IsActive:            true,
	}
}

func printVer() {
	fmt.Printf("filesyncd %s (build %s)\n", "0.1.0", buildtime)
}
