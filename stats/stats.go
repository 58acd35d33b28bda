// Package stats exposes the daemon's internal counters and gauges through
// a prometheus_client_golang registry, per SPEC_FULL.md's domain-stack
// wiring — an in-process equivalent of the teacher's coreStats tracker,
// built on Prometheus instead of StatsD since the out-of-scope HTTP
// exposition layer is the only consumer and Prometheus's pull model needs
// no notifier goroutine of its own.
/*
 * Copyright (c) 2024, filesyncd authors.
 */
package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Tracker is the set of metrics one process-wide Registry exposes. Engines
// given one via Engine.SetStats update it; coordinator wait time is
// recorded by the engine around Coordinator.Acquire, since the coordinator
// holds no Tracker of its own.
type Tracker struct {
	FilesCopied        *prometheus.CounterVec
	BytesCopied        *prometheus.CounterVec
	CopyErrors         *prometheus.CounterVec
	RetentionDeletions *prometheus.CounterVec
	QueueDepth         *prometheus.GaugeVec
	QueueBytes         *prometheus.GaugeVec
	CoordinatorWaitMS  *prometheus.HistogramVec
}

const namespace = "filesyncd"

// New builds a Tracker and registers every metric against reg. Passing a
// fresh prometheus.NewRegistry() keeps tests hermetic; production code can
// pass prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Tracker {
	t := &Tracker{
		FilesCopied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "files_copied_total",
			Help: "Total files successfully published to a destination.",
		}, []string{"config_id"}),
		BytesCopied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "bytes_copied_total",
			Help: "Total bytes successfully published to a destination.",
		}, []string{"config_id"}),
		CopyErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "copy_errors_total",
			Help: "Copy attempts that failed for a reason other than cancellation.",
		}, []string{"config_id"}),
		RetentionDeletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "retention_deletions_total",
			Help: "Destination entries removed by retention enforcement.",
		}, []string{"config_id"}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "pending_queue_depth",
			Help: "Current number of entries in a configuration's pending queue.",
		}, []string{"config_id"}),
		QueueBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "pending_queue_bytes",
			Help: "Current total byte size of a configuration's pending queue.",
		}, []string{"config_id"}),
		CoordinatorWaitMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "coordinator_wait_milliseconds",
			Help:    "Time a configuration spent waiting for a coordinator slot.",
			Buckets: prometheus.ExponentialBuckets(10, 2, 12),
		}, []string{"config_id"}),
	}
	reg.MustRegister(t.FilesCopied, t.BytesCopied, t.CopyErrors, t.RetentionDeletions,
		t.QueueDepth, t.QueueBytes, t.CoordinatorWaitMS)
	return t
}
