// Package metrics exposes Prometheus counters for the submission pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SubmissionsTotal counts survey submissions by outcome (accepted,
	// rejected).
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formgate_submissions_total",
			Help: "Total number of survey submissions",
		},
		[]string{"status"},
	)

	// UploadsTotal counts image uploads by outcome.
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formgate_uploads_total",
			Help: "Total number of image uploads",
		},
		[]string{"status"},
	)

	// GateRejectionsTotal counts submission gate rejections by reason
	// (challenge, rate_limit, too_fast).
	GateRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formgate_gate_rejections_total",
			Help: "Total number of requests rejected by the submission gate",
		},
		[]string{"reason"},
	)

	// CleanupRuns counts completed retention cleanup runs.
	CleanupRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "formgate_cleanup_runs_total",
			Help: "Total number of completed cleanup runs",
		},
	)

	// CleanupFilesDeleted counts files removed by cleanup, orphans included.
	CleanupFilesDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "formgate_cleanup_files_deleted_total",
			Help: "Total number of files deleted by cleanup",
		},
	)

	// CleanupBytesFreed accumulates storage reclaimed by cleanup.
	CleanupBytesFreed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "formgate_cleanup_bytes_freed_total",
			Help: "Total bytes of storage reclaimed by cleanup",
		},
	)
)
