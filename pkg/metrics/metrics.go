// Package metrics exposes the counters served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsync_sync_attempts_total",
		Help: "Sync cycles by outcome (ok, deferred, error).",
	}, []string{"outcome"})

	Merges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_merges_total",
		Help: "Pairwise merges performed.",
	})

	ConflictsResolved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_merge_conflicts_resolved_total",
		Help: "Part-level conflicts settled by last-writer-wins.",
	})

	DroppedUntimestamped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_merge_dropped_untimestamped_total",
		Help: "Entries excluded from merge for missing creation timestamps.",
	})

	MergeFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_merge_fallbacks_total",
		Help: "Merges that fell back to one side wholesale on malformed input.",
	})

	UploadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_upload_bytes_total",
		Help: "Bytes uploaded to the remote store.",
	})

	RemoteErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsync_remote_errors_total",
		Help: "Remote store failures by class.",
	}, []string{"class"})

	TombstonesCompacted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_tombstones_compacted_total",
		Help: "Tombstoned entries removed by scheduled compaction.",
	})
)
