package timelinesync

// Merge outcomes reported to the metrics collector.
const (
	MergeOutcomeMerged     = "merged"
	MergeOutcomeConflict   = "conflict"
	MergeOutcomeDeleteWins = "delete_wins"
)

// MetricsCollector provides hooks for observability.
type MetricsCollector interface {
	// RecordMergeOutcome records the result of a three-way merge attempt
	RecordMergeOutcome(outcome string)

	// RecordRemoteWrite records a remote store write and whether it failed
	RecordRemoteWrite(op string, err error)

	// RecordSuppressedNoOp records a remote event discarded because it
	// carried no new field differences
	RecordSuppressedNoOp()

	// RecordRenderRefresh records a wholesale rebuild of the rendering
	// surface
	RecordRenderRefresh()

	// RecordPendingMerges records the number of deferred remote updates
	// currently held
	RecordPendingMerges(count int)
}

// NoOpMetricsCollector is a stub implementation that discards metrics.
type NoOpMetricsCollector struct{}

func (*NoOpMetricsCollector) RecordMergeOutcome(outcome string)      {}
func (*NoOpMetricsCollector) RecordRemoteWrite(op string, err error) {}
func (*NoOpMetricsCollector) RecordSuppressedNoOp()                  {}
func (*NoOpMetricsCollector) RecordRenderRefresh()                   {}
func (*NoOpMetricsCollector) RecordPendingMerges(count int)          {}
