package metrics

// Metrics collects counters for the bracket engine without tying callers to Prometheus.
type Metrics interface {
	IncBracketsGenerated(format string)
	IncMatchesCompleted()
	IncForfeits()
	IncMatchesCancelled()
	IncDisputesOpened(reason string)
	IncDisputesResolved()
	IncNodesFrozen()
	IncEventsPublished(eventType string)
	ObserveProgressionDuration(seconds float64)
	SetOpenDisputes(n int)
}
