package metrics

import "github.com/prometheus/client_golang/prometheus"

// Service holds the Prometheus collectors backing Metrics.
type Service struct {
	BracketsGenerated   *prometheus.CounterVec
	MatchesCompleted    prometheus.Counter
	Forfeits            prometheus.Counter
	MatchesCancelled    prometheus.Counter
	DisputesOpened      *prometheus.CounterVec
	DisputesResolved    prometheus.Counter
	NodesFrozen         prometheus.Counter
	EventsPublished     *prometheus.CounterVec
	ProgressionDuration prometheus.Histogram
	OpenDisputes        prometheus.Gauge
}
