package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var _ Metrics = (*Service)(nil)

// NewMetricsHandler returns an http.Handler for the given Gatherer.
// If no gatherer is provided, it uses the default one.
func NewMetricsHandler(gatherer ...prometheus.Gatherer) http.Handler {
	gath := prometheus.DefaultGatherer
	if len(gatherer) > 0 {
		gath = gatherer[0]
	}
	return promhttp.HandlerFor(gath, promhttp.HandlerOpts{})
}

// NewService creates and registers the Prometheus metrics.
// If no registerer is provided, it uses the default Prometheus registerer.
func NewService(registerer ...prometheus.Registerer) *Service {
	reg := prometheus.DefaultRegisterer
	if len(registerer) > 0 {
		reg = registerer[0]
	}

	s := &Service{
		BracketsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bracket_generated_total",
			Help: "Brackets generated, by format.",
		}, []string{"format"}),
		MatchesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bracket_matches_completed_total",
			Help: "Matches that reached a confirmed result.",
		}),
		Forfeits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bracket_matches_forfeited_total",
			Help: "Matches decided because one side failed to check in.",
		}),
		MatchesCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bracket_matches_cancelled_total",
			Help: "Matches cancelled by an organizer or a double no-show.",
		}),
		DisputesOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bracket_disputes_opened_total",
			Help: "Disputes opened, by reason code.",
		}, []string{"reason"}),
		DisputesResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bracket_disputes_resolved_total",
			Help: "Disputes closed by an organizer decision.",
		}),
		NodesFrozen: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bracket_nodes_frozen_total",
			Help: "Nodes frozen after a conflicting slot write.",
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bracket_events_published_total",
			Help: "Events appended to the bracket event log, by type.",
		}, []string{"type"}),
		ProgressionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bracket_progression_duration_seconds",
			Help:    "Time spent applying one completion to the bracket graph.",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		OpenDisputes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bracket_open_disputes",
			Help: "Disputes currently blocking progression.",
		}),
	}

	reg.MustRegister(
		s.BracketsGenerated,
		s.MatchesCompleted,
		s.Forfeits,
		s.MatchesCancelled,
		s.DisputesOpened,
		s.DisputesResolved,
		s.NodesFrozen,
		s.EventsPublished,
		s.ProgressionDuration,
		s.OpenDisputes,
	)

	return s
}

func (s *Service) IncBracketsGenerated(format string) {
	s.BracketsGenerated.WithLabelValues(format).Inc()
}

func (s *Service) IncMatchesCompleted() {
	s.MatchesCompleted.Inc()
}

func (s *Service) IncForfeits() {
	s.Forfeits.Inc()
}

func (s *Service) IncMatchesCancelled() {
	s.MatchesCancelled.Inc()
}

func (s *Service) IncDisputesOpened(reason string) {
	s.DisputesOpened.WithLabelValues(reason).Inc()
}

func (s *Service) IncDisputesResolved() {
	s.DisputesResolved.Inc()
}

func (s *Service) IncNodesFrozen() {
	s.NodesFrozen.Inc()
}

func (s *Service) IncEventsPublished(eventType string) {
	s.EventsPublished.WithLabelValues(eventType).Inc()
}

func (s *Service) ObserveProgressionDuration(seconds float64) {
	s.ProgressionDuration.Observe(seconds)
}

func (s *Service) SetOpenDisputes(n int) {
	s.OpenDisputes.Set(float64(n))
}
