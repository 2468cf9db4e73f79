package metrics

import "sync"

var _ Metrics = (*Mock)(nil)

// Mock is a mock implementation of the Metrics interface for testing.
// It is safe for concurrent use.
type Mock struct {
	mu                   sync.Mutex
	bracketsGenerated    map[string]int
	matchesCompleted     int
	forfeits             int
	matchesCancelled     int
	disputesOpened       map[string]int
	disputesResolved     int
	nodesFrozen          int
	eventsPublished      map[string]int
	progressionDurations []float64
	openDisputes         int
}

// NewMock creates a new mock instance.
func NewMock() *Mock {
	return &Mock{
		bracketsGenerated: make(map[string]int),
		disputesOpened:    make(map[string]int),
		eventsPublished:   make(map[string]int),
	}
}

func (m *Mock) IncBracketsGenerated(format string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bracketsGenerated[format]++
}

func (m *Mock) IncMatchesCompleted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matchesCompleted++
}

func (m *Mock) IncForfeits() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forfeits++
}

func (m *Mock) IncMatchesCancelled() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matchesCancelled++
}

func (m *Mock) IncDisputesOpened(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disputesOpened[reason]++
}

func (m *Mock) IncDisputesResolved() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disputesResolved++
}

func (m *Mock) IncNodesFrozen() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodesFrozen++
}

func (m *Mock) IncEventsPublished(eventType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventsPublished[eventType]++
}

func (m *Mock) ObserveProgressionDuration(seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progressionDurations = append(m.progressionDurations, seconds)
}

func (m *Mock) SetOpenDisputes(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openDisputes = n
}

// BracketsGenerated returns how many brackets of format were generated.
func (m *Mock) BracketsGenerated(format string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bracketsGenerated[format]
}

func (m *Mock) MatchesCompleted() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.matchesCompleted
}

func (m *Mock) Forfeits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.forfeits
}

func (m *Mock) MatchesCancelled() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.matchesCancelled
}

func (m *Mock) DisputesOpened(reason string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disputesOpened[reason]
}

func (m *Mock) DisputesResolved() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disputesResolved
}

func (m *Mock) NodesFrozen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nodesFrozen
}

func (m *Mock) EventsPublished(eventType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.eventsPublished[eventType]
}

// ProgressionDurations returns a copy of the observed durations.
func (m *Mock) ProgressionDurations() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float64(nil), m.progressionDurations...)
}

func (m *Mock) OpenDisputes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openDisputes
}
