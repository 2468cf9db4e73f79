// Package dispute tracks contested matches and keeps them from advancing
// until an organizer rules on them.
package dispute

import (
	"sort"
	"sync"

	"github.com/AdamBeresnev/bracket-engine/internal/bracket"
	"github.com/AdamBeresnev/bracket-engine/internal/match"
	"github.com/AdamBeresnev/bracket-engine/internal/metrics"
	"github.com/charmbracelet/log"
)

type Gate struct {
	mu   sync.RWMutex
	open map[string]match.Dispute
	// seen is the newest match version applied, so a change that reaches the
	// gate late cannot undo a newer one.
	seen    map[string]uint64
	metrics metrics.Metrics
}

func NewGate(m metrics.Metrics) *Gate {
	return &Gate{
		open:    make(map[string]match.Dispute),
		seen:    make(map[string]uint64),
		metrics: m,
	}
}

// Observe records the effect of a committed match change on the open set.
// Changes older than one already observed for the same match are ignored.
func (g *Gate) Observe(c match.Change) {
	if c.Noop {
		return
	}
	id := c.Match.ID

	g.mu.Lock()
	if v, ok := g.seen[id]; ok && c.Match.Version <= v {
		g.mu.Unlock()
		log.Debug("Stale match change ignored", "match", id, "version", c.Match.Version, "seen", v)
		return
	}
	g.seen[id] = c.Match.Version

	opened, released := false, false
	switch {
	case !c.Transitioned():
	case c.To == match.Disputed && c.Match.Dispute != nil:
		g.open[id] = *c.Match.Dispute
		opened = true
	case c.From == match.Disputed || c.To.Terminal():
		delete(g.open, id)
		released = c.From == match.Disputed
	}
	n := len(g.open)
	g.mu.Unlock()

	switch {
	case opened:
		g.metrics.IncDisputesOpened(string(c.Match.Dispute.Reason))
		g.metrics.SetOpenDisputes(n)
		log.Warn("Match disputed", "match", id, "tournament", c.Match.TournamentID, "reason", c.Match.Dispute.Reason)
	case released:
		g.metrics.SetOpenDisputes(n)
		if c.Match.Dispute.Resolved() {
			g.metrics.IncDisputesResolved()
			log.Info("Dispute resolved", "match", id, "resolver", c.Match.Dispute.Resolution.ResolverID)
		}
	}
}

// Track registers a match restored from storage that is still disputed.
func (g *Gate) Track(m match.Match) {
	g.mu.Lock()
	if v, ok := g.seen[m.ID]; !ok || m.Version > v {
		g.seen[m.ID] = m.Version
	}
	if m.State != match.Disputed || m.Dispute == nil {
		g.mu.Unlock()
		return
	}
	g.open[m.ID] = *m.Dispute
	n := len(g.open)
	g.mu.Unlock()
	g.metrics.SetOpenDisputes(n)
}

// Blocked reports whether matchID has an unresolved dispute.
func (g *Gate) Blocked(matchID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.open[matchID]
	return ok
}

func (g *Gate) Get(matchID string) (match.Dispute, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	d, ok := g.open[matchID]
	return d, ok
}

// Open lists unresolved disputes, oldest first.
func (g *Gate) Open() []match.Dispute {
	g.mu.RLock()
	out := make([]match.Dispute, 0, len(g.open))
	for _, d := range g.open {
		out = append(out, d)
	}
	g.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].OpenedAt.Before(out[j].OpenedAt)
		}
		return out[i].MatchID < out[j].MatchID
	})
	return out
}

// Resolve rules on the dispute held by m and releases it from the gate.
// A second resolution of the same dispute fails with bracket.ErrAlreadyResolved.
func (g *Gate) Resolve(m *match.Machine, score bracket.Score, resolverID, notes string) (match.Change, error) {
	ch, err := m.Resolve(score, resolverID, notes)
	if err != nil {
		return match.Change{}, err
	}
	g.Observe(ch)
	return ch, nil
}
