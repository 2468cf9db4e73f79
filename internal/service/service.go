// Package service is the collaborator-facing API of the bracket engine. It
// keeps one progression engine and one set of match machines per tournament
// and persists every committed change before announcing it.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/AdamBeresnev/bracket-engine/internal/bracket"
	"github.com/AdamBeresnev/bracket-engine/internal/directory"
	"github.com/AdamBeresnev/bracket-engine/internal/dispute"
	"github.com/AdamBeresnev/bracket-engine/internal/events"
	"github.com/AdamBeresnev/bracket-engine/internal/evidence"
	"github.com/AdamBeresnev/bracket-engine/internal/match"
	"github.com/AdamBeresnev/bracket-engine/internal/metrics"
	"github.com/AdamBeresnev/bracket-engine/internal/progression"
	"github.com/AdamBeresnev/bracket-engine/internal/store"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

type Options struct {
	Policy match.Policy
	// BracketReset is the default for double elimination grand finals.
	BracketReset bool
	Now          func() time.Time
}

type Service struct {
	store     *store.TournamentStore
	directory *directory.Directory
	evidence  evidence.Store
	events    *events.Log
	gate      *dispute.Gate
	metrics   metrics.Metrics

	policy       match.Policy
	bracketReset bool
	now          func() time.Time

	// genMu serialises bracket generation.
	genMu sync.Mutex

	mu          sync.RWMutex
	tournaments map[string]*runtime
	matches     map[string]*runtime
}

func New(st *store.TournamentStore, dir *directory.Directory, ev evidence.Store, evlog *events.Log, m metrics.Metrics, opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:        st,
		directory:    dir,
		evidence:     ev,
		events:       evlog,
		gate:         dispute.NewGate(m),
		metrics:      m,
		policy:       opts.Policy,
		bracketReset: opts.BracketReset,
		now:          now,
		tournaments:  make(map[string]*runtime),
		matches:      make(map[string]*runtime),
	}
}

// runtime is the live state of one tournament. Lock order is engine, then
// runtime, then Service.mu.
type runtime struct {
	tournamentID string
	engine       *progression.Engine

	mu        sync.RWMutex
	machines  map[string]*match.Machine
	cancelled bool
}

func newRuntime(tournamentID string) *runtime {
	return &runtime{tournamentID: tournamentID, machines: make(map[string]*match.Machine)}
}

func (rt *runtime) add(x *match.Machine) {
	rt.mu.Lock()
	rt.machines[x.ID()] = x
	rt.mu.Unlock()
}

func (rt *runtime) machine(id string) *match.Machine {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.machines[id]
}

// all returns the machines ordered by match id.
func (rt *runtime) all() []*match.Machine {
	rt.mu.RLock()
	out := make([]*match.Machine, 0, len(rt.machines))
	for _, x := range rt.machines {
		out = append(out, x)
	}
	rt.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (rt *runtime) isCancelled() bool {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.cancelled
}

func (rt *runtime) markCancelled() {
	rt.mu.Lock()
	rt.cancelled = true
	rt.mu.Unlock()
}

// binder seats a fresh match for every node the engine reports ready. It runs
// under the engine lock.
func (s *Service) binder(rt *runtime) progression.Binder {
	return func(b *bracket.Bracket, n bracket.Node) string {
		id := uuid.NewString()
		x := match.New(id, b.TournamentID, b.ID, n.ID, !n.Elimination(), s.policy, s.now)
		a, c := n.Participants()
		if _, err := x.Seat(a, c, s.now().Add(s.policy.CheckInOffset)); err != nil {
			log.Error("Failed to seat match", "tournament", b.TournamentID, "node", n.ID, "error", err)
		}
		rt.add(x)
		return id
	}
}

func (s *Service) install(rt *runtime) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tournaments[rt.tournamentID] = rt
	for _, x := range rt.all() {
		s.matches[x.ID()] = rt
	}
}

func (s *Service) index(matchID string, rt *runtime) {
	s.mu.Lock()
	s.matches[matchID] = rt
	s.mu.Unlock()
}

func (s *Service) forget(rt *runtime) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, owner := range s.matches {
		if owner == rt {
			delete(s.matches, id)
		}
	}
	if s.tournaments[rt.tournamentID] == rt {
		delete(s.tournaments, rt.tournamentID)
	}
}

func (s *Service) runtimeFor(tournamentID string) *runtime {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tournaments[tournamentID]
}

func (s *Service) runtimes() []*runtime {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*runtime, 0, len(s.tournaments))
	for _, rt := range s.tournaments {
		out = append(out, rt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].tournamentID < out[j].tournamentID })
	return out
}

func (s *Service) tournament(id string) (*runtime, error) {
	if rt := s.runtimeFor(id); rt != nil {
		return rt, nil
	}
	return nil, fmt.Errorf("bracket for tournament %s: %w", id, bracket.ErrNotFound)
}

func (s *Service) lookup(matchID string) (*runtime, *match.Machine, error) {
	s.mu.RLock()
	rt := s.matches[matchID]
	s.mu.RUnlock()
	if rt == nil {
		return nil, nil, fmt.Errorf("match %s: %w", matchID, bracket.ErrNotFound)
	}
	x := rt.machine(matchID)
	if x == nil {
		return nil, nil, fmt.Errorf("match %s: %w", matchID, bracket.ErrNotFound)
	}
	return rt, x, nil
}

func (s *Service) publish(evs ...events.Event) {
	for _, ev := range s.events.Publish(evs...) {
		s.metrics.IncEventsPublished(string(ev.Type))
	}
}

func (s *Service) event(t events.Type, m match.Match) events.Event {
	return events.Event{
		Type:         t,
		TournamentID: m.TournamentID,
		BracketID:    m.BracketID,
		MatchID:      m.ID,
		Node:         m.Node,
		At:           s.now().UTC(),
	}
}

// afterStep persists what an engine call changed and announces it.
func (s *Service) afterStep(ctx context.Context, rt *runtime, step progression.Step) error {
	if step.Duplicate || step.Snapshot == nil {
		return nil
	}
	b := step.Snapshot.Bracket
	var (
		evs  []events.Event
		errs []error
	)

	for _, n := range step.Bound {
		x := rt.machine(n.MatchID)
		if x == nil {
			continue
		}
		s.index(n.MatchID, rt)
		m := x.Snapshot()
		if err := s.store.SaveMatch(ctx, m); err != nil {
			errs = append(errs, fmt.Errorf("persist match %s: %w", m.ID, err))
		}
		ev := s.event(events.MatchScheduled, m)
		ev.Round = n.Round
		evs = append(evs, ev)
	}
	if len(step.Appended) > 0 {
		first := b.Node(step.Appended[0])
		evs = append(evs, events.Event{
			Type:         events.RoundGenerated,
			TournamentID: b.TournamentID,
			BracketID:    b.ID,
			Node:         first.ID,
			Round:        first.Round,
			At:           s.now().UTC(),
		})
	}
	for _, id := range step.Frozen {
		n := b.Node(id)
		evs = append(evs, events.Event{
			Type:         events.NodeFrozen,
			TournamentID: b.TournamentID,
			BracketID:    b.ID,
			MatchID:      n.MatchID,
			Node:         id,
			Round:        n.Round,
			Reason:       "conflicting slot write",
			At:           s.now().UTC(),
		})
	}
	if step.Finished {
		evs = append(evs, events.Event{
			Type:         events.BracketCompleted,
			TournamentID: b.TournamentID,
			BracketID:    b.ID,
			Winner:       step.Champion,
			At:           s.now().UTC(),
		})
	}

	if err := s.store.SaveBracket(ctx, b); err != nil {
		errs = append(errs, fmt.Errorf("persist bracket %s: %w", b.ID, err))
	}
	// The engine has committed, so events go out even if a write failed.
	s.publish(evs...)
	return errors.Join(errs...)
}

// afterChange persists a committed match change and drives progression.
// observed is set when the dispute gate has already seen the change.
func (s *Service) afterChange(ctx context.Context, rt *runtime, ch match.Change, observed bool) (match.Match, error) {
	m := ch.Match
	if ch.Noop {
		return m, nil
	}
	if err := s.store.SaveMatch(ctx, m); err != nil {
		return m, fmt.Errorf("persist match %s: %w", m.ID, err)
	}
	if !ch.Transitioned() {
		return m, nil
	}
	if !observed {
		s.gate.Observe(ch)
	}
	log.Info("Match transition", "tournament", m.TournamentID, "match", m.ID, "node", m.Node, "from", ch.From, "to", ch.To)

	switch ch.To {
	case match.Disputed:
		ev := s.event(events.MatchDisputed, m)
		ev.Reason = string(m.Dispute.Reason)
		s.publish(ev)

	case match.Cancelled:
		s.metrics.IncMatchesCancelled()
		ev := s.event(events.MatchCancelled, m)
		ev.Reason = m.CancelReason
		s.publish(ev)
		if rt.isCancelled() {
			return m, nil
		}
		step, err := rt.engine.Cancel(m.Node)
		if err != nil {
			return m, err
		}
		return m, s.afterStep(ctx, rt, step)

	case match.Completed:
		s.metrics.IncMatchesCompleted()
		if m.Forfeit {
			s.metrics.IncForfeits()
		}
		if ch.From == match.Disputed {
			ev := s.event(events.DisputeResolved, m)
			ev.Score = m.Score
			s.publish(ev)
		}
		if rt.isCancelled() {
			return m, nil
		}
		step, err := rt.engine.Complete(progression.Outcome{
			Node:       m.Node,
			MatchID:    m.ID,
			WinnerSlot: m.WinnerSlot,
			Score:      m.Score,
		})
		stepErr := s.afterStep(ctx, rt, step)
		if err != nil {
			log.Error("Progression rejected a completed match", "tournament", m.TournamentID, "match", m.ID, "node", m.Node, "error", err)
			return m, err
		}
		ev := s.event(events.MatchCompleted, m)
		ev.Winner, ev.Loser, ev.Score = m.Winner(), m.Loser(), m.Score
		if n := step.Snapshot.Bracket.Node(m.Node); n != nil {
			ev.Round = n.Round
		}
		s.publish(ev)
		return m, stepErr
	}
	return m, nil
}
