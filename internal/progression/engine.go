// Package progression applies match results to a bracket graph. One Engine
// owns one bracket; all writes go through its lock while readers load an
// immutable snapshot without locking.
package progression

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AdamBeresnev/bracket-engine/internal/bracket"
	"github.com/AdamBeresnev/bracket-engine/internal/generator"
	"github.com/AdamBeresnev/bracket-engine/internal/metrics"
	"github.com/charmbracelet/log"
)

// Blocker reports matches whose outcome must not be applied yet.
type Blocker interface {
	Blocked(matchID string) bool
}

// Binder creates the match for a node that has just become ready and returns
// its id. It runs under the engine lock and must not call back into the engine.
type Binder func(b *bracket.Bracket, n bracket.Node) string

type Outcome struct {
	Node       bracket.NodeID
	MatchID    string
	WinnerSlot int
	Score      *bracket.Score
}

// Step reports what one engine call changed.
type Step struct {
	Duplicate bool
	Bound     []bracket.Node
	Appended  []bracket.NodeID
	Frozen    []bracket.NodeID
	Finished  bool
	Champion  bracket.ParticipantID
	Snapshot  *Snapshot
}

type Snapshot struct {
	Bracket   *bracket.Bracket
	Standings []bracket.Standing
}

type Engine struct {
	mu      sync.Mutex
	b       *bracket.Bracket
	gate    Blocker
	bind    Binder
	metrics metrics.Metrics
	view    atomic.Pointer[Snapshot]
}

// New takes ownership of a copy of b. Call Start on a freshly generated
// bracket to bind its first matches.
func New(b *bracket.Bracket, gate Blocker, bind Binder, m metrics.Metrics) *Engine {
	e := &Engine{
		b:       b.Clone(),
		gate:    gate,
		bind:    bind,
		metrics: m,
	}
	e.view.Store(e.snapshot())
	return e
}

// Snapshot returns the latest published state. It never blocks on writers.
func (e *Engine) Snapshot() *Snapshot {
	return e.view.Load()
}

// Start binds matches to every node that is ready after generation.
func (e *Engine) Start() (Step, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.commit(Step{}, time.Now())
}

// Complete applies the confirmed outcome of the match bound to a node.
// Repeating an identical outcome is a no-op; a conflicting one freezes the node.
func (e *Engine) Complete(o Outcome) (Step, error) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	n := e.b.Node(o.Node)
	if n == nil {
		return Step{}, fmt.Errorf("node %d: %w", o.Node, bracket.ErrNotFound)
	}
	if o.MatchID != "" && n.MatchID != o.MatchID {
		return Step{}, fmt.Errorf("node %d is bound to %q, not %q: %w", o.Node, n.MatchID, o.MatchID, bracket.ErrNodeNotReady)
	}
	if n.Frozen {
		return Step{}, fmt.Errorf("node %d: %w", o.Node, bracket.ErrNodeFrozen)
	}
	if e.gate != nil && n.MatchID != "" && e.gate.Blocked(n.MatchID) {
		return Step{}, fmt.Errorf("match %s: %w", n.MatchID, bracket.ErrDisputed)
	}
	if n.Completed {
		if n.WinnerSlot == o.WinnerSlot {
			return Step{Duplicate: true, Snapshot: e.view.Load()}, nil
		}
		step := e.freeze(Step{}, o.Node)
		return step, fmt.Errorf("node %d already has a different result: %w", o.Node, bracket.ErrNodeNotReady)
	}

	if _, err := e.b.Advance(o.Node, o.WinnerSlot, o.Score); err != nil {
		var conflict *bracket.ConflictError
		if errors.As(err, &conflict) {
			step := e.freeze(Step{}, o.Node, conflict.Node)
			return step, err
		}
		return Step{}, err
	}
	return e.commit(Step{}, start)
}

// Cancel closes a node without a result.
func (e *Engine) Cancel(id bracket.NodeID) (Step, error) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.b.Cancel(id); err != nil {
		return Step{}, err
	}
	return e.commit(Step{}, start)
}

// AdvanceManually is the organizer override for a node whose match was
// cancelled or never played.
func (e *Engine) AdvanceManually(id bracket.NodeID, winner bracket.ParticipantID) (Step, error) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	n := e.b.Node(id)
	if n == nil {
		return Step{}, fmt.Errorf("node %d: %w", id, bracket.ErrNotFound)
	}
	slot := n.SlotOf(winner)
	if slot < 0 {
		return Step{}, fmt.Errorf("%s is not seated at node %d: %w", winner, id, bracket.ErrNotParticipant)
	}
	if n.Completed {
		if n.WinnerSlot == slot {
			return Step{Duplicate: true, Snapshot: e.view.Load()}, nil
		}
		return Step{}, fmt.Errorf("node %d already decided: %w", id, bracket.ErrInvalidStateTransition)
	}
	if n.MatchID != "" && e.gate != nil && e.gate.Blocked(n.MatchID) {
		return Step{}, fmt.Errorf("match %s: %w", n.MatchID, bracket.ErrDisputed)
	}
	if err := e.b.Reopen(id); err != nil {
		return Step{}, err
	}
	if _, err := e.b.Advance(id, slot, nil); err != nil {
		var conflict *bracket.ConflictError
		if errors.As(err, &conflict) {
			step := e.freeze(Step{}, id, conflict.Node)
			return step, err
		}
		return Step{}, err
	}
	return e.commit(Step{}, start)
}

// Unfreeze releases a node after an operator has inspected it.
func (e *Engine) Unfreeze(id bracket.NodeID) (Step, error) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	n := e.b.Node(id)
	if n == nil {
		return Step{}, fmt.Errorf("node %d: %w", id, bracket.ErrNotFound)
	}
	if !n.Frozen {
		return Step{Duplicate: true, Snapshot: e.view.Load()}, nil
	}
	n.Frozen = false
	return e.commit(Step{}, start)
}

func (e *Engine) freeze(step Step, ids ...bracket.NodeID) Step {
	for _, id := range ids {
		n := e.b.Node(id)
		if n == nil || n.Frozen {
			continue
		}
		n.Frozen = true
		step.Frozen = append(step.Frozen, id)
		e.metrics.IncNodesFrozen()
		log.Error("Node frozen after conflicting write", "bracket", e.b.ID, "tournament", e.b.TournamentID, "node", id, "key", n.Key())
	}
	if len(step.Frozen) > 0 {
		e.b.Version++
		e.view.Store(e.snapshot())
	}
	step.Snapshot = e.view.Load()
	return step
}

// commit extends staged formats, binds matches to ready nodes, detects the
// end of the bracket and publishes a new snapshot. Callers hold e.mu.
func (e *Engine) commit(step Step, start time.Time) (Step, error) {
	for {
		added, err := generator.Extend(e.b)
		if err != nil {
			return step, err
		}
		if len(added) == 0 {
			break
		}
		step.Appended = append(step.Appended, added...)
		log.Info("Appended nodes", "bracket", e.b.ID, "count", len(added), "round", e.b.CurrentRound, "stage", e.b.Stage)
	}

	ready, err := e.b.SettleAll()
	if err != nil {
		return step, err
	}
	for _, id := range ready {
		n := e.b.Node(id)
		if e.bind != nil {
			n.MatchID = e.bind(e.b, *n)
		}
		step.Bound = append(step.Bound, *n)
	}

	if !e.b.Completed && e.b.Finish() {
		step.Finished = true
		step.Champion = e.b.Champion
		log.Info("Bracket completed", "bracket", e.b.ID, "tournament", e.b.TournamentID, "champion", e.b.Champion)
	}

	e.b.Version++
	snap := e.snapshot()
	e.view.Store(snap)
	step.Snapshot = snap
	e.metrics.ObserveProgressionDuration(time.Since(start).Seconds())
	return step, nil
}

func (e *Engine) snapshot() *Snapshot {
	b := e.b.Clone()
	return &Snapshot{Bracket: b, Standings: Standings(b)}
}

// Standings picks the table that fits the bracket's format.
func Standings(b *bracket.Bracket) []bracket.Standing {
	switch b.Format {
	case bracket.RoundRobin, bracket.Swiss, bracket.GroupPlayoff:
		return b.Standings(0)
	default:
		return b.Placements()
	}
}
