package progression

import (
	"fmt"
	"sync"
	"testing"

	"github.com/AdamBeresnev/bracket-engine/internal/bracket"
	"github.com/AdamBeresnev/bracket-engine/internal/generator"
	"github.com/AdamBeresnev/bracket-engine/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockSet map[string]bool

func (s blockSet) Blocked(id string) bool { return s[id] }

func field(n int) []bracket.Participant {
	ps := make([]bracket.Participant, n)
	for i := range ps {
		ps[i] = bracket.Participant{ID: bracket.ParticipantID(fmt.Sprintf("p%d", i+1)), Seed: i + 1, RegistrationOrder: i}
	}
	return ps
}

func bindByNode(_ *bracket.Bracket, n bracket.Node) string {
	return fmt.Sprintf("m-%d", n.ID)
}

func newEngine(t *testing.T, f bracket.Format, n int, gate Blocker) (*Engine, *metrics.Mock) {
	t.Helper()
	b, err := generator.Generate(f, field(n), bracket.Params{})
	require.NoError(t, err)
	m := metrics.NewMock()
	e := New(b, gate, bindByNode, m)
	_, err = e.Start()
	require.NoError(t, err)
	return e, m
}

// betterSeed picks the slot holding the lower seed number.
func betterSeed(b *bracket.Bracket, n bracket.Node) int {
	a, c := n.Participants()
	pa, _ := b.Participant(a)
	pc, _ := b.Participant(c)
	if pa.Seed < pc.Seed {
		return 0
	}
	return 1
}

func pending(b *bracket.Bracket) []bracket.Node {
	var out []bracket.Node
	for _, n := range b.Nodes {
		if n.MatchID != "" && n.Ready() {
			out = append(out, n)
		}
	}
	return out
}

// drive completes bound nodes until the bracket finishes.
func drive(t *testing.T, e *Engine) Step {
	t.Helper()
	for guard := 0; guard < 10_000; guard++ {
		snap := e.Snapshot()
		if snap.Bracket.Completed {
			return Step{Finished: true, Champion: snap.Bracket.Champion, Snapshot: snap}
		}
		open := pending(snap.Bracket)
		require.NotEmpty(t, open, "bracket stalled before finishing")
		n := open[0]
		step, err := e.Complete(Outcome{Node: n.ID, MatchID: n.MatchID, WinnerSlot: betterSeed(snap.Bracket, n)})
		require.NoError(t, err)
		if step.Finished {
			return step
		}
	}
	t.Fatal("bracket never finished")
	return Step{}
}

func TestStartBindsFirstRound(t *testing.T) {
	e, _ := newEngine(t, bracket.SingleElimination, 6, nil)
	snap := e.Snapshot()
	open := pending(snap.Bracket)
	assert.Len(t, open, 2, "seeds 1 and 2 sit out round one")
	for _, n := range open {
		assert.Equal(t, fmt.Sprintf("m-%d", n.ID), n.MatchID)
	}
	assert.Equal(t, uint64(1), snap.Bracket.Version)
}

func TestCompleteRunsToChampion(t *testing.T) {
	testCases := []struct {
		format bracket.Format
		n      int
	}{
		{format: bracket.SingleElimination, n: 8},
		{format: bracket.SingleElimination, n: 5},
		{format: bracket.DoubleElimination, n: 6},
		{format: bracket.RoundRobin, n: 5},
		{format: bracket.Swiss, n: 8},
		{format: bracket.GroupPlayoff, n: 8},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%s/%d", tc.format, tc.n), func(t *testing.T) {
			e, m := newEngine(t, tc.format, tc.n, nil)
			step := drive(t, e)
			assert.True(t, step.Finished)
			assert.Equal(t, bracket.ParticipantID("p1"), step.Champion)

			snap := e.Snapshot()
			assert.True(t, snap.Bracket.Completed)
			require.NotEmpty(t, snap.Standings)
			assert.Equal(t, bracket.ParticipantID("p1"), snap.Standings[0].Participant)
			assert.NotEmpty(t, m.ProgressionDurations())
		})
	}
}

func TestCompleteIsIdempotent(t *testing.T) {
	e, m := newEngine(t, bracket.SingleElimination, 4, nil)
	n := pending(e.Snapshot().Bracket)[0]

	first, err := e.Complete(Outcome{Node: n.ID, MatchID: n.MatchID, WinnerSlot: 0})
	require.NoError(t, err)
	assert.False(t, first.Duplicate)
	version := e.Snapshot().Bracket.Version

	again, err := e.Complete(Outcome{Node: n.ID, MatchID: n.MatchID, WinnerSlot: 0})
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, version, e.Snapshot().Bracket.Version, "a repeated result publishes nothing")

	_, err = e.Complete(Outcome{Node: n.ID, MatchID: n.MatchID, WinnerSlot: 1})
	require.ErrorIs(t, err, bracket.ErrNodeNotReady)
	assert.True(t, e.Snapshot().Bracket.Node(n.ID).Frozen)
	assert.Equal(t, 1, m.NodesFrozen())

	_, err = e.Complete(Outcome{Node: n.ID, MatchID: n.MatchID, WinnerSlot: 0})
	assert.ErrorIs(t, err, bracket.ErrNodeFrozen)
}

func TestCompleteRejectsUnknownAndMismatched(t *testing.T) {
	e, _ := newEngine(t, bracket.SingleElimination, 4, nil)
	_, err := e.Complete(Outcome{Node: 99, WinnerSlot: 0})
	assert.ErrorIs(t, err, bracket.ErrNotFound)

	n := pending(e.Snapshot().Bracket)[0]
	_, err = e.Complete(Outcome{Node: n.ID, MatchID: "someone-else", WinnerSlot: 0})
	assert.ErrorIs(t, err, bracket.ErrNodeNotReady)
	assert.False(t, e.Snapshot().Bracket.Node(n.ID).Frozen)
}

func TestConcurrentSiblingsBindParentOnce(t *testing.T) {
	e, _ := newEngine(t, bracket.SingleElimination, 16, nil)
	first := pending(e.Snapshot().Bracket)
	require.Len(t, first, 8)

	var (
		mu    sync.Mutex
		bound []bracket.NodeID
		wg    sync.WaitGroup
	)
	for _, n := range first {
		wg.Add(1)
		go func(n bracket.Node) {
			defer wg.Done()
			step, err := e.Complete(Outcome{Node: n.ID, MatchID: n.MatchID, WinnerSlot: 0})
			assert.NoError(t, err)
			mu.Lock()
			for _, b := range step.Bound {
				bound = append(bound, b.ID)
			}
			mu.Unlock()
		}(n)
	}
	wg.Wait()

	assert.Len(t, bound, 4)
	seen := map[bracket.NodeID]bool{}
	for _, id := range bound {
		assert.False(t, seen[id], "node %d bound twice", id)
		seen[id] = true
	}
	snap := e.Snapshot()
	assert.Len(t, pending(snap.Bracket), 4)
	assert.Equal(t, uint64(1+8), snap.Bracket.Version)
}

func TestConflictFreezesBothNodes(t *testing.T) {
	b := bracket.New(bracket.SingleElimination, field(4), bracket.Params{})
	left := b.NewNode(bracket.WinnersSide, 0, 0, 1, 0)
	right := b.NewNode(bracket.WinnersSide, 0, 0, 1, 1)
	final := b.NewNode(bracket.WinnersSide, 0, 0, 2, 0)
	b.Nodes[left].WinnerTo = bracket.Edge{To: final, Slot: 0}
	b.Nodes[right].WinnerTo = bracket.Edge{To: final, Slot: 1}
	b.Nodes[final].WinnerTo = bracket.TerminalEdge
	b.Nodes[left].Slots = [2]bracket.Slot{bracket.Filled("p1"), bracket.Filled("p4")}
	b.Nodes[right].Slots = [2]bracket.Slot{bracket.Filled("p2"), bracket.Filled("p3")}
	b.Nodes[final].Slots[0] = bracket.Filled("p9")

	m := metrics.NewMock()
	e := New(b, nil, bindByNode, m)
	_, err := e.Start()
	require.NoError(t, err)

	step, err := e.Complete(Outcome{Node: left, WinnerSlot: 0})
	require.ErrorIs(t, err, bracket.ErrNodeNotReady)
	assert.ElementsMatch(t, []bracket.NodeID{left, final}, step.Frozen)
	assert.Equal(t, 2, m.NodesFrozen())

	snap := e.Snapshot()
	assert.False(t, snap.Bracket.Node(left).Completed)
	assert.Equal(t, bracket.Filled("p9"), snap.Bracket.Node(final).Slots[0])

	_, err = e.Complete(Outcome{Node: left, WinnerSlot: 0})
	assert.ErrorIs(t, err, bracket.ErrNodeFrozen)

	// Siblings keep flowing while the conflict is investigated.
	_, err = e.Complete(Outcome{Node: right, WinnerSlot: 0})
	require.NoError(t, err)

	_, err = e.Unfreeze(left)
	require.NoError(t, err)
	assert.False(t, e.Snapshot().Bracket.Node(left).Frozen)
}

func TestDisputedMatchIsBlocked(t *testing.T) {
	gate := blockSet{}
	e, _ := newEngine(t, bracket.SingleElimination, 4, gate)
	n := pending(e.Snapshot().Bracket)[0]
	gate[n.MatchID] = true

	_, err := e.Complete(Outcome{Node: n.ID, MatchID: n.MatchID, WinnerSlot: 0})
	require.ErrorIs(t, err, bracket.ErrDisputed)
	assert.False(t, e.Snapshot().Bracket.Node(n.ID).Completed)

	_, err = e.AdvanceManually(n.ID, "p1")
	require.ErrorIs(t, err, bracket.ErrDisputed)

	delete(gate, n.MatchID)
	_, err = e.Complete(Outcome{Node: n.ID, MatchID: n.MatchID, WinnerSlot: 0})
	require.NoError(t, err)
}

func TestSwissAppendsNextRound(t *testing.T) {
	e, _ := newEngine(t, bracket.Swiss, 8, nil)
	round1 := pending(e.Snapshot().Bracket)
	require.Len(t, round1, 4)

	var last Step
	for _, n := range round1 {
		step, err := e.Complete(Outcome{Node: n.ID, MatchID: n.MatchID, WinnerSlot: 0})
		require.NoError(t, err)
		last = step
	}
	assert.Len(t, last.Appended, 4)
	assert.Len(t, last.Bound, 4)
	assert.Equal(t, 2, e.Snapshot().Bracket.CurrentRound)
}

func TestCancelStallsUntilManualAdvance(t *testing.T) {
	e, _ := newEngine(t, bracket.SingleElimination, 4, nil)
	open := pending(e.Snapshot().Bracket)
	require.Len(t, open, 2)
	cancelled, other := open[0], open[1]

	_, err := e.Cancel(cancelled.ID)
	require.NoError(t, err)
	_, err = e.Cancel(cancelled.ID)
	assert.ErrorIs(t, err, bracket.ErrInvalidStateTransition)

	step, err := e.Complete(Outcome{Node: other.ID, MatchID: other.MatchID, WinnerSlot: 0})
	require.NoError(t, err)
	assert.Empty(t, step.Bound, "the final waits for the cancelled side")

	_, err = e.AdvanceManually(cancelled.ID, "nobody")
	assert.ErrorIs(t, err, bracket.ErrNotParticipant)

	winner, _ := cancelled.Participants()
	step, err = e.AdvanceManually(cancelled.ID, winner)
	require.NoError(t, err)
	require.Len(t, step.Bound, 1)

	step, err = e.AdvanceManually(cancelled.ID, winner)
	require.NoError(t, err)
	assert.True(t, step.Duplicate)
}

func TestSnapshotIsImmutable(t *testing.T) {
	e, _ := newEngine(t, bracket.SingleElimination, 4, nil)
	before := e.Snapshot()
	n := pending(before.Bracket)[0]

	_, err := e.Complete(Outcome{Node: n.ID, MatchID: n.MatchID, WinnerSlot: 0})
	require.NoError(t, err)

	assert.False(t, before.Bracket.Node(n.ID).Completed)
	assert.True(t, e.Snapshot().Bracket.Node(n.ID).Completed)
}
