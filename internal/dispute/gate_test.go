package dispute

import (
	"sync"
	"testing"
	"time"

	"github.com/AdamBeresnev/bracket-engine/internal/bracket"
	"github.com/AdamBeresnev/bracket-engine/internal/match"
	"github.com/AdamBeresnev/bracket-engine/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func liveMatch(t *testing.T, id string) *match.Machine {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	policy := match.Policy{StrictScore: true}
	x := match.New(id, "t1", "b1", 0, false, policy, func() time.Time { return now })

	_, err := x.Seat("alice", "bob", now)
	require.NoError(t, err)
	_, err = x.Tick(now)
	require.NoError(t, err)
	_, err = x.ConfirmCheckIn("alice")
	require.NoError(t, err)
	_, err = x.ConfirmCheckIn("bob")
	require.NoError(t, err)
	_, err = x.Start("organizer")
	require.NoError(t, err)
	return x
}

func disagree(t *testing.T, g *Gate, x *match.Machine) {
	t.Helper()
	ch, err := x.Submit(match.Submission{Submitter: "alice", Score: bracket.Score{A: 2, B: 0}})
	require.NoError(t, err)
	g.Observe(ch)
	ch, err = x.Submit(match.Submission{Submitter: "bob", Score: bracket.Score{A: 0, B: 2}})
	require.NoError(t, err)
	require.Equal(t, match.Disputed, ch.To)
	g.Observe(ch)
}

func TestGateBlocksUntilResolved(t *testing.T) {
	m := metrics.NewMock()
	g := NewGate(m)
	x := liveMatch(t, "m1")

	assert.False(t, g.Blocked("m1"))
	disagree(t, g, x)
	assert.True(t, g.Blocked("m1"))
	assert.Equal(t, 1, m.DisputesOpened(string(match.ReasonWinnerMismatch)))
	assert.Equal(t, 1, m.OpenDisputes())

	d, ok := g.Get("m1")
	require.True(t, ok)
	assert.Len(t, d.Submissions, 2)

	ch, err := g.Resolve(x, bracket.Score{A: 0, B: 2}, "admin", "video shows bob won")
	require.NoError(t, err)
	assert.True(t, ch.Completed())
	assert.False(t, g.Blocked("m1"))
	assert.Equal(t, 1, m.DisputesResolved())
	assert.Equal(t, 0, m.OpenDisputes())

	_, err = g.Resolve(x, bracket.Score{A: 2, B: 0}, "admin", "")
	assert.ErrorIs(t, err, bracket.ErrAlreadyResolved)
}

func TestGateResolveRace(t *testing.T) {
	g := NewGate(metrics.NewMock())
	x := liveMatch(t, "m1")
	disagree(t, g, x)

	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.Resolve(x, bracket.Score{A: 1, B: 0}, "admin", "")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	ok, already := 0, 0
	for err := range results {
		switch {
		case err == nil:
			ok++
		default:
			assert.ErrorIs(t, err, bracket.ErrAlreadyResolved)
			already++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 7, already)
}

func TestGateCancelReleases(t *testing.T) {
	m := metrics.NewMock()
	g := NewGate(m)
	x := liveMatch(t, "m1")
	disagree(t, g, x)

	ch, err := x.Cancel("organizer", "both players disqualified")
	require.NoError(t, err)
	g.Observe(ch)
	assert.False(t, g.Blocked("m1"))
	assert.Equal(t, 0, m.DisputesResolved())
}

func TestGateOpenOrdering(t *testing.T) {
	g := NewGate(metrics.NewMock())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g.Track(match.Match{ID: "late", State: match.Disputed, Dispute: &match.Dispute{MatchID: "late", OpenedAt: base.Add(time.Hour)}})
	g.Track(match.Match{ID: "early", State: match.Disputed, Dispute: &match.Dispute{MatchID: "early", OpenedAt: base}})
	g.Track(match.Match{ID: "done", State: match.Completed})

	open := g.Open()
	require.Len(t, open, 2)
	assert.Equal(t, "early", open[0].MatchID)
	assert.Equal(t, "late", open[1].MatchID)
}

func TestGateIgnoresLateDisputeChange(t *testing.T) {
	m := metrics.NewMock()
	g := NewGate(m)
	x := liveMatch(t, "m1")

	_, err := x.Submit(match.Submission{Submitter: "alice", Score: bracket.Score{A: 2, B: 0}})
	require.NoError(t, err)
	disputed, err := x.Submit(match.Submission{Submitter: "bob", Score: bracket.Score{A: 0, B: 2}})
	require.NoError(t, err)
	require.Equal(t, match.Disputed, disputed.To)

	// The resolver reaches the gate before the submitter's change does.
	resolved, err := g.Resolve(x, bracket.Score{A: 1, B: 0}, "admin", "")
	require.NoError(t, err)
	require.True(t, resolved.Completed())
	g.Observe(disputed)

	assert.Equal(t, match.Completed, x.Snapshot().State)
	assert.False(t, g.Blocked("m1"))
	assert.Empty(t, g.Open())
	assert.Equal(t, 0, m.OpenDisputes())
	assert.Equal(t, 1, m.DisputesResolved())
}

func TestGateTrackSetsBaseline(t *testing.T) {
	g := NewGate(metrics.NewMock())
	g.Track(match.Match{ID: "m1", State: match.Completed, Version: 9})

	g.Observe(match.Change{
		From:  match.PendingResult,
		To:    match.Disputed,
		Match: match.Match{ID: "m1", State: match.Disputed, Version: 7, Dispute: &match.Dispute{MatchID: "m1"}},
	})
	assert.False(t, g.Blocked("m1"))
}
