package service

import (
	"context"
	"testing"

	"github.com/AdamBeresnev/bracket-engine/internal/bracket"
	"github.com/AdamBeresnev/bracket-engine/internal/directory"
	"github.com/AdamBeresnev/bracket-engine/internal/events"
	"github.com/AdamBeresnev/bracket-engine/internal/match"
	"github.com/AdamBeresnev/bracket-engine/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancelTournament(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tid := h.tournament(t, 4)
	h.generate(t, tid, bracket.SingleElimination)

	open := h.scheduled(t, tid)
	require.Len(t, open, 2)
	h.toLive(t, open[0].ID)

	_, err := h.svc.CancelTournament(ctx, tid, "organizer", "")
	assert.ErrorIs(t, err, bracket.ErrReasonRequired)

	n, err := h.svc.CancelTournament(ctx, tid, "organizer", "venue flooded")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, m := range open {
		got, err := h.svc.GetMatch(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, match.Cancelled, got.State)
		assert.Equal(t, "venue flooded", got.CancelReason)
		assert.NotNil(t, got.DeletedAt)
	}

	snap, err := h.svc.GetBracketView(ctx, tid)
	require.NoError(t, err)
	assert.Empty(t, h.scheduled(t, tid))
	assert.False(t, snap.Bracket.Completed)

	tour, err := h.svc.GetTournament(ctx, tid)
	require.NoError(t, err)
	assert.Equal(t, directory.StatusCancelled, tour.Status)

	live, err := store.NewTournamentStore(h.db).ListMatches(ctx, snap.Bracket.ID)
	require.NoError(t, err)
	assert.Empty(t, live)

	_, err = h.svc.GenerateBracket(ctx, tid, GenerateRequest{Format: bracket.SingleElimination, Method: bracket.SeedRanked, Regenerate: true})
	assert.ErrorIs(t, err, bracket.ErrInvalidStateTransition)
	_, err = h.svc.AdvanceManually(ctx, tid, open[0].Node, open[0].Participants[0])
	assert.ErrorIs(t, err, bracket.ErrInvalidStateTransition)

	assert.Equal(t, 2, countType(h.eventTypes(), events.MatchCancelled))
	assert.Equal(t, 2, h.metrics.MatchesCancelled())
}

func TestCancelTournamentWithoutBracket(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tid := h.tournament(t, 3)

	n, err := h.svc.CancelTournament(ctx, tid, "organizer", "not enough sign-ups")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = h.svc.CancelTournament(ctx, "missing", "organizer", "typo")
	assert.ErrorIs(t, err, bracket.ErrNotFound)
}

func TestSweepForfeitsAndNoShows(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tid := h.tournament(t, 4)
	h.generate(t, tid, bracket.SingleElimination)

	open := h.scheduled(t, tid)
	require.Len(t, open, 2)

	fired, err := h.svc.Sweep(ctx, h.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, fired, "check-in opens for both matches")

	present := open[0].Participants[0]
	_, err = h.svc.CheckIn(ctx, open[0].ID, present)
	require.NoError(t, err)

	fired, err = h.svc.Sweep(ctx, h.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, fired)

	closed := h.clock.Advance(h.svc.policy.CheckInWindow)
	fired, err = h.svc.Sweep(ctx, closed)
	require.NoError(t, err)
	assert.Equal(t, 2, fired)

	forfeited, err := h.svc.GetMatch(ctx, open[0].ID)
	require.NoError(t, err)
	assert.Equal(t, match.Completed, forfeited.State)
	assert.True(t, forfeited.Forfeit)
	assert.Equal(t, present, forfeited.Winner())

	noShow, err := h.svc.GetMatch(ctx, open[1].ID)
	require.NoError(t, err)
	assert.Equal(t, match.Cancelled, noShow.State)
	assert.Equal(t, match.CancelNoShow, noShow.CancelReason)

	assert.Equal(t, 1, h.metrics.Forfeits())
	assert.Equal(t, 1, h.metrics.MatchesCancelled())

	snap, err := h.svc.GetBracketView(ctx, tid)
	require.NoError(t, err)
	assert.Equal(t, present, snap.Bracket.Node(open[0].Node).Winner())
	assert.True(t, snap.Bracket.Node(open[1].Node).Cancelled)
}

func TestSweepDisputesMissingResults(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tid := h.tournament(t, 2)
	h.generate(t, tid, bracket.SingleElimination)

	m := h.toLive(t, h.scheduled(t, tid)[0].ID)
	_, err := h.svc.SubmitResult(ctx, m.ID, m.Participants[0], bracket.Score{A: 1, B: 0}, Proof{})
	require.NoError(t, err)

	fired, err := h.svc.Sweep(ctx, h.clock.Advance(h.svc.policy.ResultWindow))
	require.NoError(t, err)
	assert.Equal(t, 1, fired)

	got, err := h.svc.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, match.Disputed, got.State, "a one-sided claim is never accepted")
	assert.Equal(t, match.ReasonDeadline, got.Dispute.Reason)

	snap, err := h.svc.GetBracketView(ctx, tid)
	require.NoError(t, err)
	assert.False(t, snap.Bracket.Completed)
}

func TestRoundRobinStandingsWithDraws(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tid := h.tournament(t, 3)
	h.generate(t, tid, bracket.RoundRobin)

	open := h.scheduled(t, tid)
	require.Len(t, open, 3)

	partial, err := h.svc.GetStandings(ctx, tid)
	require.NoError(t, err)
	require.Len(t, partial, 3)
	for _, row := range partial {
		assert.Zero(t, row.Played)
	}

	for _, m := range open {
		require.True(t, m.AllowDraw)
		m = h.toLive(t, m.ID)
		for _, p := range m.Participants {
			_, err := h.svc.SubmitResult(ctx, m.ID, p, bracket.Score{A: 1, B: 1}, Proof{})
			require.NoError(t, err)
		}
	}

	table, err := h.svc.GetStandings(ctx, tid)
	require.NoError(t, err)
	require.Len(t, table, 3)
	for _, row := range table {
		assert.Equal(t, 2, row.Played)
		assert.Equal(t, 2, row.Draws)
		assert.Equal(t, 2*bracket.DrawPoints, row.Points)
		assert.Equal(t, 1, row.Byes)
	}
	assert.Equal(t, bracket.ParticipantID("p1"), table[0].Participant, "level on points, seed decides")

	snap, err := h.svc.GetBracketView(ctx, tid)
	require.NoError(t, err)
	assert.True(t, snap.Bracket.Completed)
}

func TestUnfreezeUnknownNode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tid := h.tournament(t, 2)
	h.generate(t, tid, bracket.SingleElimination)

	_, err := h.svc.Unfreeze(ctx, tid, 99)
	assert.ErrorIs(t, err, bracket.ErrNotFound)

	snap, err := h.svc.Unfreeze(ctx, tid, 0)
	require.NoError(t, err, "unfreezing a healthy node is a no-op")
	assert.False(t, snap.Bracket.Node(0).Frozen)

	_, err = h.svc.Unfreeze(ctx, "missing", 0)
	assert.ErrorIs(t, err, bracket.ErrNotFound)
}
