package store

import (
	"context"
	"testing"
	"time"

	"github.com/AdamBeresnev/bracket-engine/internal/bracket"
	"github.com/AdamBeresnev/bracket-engine/internal/db"
	"github.com/AdamBeresnev/bracket-engine/internal/generator"
	"github.com/AdamBeresnev/bracket-engine/internal/match"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates an in-memory SQLite database and applies migrations
func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	database, err := db.InitMemoryDB()
	require.NoError(t, err, "Failed to connect to in-memory DB")
	t.Cleanup(func() { database.Close() })

	require.NoError(t, db.RunMigrations(database.DB, "file://../../migrations"), "Failed to apply migrations")
	return database
}

func createTournament(t *testing.T, database *sqlx.DB) string {
	t.Helper()
	id := uuid.NewString()
	_, err := database.Exec("INSERT INTO tournaments (id, name) VALUES (?, ?)", id, "Spring Open")
	require.NoError(t, err)
	return id
}

func generated(t *testing.T, tournamentID string) *bracket.Bracket {
	t.Helper()
	seeded := []bracket.Participant{
		{ID: "alice", Seed: 1}, {ID: "bob", Seed: 2}, {ID: "carol", Seed: 3}, {ID: "dave", Seed: 4},
	}
	b, err := generator.Generate(bracket.SingleElimination, seeded, bracket.Params{})
	require.NoError(t, err)
	b.ID = uuid.NewString()
	b.TournamentID = tournamentID
	b.Version = 1
	b.CreatedAt = time.Now().UTC().Truncate(time.Second)
	return b
}

func TestSaveAndGetBracket(t *testing.T) {
	database := setupTestDB(t)
	s := NewTournamentStore(database)
	ctx := context.Background()
	tid := createTournament(t, database)

	b := generated(t, tid)
	require.NoError(t, s.SaveBracket(ctx, b))

	fetched, err := s.GetBracket(ctx, tid)
	require.NoError(t, err)
	assert.Equal(t, b.ID, fetched.ID)
	assert.Equal(t, bracket.SingleElimination, fetched.Format)
	assert.Equal(t, b.Nodes, fetched.Nodes)
	assert.Equal(t, b.Participants, fetched.Participants)

	_, err = s.GetBracket(ctx, "missing")
	assert.ErrorIs(t, err, bracket.ErrNotFound)
}

func TestSaveBracketIgnoresStaleVersions(t *testing.T) {
	database := setupTestDB(t)
	s := NewTournamentStore(database)
	ctx := context.Background()
	tid := createTournament(t, database)

	b := generated(t, tid)
	b.Version = 5
	b.Champion = "alice"
	require.NoError(t, s.SaveBracket(ctx, b))

	stale := b.Clone()
	stale.Version = 3
	stale.Champion = ""
	require.NoError(t, s.SaveBracket(ctx, stale))

	fetched, err := s.GetBracket(ctx, tid)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), fetched.Version)
	assert.Equal(t, bracket.ParticipantID("alice"), fetched.Champion)

	regenerated := generated(t, tid)
	regenerated.Version = 1
	require.NoError(t, s.SaveBracket(ctx, regenerated))

	fetched, err = s.GetBracket(ctx, tid)
	require.NoError(t, err)
	assert.Equal(t, regenerated.ID, fetched.ID, "a new bracket id replaces the old arena")

	all, err := s.ListBrackets(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func playedMatch(t *testing.T, tid, bid string) *match.Machine {
	t.Helper()
	now := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	x := match.New(uuid.NewString(), tid, bid, 0, false, match.DefaultPolicy(), clock)
	_, err := x.Seat("alice", "dave", now)
	require.NoError(t, err)
	_, err = x.Tick(now)
	require.NoError(t, err)
	for _, p := range []bracket.ParticipantID{"alice", "dave"} {
		_, err = x.ConfirmCheckIn(p)
		require.NoError(t, err)
	}
	_, err = x.Start("organizer")
	require.NoError(t, err)
	return x
}

func TestSaveMatchWithTransitionsAndDispute(t *testing.T) {
	database := setupTestDB(t)
	s := NewTournamentStore(database)
	ctx := context.Background()
	tid := createTournament(t, database)
	b := generated(t, tid)
	require.NoError(t, s.SaveBracket(ctx, b))

	x := playedMatch(t, tid, b.ID)
	require.NoError(t, s.SaveMatch(ctx, x.Snapshot()))

	_, err := x.Submit(match.Submission{Submitter: "alice", Score: bracket.Score{A: 2, B: 1}})
	require.NoError(t, err)
	ch, err := x.Submit(match.Submission{Submitter: "dave", Score: bracket.Score{A: 1, B: 2}})
	require.NoError(t, err)
	require.Equal(t, match.Disputed, ch.To)
	require.NoError(t, s.SaveMatch(ctx, ch.Match))

	open, err := s.ListOpenDisputes(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, match.ReasonWinnerMismatch, open[0].Reason)
	assert.Len(t, open[0].Submissions, 2)

	ch, err = x.Resolve(bracket.Score{A: 2, B: 1}, "admin", "replay reviewed")
	require.NoError(t, err)
	require.NoError(t, s.SaveMatch(ctx, ch.Match))

	open, err = s.ListOpenDisputes(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	fetched, err := s.GetMatch(ctx, x.ID())
	require.NoError(t, err)
	assert.Equal(t, match.Completed, fetched.State)
	assert.Equal(t, bracket.ParticipantID("alice"), fetched.Winner())

	history, err := s.ListTransitions(ctx, x.ID())
	require.NoError(t, err)
	assert.Equal(t, ch.Match.History[len(ch.Match.History)-1].To, history[len(history)-1].To)
	assert.Len(t, history, len(ch.Match.History))
}

func TestSaveMatchKeepsNewestVersion(t *testing.T) {
	database := setupTestDB(t)
	s := NewTournamentStore(database)
	ctx := context.Background()
	tid := createTournament(t, database)
	b := generated(t, tid)
	require.NoError(t, s.SaveBracket(ctx, b))

	x := playedMatch(t, tid, b.ID)
	older := x.Snapshot()
	_, err := x.Cancel("organizer", "venue closed")
	require.NoError(t, err)
	require.NoError(t, s.SaveMatch(ctx, x.Snapshot()))
	require.NoError(t, s.SaveMatch(ctx, older))

	fetched, err := s.GetMatch(ctx, x.ID())
	require.NoError(t, err)
	assert.Equal(t, match.Cancelled, fetched.State)
}

func TestSoftDeleteMatches(t *testing.T) {
	database := setupTestDB(t)
	s := NewTournamentStore(database)
	ctx := context.Background()
	tid := createTournament(t, database)
	b := generated(t, tid)
	require.NoError(t, s.SaveBracket(ctx, b))

	x := playedMatch(t, tid, b.ID)
	require.NoError(t, s.SaveMatch(ctx, x.Snapshot()))

	live, err := s.ListMatches(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, live, 1)

	n, err := s.SoftDeleteMatches(ctx, tid, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	live, err = s.ListMatches(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, live)

	fetched, err := s.GetMatch(ctx, x.ID())
	require.NoError(t, err, "soft-deleted matches stay readable for audit")
	assert.NotNil(t, fetched.DeletedAt)
}
