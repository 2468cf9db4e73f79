package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/AdamBeresnev/bracket-engine/internal/bracket"
	"github.com/AdamBeresnev/bracket-engine/internal/db"
	"github.com/AdamBeresnev/bracket-engine/internal/directory"
	"github.com/AdamBeresnev/bracket-engine/internal/events"
	"github.com/AdamBeresnev/bracket-engine/internal/evidence"
	"github.com/AdamBeresnev/bracket-engine/internal/match"
	"github.com/AdamBeresnev/bracket-engine/internal/metrics"
	"github.com/AdamBeresnev/bracket-engine/internal/store"
	"github.com/jmoiron/sqlx"
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

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
	return c.t
}

type harness struct {
	svc     *Service
	db      *sqlx.DB
	events  *events.Log
	metrics *metrics.Mock
	clock   *clock
}

func newHarnessOn(t *testing.T, database *sqlx.DB, c *clock) *harness {
	t.Helper()
	h := &harness{
		db:      database,
		events:  events.NewLog(),
		metrics: metrics.NewMock(),
		clock:   c,
	}
	h.svc = New(
		store.NewTournamentStore(database),
		directory.New(database),
		evidence.NewMemory(),
		h.events,
		h.metrics,
		Options{Policy: match.DefaultPolicy(), BracketReset: true, Now: c.Now},
	)
	return h
}

var testStart = time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	return newHarnessOn(t, setupTestDB(t), &clock{t: testStart})
}

// tournament registers p1..pN ranked so that pK gets seed K.
func (h *harness) tournament(t *testing.T, n int) string {
	t.Helper()
	ctx := context.Background()
	tour, err := h.svc.CreateTournament(ctx, "Summer Series")
	require.NoError(t, err)
	for i := 1; i <= n; i++ {
		id := bracket.ParticipantID(fmt.Sprintf("p%d", i))
		require.NoError(t, h.svc.Register(ctx, tour.ID, id, string(id)))
		require.NoError(t, h.svc.SetRankingScore(ctx, id, float64(1000-i)))
	}
	return tour.ID
}

func (h *harness) generate(t *testing.T, tid string, f bracket.Format) {
	t.Helper()
	_, err := h.svc.GenerateBracket(context.Background(), tid, GenerateRequest{Format: f, Method: bracket.SeedRanked})
	require.NoError(t, err)
}

func (h *harness) scheduled(t *testing.T, tid string) []match.Match {
	t.Helper()
	ms, err := h.svc.Matches(context.Background(), tid, match.Scheduled)
	require.NoError(t, err)
	return ms
}

// toLive checks both participants in and starts the match.
func (h *harness) toLive(t *testing.T, id string) match.Match {
	t.Helper()
	ctx := context.Background()
	m, err := h.svc.GetMatch(ctx, id)
	require.NoError(t, err)
	for _, p := range m.Participants {
		_, err = h.svc.CheckIn(ctx, id, p)
		require.NoError(t, err)
	}
	m, err = h.svc.StartMatch(ctx, id, "organizer")
	require.NoError(t, err)
	require.Equal(t, match.Live, m.State)
	return m
}

// play runs a match to an agreed 2-1 result for winner.
func (h *harness) play(t *testing.T, id string, winner bracket.ParticipantID) match.Match {
	t.Helper()
	m := h.toLive(t, id)
	score := bracket.Oriented(m.SlotOf(winner), 2, 1)
	var err error
	for _, p := range m.Participants {
		m, err = h.svc.SubmitResult(context.Background(), id, p, score, Proof{})
		require.NoError(t, err)
	}
	require.Equal(t, match.Completed, m.State)
	return m
}

func (h *harness) favourite(t *testing.T, tid string, m match.Match) bracket.ParticipantID {
	t.Helper()
	snap, err := h.svc.GetBracketView(context.Background(), tid)
	require.NoError(t, err)
	a, _ := snap.Bracket.Participant(m.Participants[0])
	b, _ := snap.Bracket.Participant(m.Participants[1])
	if a.Seed < b.Seed {
		return a.ID
	}
	return b.ID
}

// drive plays every scheduled match, better seed winning, until none is left.
func (h *harness) drive(t *testing.T, tid string) {
	t.Helper()
	for guard := 0; guard < 1000; guard++ {
		open := h.scheduled(t, tid)
		if len(open) == 0 {
			return
		}
		for _, m := range open {
			h.play(t, m.ID, h.favourite(t, tid, m))
		}
	}
	t.Fatal("tournament never ran out of matches")
}

func (h *harness) eventTypes() []events.Type {
	var out []events.Type
	for _, ev := range h.events.Since(0) {
		out = append(out, ev.Type)
	}
	return out
}

func countType(types []events.Type, want events.Type) int {
	n := 0
	for _, t := range types {
		if t == want {
			n++
		}
	}
	return n
}
