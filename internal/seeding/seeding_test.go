package seeding

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/AdamBeresnev/bracket-engine/internal/bracket"
	"github.com/AdamBeresnev/bracket-engine/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func field(n int) []bracket.Participant {
	ps := make([]bracket.Participant, n)
	for i := range ps {
		ps[i] = bracket.Participant{ID: bracket.ParticipantID(fmt.Sprintf("p%d", i+1)), RegistrationOrder: i}
	}
	return ps
}

type rankingStub map[bracket.ParticipantID]float64

func (r rankingStub) GetRankingScore(_ context.Context, id bracket.ParticipantID) (*float64, error) {
	if id == "broken" {
		return nil, errors.New("directory unavailable")
	}
	if s, ok := r[id]; ok {
		return &s, nil
	}
	return nil, nil
}

func TestSeedRandomIsReproducible(t *testing.T) {
	ctx := context.Background()
	opts := Options{Method: bracket.SeedRandom, Format: bracket.SingleElimination, RandomSeed: 42}

	first, err := Seed(ctx, field(16), opts)
	require.NoError(t, err)
	second, err := Seed(ctx, field(16), opts)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	reversed := field(16)
	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}
	third, err := Seed(ctx, reversed, opts)
	require.NoError(t, err)
	assert.Equal(t, bracket.IDs(first), bracket.IDs(third), "input order must not matter")

	other, err := Seed(ctx, field(16), Options{Method: bracket.SeedRandom, Format: bracket.SingleElimination, RandomSeed: 7})
	require.NoError(t, err)
	assert.NotEqual(t, bracket.IDs(first), bracket.IDs(other))

	for i, p := range first {
		assert.Equal(t, i+1, p.Seed)
	}
}

func TestSeedInsufficientParticipants(t *testing.T) {
	testCases := []struct {
		format bracket.Format
		count  int
	}{
		{bracket.SingleElimination, 1},
		{bracket.DoubleElimination, 0},
		{bracket.RoundRobin, 2},
		{bracket.Swiss, 2},
		{bracket.GroupPlayoff, 3},
	}
	for _, tc := range testCases {
		t.Run(tc.format.String(), func(t *testing.T) {
			_, err := Seed(context.Background(), field(tc.count), Options{Method: bracket.SeedRandom, Format: tc.format})
			assert.ErrorIs(t, err, bracket.ErrInsufficientParticipants)
		})
	}
}

func TestSeedRanked(t *testing.T) {
	ps := field(5)
	ps[0].RankingScore = utils.Ptr(1200.0)
	source := rankingStub{"p2": 1500, "p3": 1200, "p5": 1800}

	seeded, err := Seed(context.Background(), ps, Options{Method: bracket.SeedRanked, Format: bracket.SingleElimination, Ranking: source})
	require.NoError(t, err)

	// p1 and p3 tie on 1200 and keep registration order; p4 is unranked.
	assert.Equal(t, []bracket.ParticipantID{"p5", "p2", "p1", "p3", "p4"}, bracket.IDs(seeded))
	assert.Nil(t, ps[1].RankingScore, "input slice is not modified")

	_, err = Seed(context.Background(), append(field(2), bracket.Participant{ID: "broken", RegistrationOrder: 9}),
		Options{Method: bracket.SeedRanked, Format: bracket.SingleElimination, Ranking: source})
	assert.Error(t, err)
}

func TestSeedManual(t *testing.T) {
	testCases := []struct {
		name      string
		positions map[bracket.ParticipantID]int
		expected  []bracket.ParticipantID
		err       error
	}{
		{
			name:      "permutation",
			positions: map[bracket.ParticipantID]int{"p1": 3, "p2": 1, "p3": 2},
			expected:  []bracket.ParticipantID{"p2", "p3", "p1"},
		},
		{
			name:      "duplicate position",
			positions: map[bracket.ParticipantID]int{"p1": 1, "p2": 1, "p3": 2},
			err:       bracket.ErrInvalidSeedAssignment,
		},
		{
			name:      "out of range",
			positions: map[bracket.ParticipantID]int{"p1": 1, "p2": 2, "p3": 4},
			err:       bracket.ErrInvalidSeedAssignment,
		},
		{
			name:      "missing participant",
			positions: map[bracket.ParticipantID]int{"p1": 1, "p2": 2},
			err:       bracket.ErrInvalidSeedAssignment,
		},
		{
			name:      "unknown participant",
			positions: map[bracket.ParticipantID]int{"p1": 1, "p2": 2, "zz": 3},
			err:       bracket.ErrInvalidSeedAssignment,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			seeded, err := Seed(context.Background(), field(3), Options{Method: bracket.SeedManual, Format: bracket.SingleElimination, Manual: tc.positions})
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, bracket.IDs(seeded))
		})
	}
}
