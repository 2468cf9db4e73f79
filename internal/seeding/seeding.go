// Package seeding orders a participant set before bracket generation.
package seeding

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/AdamBeresnev/bracket-engine/internal/bracket"
)

// RankingSource looks up an external ranking score. A nil score means unranked.
type RankingSource interface {
	GetRankingScore(ctx context.Context, id bracket.ParticipantID) (*float64, error)
}

type Options struct {
	Method bracket.SeedingMethod
	Format bracket.Format
	// RandomSeed makes random seeding reproducible.
	RandomSeed uint64
	// Ranking fills in scores the participants do not carry yet. Optional.
	Ranking RankingSource
	// Manual maps every participant to a 1-based seed position.
	Manual map[bracket.ParticipantID]int
}

// Seed returns a copy of participants in seed order with Seed set to 1..N.
func Seed(ctx context.Context, participants []bracket.Participant, opts Options) ([]bracket.Participant, error) {
	if need := opts.Format.MinParticipants(); len(participants) < need {
		return nil, fmt.Errorf("%w: %s needs at least %d, got %d",
			bracket.ErrInsufficientParticipants, opts.Format, need, len(participants))
	}

	seeded := append([]bracket.Participant(nil), participants...)
	sort.SliceStable(seeded, func(i, j int) bool {
		return seeded[i].RegistrationOrder < seeded[j].RegistrationOrder
	})

	var err error
	switch opts.Method {
	case bracket.SeedRandom:
		shuffle(seeded, opts.RandomSeed)
	case bracket.SeedRanked:
		err = rank(ctx, seeded, opts.Ranking)
	case bracket.SeedManual:
		seeded, err = manual(seeded, opts.Manual)
	default:
		err = fmt.Errorf("%w: unknown method %q", bracket.ErrInvalidSeedAssignment, opts.Method)
	}
	if err != nil {
		return nil, err
	}

	for i := range seeded {
		seeded[i].Seed = i + 1
	}
	return seeded, nil
}

func shuffle(ps []bracket.Participant, seed uint64) {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	r.Shuffle(len(ps), func(i, j int) {
		ps[i], ps[j] = ps[j], ps[i]
	})
}

// rank orders by score descending. Unranked participants go last; ties keep
// registration order.
func rank(ctx context.Context, ps []bracket.Participant, source RankingSource) error {
	if source != nil {
		for i := range ps {
			if ps[i].RankingScore != nil {
				continue
			}
			score, err := source.GetRankingScore(ctx, ps[i].ID)
			if err != nil {
				return fmt.Errorf("ranking score for %s: %w", ps[i].ID, err)
			}
			ps[i].RankingScore = score
		}
	}

	sort.SliceStable(ps, func(i, j int) bool {
		a, b := ps[i].RankingScore, ps[j].RankingScore
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a > *b
		}
	})
	return nil
}

func manual(ps []bracket.Participant, positions map[bracket.ParticipantID]int) ([]bracket.Participant, error) {
	if len(positions) != len(ps) {
		return nil, fmt.Errorf("%w: %d positions for %d participants",
			bracket.ErrInvalidSeedAssignment, len(positions), len(ps))
	}

	out := make([]bracket.Participant, len(ps))
	taken := make([]bool, len(ps))
	for _, p := range ps {
		pos, ok := positions[p.ID]
		if !ok {
			return nil, fmt.Errorf("%w: no position for %s", bracket.ErrInvalidSeedAssignment, p.ID)
		}
		if pos < 1 || pos > len(ps) {
			return nil, fmt.Errorf("%w: position %d out of range 1..%d", bracket.ErrInvalidSeedAssignment, pos, len(ps))
		}
		if taken[pos-1] {
			return nil, fmt.Errorf("%w: position %d assigned twice", bracket.ErrInvalidSeedAssignment, pos)
		}
		taken[pos-1] = true
		out[pos-1] = p
	}
	return out, nil
}
