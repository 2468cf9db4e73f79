package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AdamBeresnev/bracket-engine/internal/bracket"
	"github.com/AdamBeresnev/bracket-engine/internal/directory"
	"github.com/AdamBeresnev/bracket-engine/internal/match"
	"github.com/AdamBeresnev/bracket-engine/internal/progression"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// cancelFanOut bounds how many matches are cancelled at once.
const cancelFanOut = 8

func (s *Service) CreateTournament(ctx context.Context, name string) (*directory.Tournament, error) {
	if name == "" {
		return nil, fmt.Errorf("tournament name: %w", bracket.ErrReasonRequired)
	}
	return s.directory.CreateTournament(ctx, uuid.NewString(), name)
}

func (s *Service) GetTournament(ctx context.Context, id string) (*directory.Tournament, error) {
	return s.directory.GetTournament(ctx, id)
}

func (s *Service) Register(ctx context.Context, tournamentID string, id bracket.ParticipantID, name string) error {
	if id == "" {
		return fmt.Errorf("%w: empty participant id", bracket.ErrNotParticipant)
	}
	return s.directory.Register(ctx, tournamentID, id, name)
}

func (s *Service) ListParticipants(ctx context.Context, tournamentID string) ([]bracket.Participant, error) {
	return s.directory.ListRegisteredParticipants(ctx, tournamentID)
}

func (s *Service) SetRankingScore(ctx context.Context, id bracket.ParticipantID, score float64) error {
	return s.directory.SetRankingScore(ctx, id, score)
}

// GetBracketView returns the latest published snapshot. It takes no locks.
func (s *Service) GetBracketView(_ context.Context, tournamentID string) (*progression.Snapshot, error) {
	rt, err := s.tournament(tournamentID)
	if err != nil {
		return nil, err
	}
	return rt.engine.Snapshot(), nil
}

// GetStandings is valid at any point of the tournament, partial or final.
func (s *Service) GetStandings(ctx context.Context, tournamentID string) ([]bracket.Standing, error) {
	snap, err := s.GetBracketView(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	return snap.Standings, nil
}

// AdvanceManually decides a node whose match was cancelled or never bound.
// A match still in play must be cancelled first.
func (s *Service) AdvanceManually(ctx context.Context, tournamentID string, node bracket.NodeID, winner bracket.ParticipantID) (*progression.Snapshot, error) {
	rt, err := s.tournament(tournamentID)
	if err != nil {
		return nil, err
	}
	if rt.isCancelled() {
		return nil, fmt.Errorf("tournament %s is cancelled: %w", tournamentID, bracket.ErrInvalidStateTransition)
	}
	if n := rt.engine.Snapshot().Bracket.Node(node); n != nil && n.MatchID != "" {
		if x := rt.machine(n.MatchID); x != nil {
			if st := x.Snapshot().State; !st.Terminal() {
				return nil, fmt.Errorf("match %s is %s: %w", n.MatchID, st, bracket.ErrInvalidStateTransition)
			}
		}
	}

	step, err := rt.engine.AdvanceManually(node, winner)
	if serr := s.afterStep(ctx, rt, step); serr != nil && err == nil {
		err = serr
	}
	if err != nil {
		return nil, err
	}
	log.Info("Node advanced manually", "tournament", tournamentID, "node", node, "winner", winner)
	return step.Snapshot, nil
}

// Unfreeze releases a node frozen after a conflicting write.
func (s *Service) Unfreeze(ctx context.Context, tournamentID string, node bracket.NodeID) (*progression.Snapshot, error) {
	rt, err := s.tournament(tournamentID)
	if err != nil {
		return nil, err
	}
	step, err := rt.engine.Unfreeze(node)
	if err != nil {
		return nil, err
	}
	if err := s.afterStep(ctx, rt, step); err != nil {
		return nil, err
	}
	log.Warn("Node unfrozen", "tournament", tournamentID, "node", node)
	return step.Snapshot, nil
}

// CancelTournament moves every match still in play to CANCELLED and
// soft-deletes the tournament's matches. Matches are cancelled
// independently; one failure does not stop the others.
func (s *Service) CancelTournament(ctx context.Context, tournamentID, actor, reason string) (int, error) {
	if reason == "" {
		return 0, fmt.Errorf("cancel tournament %s: %w", tournamentID, bracket.ErrReasonRequired)
	}
	if _, err := s.directory.GetTournament(ctx, tournamentID); err != nil {
		return 0, err
	}

	var (
		cancelled atomic.Int32
		mu        sync.Mutex
		errs      []error
	)
	fail := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}
	if rt := s.runtimeFor(tournamentID); rt != nil {
		rt.markCancelled()

		var g errgroup.Group
		g.SetLimit(cancelFanOut)
		for _, x := range rt.all() {
			g.Go(func() error {
				ch, err := x.Cancel(actor, reason)
				if errors.Is(err, bracket.ErrInvalidStateTransition) {
					return nil
				}
				if err != nil {
					fail(err)
					return nil
				}
				cancelled.Add(1)
				if _, err := s.afterChange(ctx, rt, ch, false); err != nil {
					fail(err)
				}
				return nil
			})
		}
		_ = g.Wait()
		for _, x := range rt.all() {
			x.SoftDelete()
		}
	}

	if _, err := s.store.SoftDeleteMatches(ctx, tournamentID, s.now()); err != nil {
		errs = append(errs, err)
	}
	if err := s.directory.SetStatus(ctx, tournamentID, directory.StatusCancelled); err != nil {
		errs = append(errs, err)
	}
	n := int(cancelled.Load())
	log.Warn("Tournament cancelled", "tournament", tournamentID, "actor", actor, "reason", reason, "matches", n)
	return n, errors.Join(errs...)
}

// Sweep fires the time-driven transitions that are due at now: check-in
// opening and expiry, and result deadlines.
func (s *Service) Sweep(ctx context.Context, now time.Time) (int, error) {
	fired := 0
	var errs []error
	for _, rt := range s.runtimes() {
		if rt.isCancelled() {
			continue
		}
		for _, x := range rt.all() {
			ch, err := x.Tick(now)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if ch.Noop {
				continue
			}
			fired++
			if _, err := s.afterChange(ctx, rt, ch, false); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if fired > 0 {
		log.Debug("Sweep fired transitions", "count", fired)
	}
	return fired, errors.Join(errs...)
}

// Matches lists the tournament's live matches, optionally filtered by state.
func (s *Service) Matches(_ context.Context, tournamentID string, states ...match.State) ([]match.Match, error) {
	rt, err := s.tournament(tournamentID)
	if err != nil {
		return nil, err
	}
	var out []match.Match
	for _, x := range rt.all() {
		m := x.Snapshot()
		if len(states) == 0 || slices.Contains(states, m.State) {
			out = append(out, m)
		}
	}
	return out, nil
}
