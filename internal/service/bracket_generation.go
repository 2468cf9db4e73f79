package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/AdamBeresnev/bracket-engine/internal/bracket"
	"github.com/AdamBeresnev/bracket-engine/internal/directory"
	"github.com/AdamBeresnev/bracket-engine/internal/events"
	"github.com/AdamBeresnev/bracket-engine/internal/generator"
	"github.com/AdamBeresnev/bracket-engine/internal/match"
	"github.com/AdamBeresnev/bracket-engine/internal/progression"
	"github.com/AdamBeresnev/bracket-engine/internal/seeding"
	"github.com/AdamBeresnev/bracket-engine/internal/utils"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

const regeneratedReason = "bracket regenerated"

type GenerateRequest struct {
	Format bracket.Format
	Method bracket.SeedingMethod
	// Regenerate replaces an existing bracket and cancels its matches.
	Regenerate bool
	RandomSeed uint64
	Manual     map[bracket.ParticipantID]int
	Params     bracket.Params
	// BracketReset overrides the configured default when set.
	BracketReset *bool
}

// GenerateBracket seeds the registered participants and builds the bracket.
// Nothing is stored unless generation succeeds.
func (s *Service) GenerateBracket(ctx context.Context, tournamentID string, req GenerateRequest) (*progression.Snapshot, error) {
	s.genMu.Lock()
	defer s.genMu.Unlock()

	t, err := s.directory.GetTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if t.Status == directory.StatusCancelled {
		return nil, fmt.Errorf("tournament %s is cancelled: %w", tournamentID, bracket.ErrInvalidStateTransition)
	}

	old := s.runtimeFor(tournamentID)
	exists := old != nil
	if !exists {
		_, err := s.store.GetBracket(ctx, tournamentID)
		switch {
		case err == nil:
			exists = true
		case !errors.Is(err, bracket.ErrNotFound):
			return nil, err
		}
	}
	if exists && !req.Regenerate {
		return nil, fmt.Errorf("tournament %s: %w", tournamentID, bracket.ErrBracketAlreadyExists)
	}

	participants, err := s.directory.ListRegisteredParticipants(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	seeded, err := seeding.Seed(ctx, participants, seeding.Options{
		Method:     req.Method,
		Format:     req.Format,
		RandomSeed: req.RandomSeed,
		Ranking:    s.directory,
		Manual:     req.Manual,
	})
	if err != nil {
		return nil, err
	}

	params := req.Params
	params.BracketReset = utils.Or(req.BracketReset, s.bracketReset)
	b, err := generator.Generate(req.Format, seeded, params)
	if err != nil {
		return nil, err
	}
	b.ID = uuid.NewString()
	b.TournamentID = tournamentID
	b.Seeding = req.Method
	b.CreatedAt = s.now().UTC()

	rt := newRuntime(tournamentID)
	rt.engine = progression.New(b, s.gate, s.binder(rt), s.metrics)
	step, err := rt.engine.Start()
	if err != nil {
		return nil, err
	}

	if exists {
		if err := s.retire(ctx, old, tournamentID); err != nil {
			return nil, err
		}
	}
	// The bracket row marks the tournament as generated, so it is written
	// last and the runtime is only installed once the store holds it.
	if err := s.persistInitial(ctx, rt, step); err != nil {
		if _, derr := s.store.SoftDeleteMatches(ctx, tournamentID, s.now()); derr != nil {
			log.Warn("Could not retire partially stored matches", "tournament", tournamentID, "error", derr)
		}
		return nil, err
	}
	s.install(rt)
	s.publish(events.Event{
		Type:         events.BracketGenerated,
		TournamentID: tournamentID,
		BracketID:    b.ID,
		Reason:       req.Format.String(),
		At:           s.now().UTC(),
	})
	if err := s.afterStep(ctx, rt, step); err != nil {
		return nil, err
	}

	s.metrics.IncBracketsGenerated(req.Format.String())
	log.Info("Bracket generated", "tournament", tournamentID, "bracket", b.ID, "format", req.Format, "seeding", req.Method, "participants", len(seeded), "nodes", len(b.Nodes))
	return step.Snapshot, nil
}

func (s *Service) persistInitial(ctx context.Context, rt *runtime, step progression.Step) error {
	for _, n := range step.Bound {
		x := rt.machine(n.MatchID)
		if x == nil {
			continue
		}
		m := x.Snapshot()
		if err := s.store.SaveMatch(ctx, m); err != nil {
			return fmt.Errorf("persist match %s: %w", m.ID, err)
		}
	}
	b := step.Snapshot.Bracket
	if err := s.store.SaveBracket(ctx, b); err != nil {
		return fmt.Errorf("persist bracket %s: %w", b.ID, err)
	}
	return nil
}

// retire cancels the matches of a bracket that is being replaced and hides
// them from listings.
func (s *Service) retire(ctx context.Context, old *runtime, tournamentID string) error {
	if old != nil {
		old.markCancelled()
		for _, x := range old.all() {
			ch, err := x.Cancel(systemActor, regeneratedReason)
			if err != nil {
				continue
			}
			if _, err := s.afterChange(ctx, old, ch, false); err != nil {
				return err
			}
		}
		s.forget(old)
	}
	n, err := s.store.SoftDeleteMatches(ctx, tournamentID, s.now())
	if err != nil {
		return fmt.Errorf("retire matches of %s: %w", tournamentID, err)
	}
	log.Info("Previous bracket retired", "tournament", tournamentID, "matches", n)
	return nil
}

// Restore reloads every stored bracket of an active tournament along with its
// matches, then applies results that were stored but not yet progressed.
func (s *Service) Restore(ctx context.Context) (int, error) {
	brackets, err := s.store.ListBrackets(ctx)
	if err != nil {
		return 0, err
	}

	restored := 0
	for _, b := range brackets {
		t, err := s.directory.GetTournament(ctx, b.TournamentID)
		if err != nil {
			return restored, err
		}
		if t.Status == directory.StatusCancelled {
			continue
		}

		ms, err := s.store.ListMatches(ctx, b.ID)
		if err != nil {
			return restored, err
		}
		rt := newRuntime(b.TournamentID)
		for _, m := range ms {
			rt.add(match.Restore(m, s.policy, s.now))
			s.gate.Track(m)
		}
		rt.engine = progression.New(b, s.gate, s.binder(rt), s.metrics)
		s.install(rt)

		if err := s.reconcile(ctx, rt, ms); err != nil {
			return restored, fmt.Errorf("restore tournament %s: %w", b.TournamentID, err)
		}
		restored++
		log.Info("Bracket restored", "tournament", b.TournamentID, "bracket", b.ID, "matches", len(ms), "version", rt.engine.Snapshot().Bracket.Version)
	}
	return restored, nil
}

func (s *Service) reconcile(ctx context.Context, rt *runtime, ms []match.Match) error {
	for _, m := range ms {
		n := rt.engine.Snapshot().Bracket.Node(m.Node)
		if n == nil || n.MatchID != m.ID || n.Done() {
			continue
		}
		var (
			step progression.Step
			err  error
		)
		switch m.State {
		case match.Completed:
			step, err = rt.engine.Complete(progression.Outcome{Node: m.Node, MatchID: m.ID, WinnerSlot: m.WinnerSlot, Score: m.Score})
		case match.Cancelled:
			step, err = rt.engine.Cancel(m.Node)
		default:
			continue
		}
		if err != nil {
			return err
		}
		if err := s.afterStep(ctx, rt, step); err != nil {
			return err
		}
	}
	step, err := rt.engine.Start()
	if err != nil {
		return err
	}
	return s.afterStep(ctx, rt, step)
}
