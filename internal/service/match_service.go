package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/AdamBeresnev/bracket-engine/internal/bracket"
	"github.com/AdamBeresnev/bracket-engine/internal/evidence"
	"github.com/AdamBeresnev/bracket-engine/internal/match"
)

const (
	systemActor = "system"
	// evidencePrefix marks submission evidence held by the evidence store.
	evidencePrefix = "evidence:"
)

// Proof is what a participant attaches to a result or a dispute.
type Proof struct {
	Blob        []byte
	ContentType string
	Links       []string
}

func (s *Service) storeProof(ctx context.Context, p Proof) ([]string, error) {
	var refs []string
	if len(p.Blob) > 0 {
		ref, err := s.evidence.Store(ctx, p.Blob, p.ContentType)
		if err != nil {
			return nil, fmt.Errorf("store evidence: %w", err)
		}
		refs = append(refs, evidencePrefix+string(ref))
	}
	return append(refs, evidence.Normalize(p.Links)...), nil
}

// Evidence fetches a blob previously attached with a Proof.
func (s *Service) Evidence(ctx context.Context, ref string) ([]byte, error) {
	return s.evidence.Retrieve(ctx, evidence.Ref(strings.TrimPrefix(ref, evidencePrefix)))
}

// GetMatch prefers the live machine and falls back to storage for matches of
// retired or cancelled brackets.
func (s *Service) GetMatch(ctx context.Context, matchID string) (match.Match, error) {
	if _, x, err := s.lookup(matchID); err == nil {
		return x.Snapshot(), nil
	}
	return s.store.GetMatch(ctx, matchID)
}

func (s *Service) History(ctx context.Context, matchID string) ([]match.Transition, error) {
	return s.store.ListTransitions(ctx, matchID)
}

// SubmitResult records one side's claim. Disagreement is not an error: it
// opens a dispute and the returned match shows it.
func (s *Service) SubmitResult(ctx context.Context, matchID string, submitter bracket.ParticipantID, score bracket.Score, proof Proof) (match.Match, error) {
	rt, x, err := s.lookup(matchID)
	if err != nil {
		return match.Match{}, err
	}
	refs, err := s.storeProof(ctx, proof)
	if err != nil {
		return match.Match{}, err
	}
	sub := match.Submission{Submitter: submitter, Score: score, SubmittedAt: s.now().UTC()}
	if len(refs) > 0 {
		sub.Evidence = refs[0]
	}
	ch, err := x.Submit(sub)
	if err != nil {
		return match.Match{}, err
	}
	return s.afterChange(ctx, rt, ch, false)
}

func (s *Service) FlagDispute(ctx context.Context, matchID string, by bracket.ParticipantID, note string, proof Proof) (match.Match, error) {
	rt, x, err := s.lookup(matchID)
	if err != nil {
		return match.Match{}, err
	}
	refs, err := s.storeProof(ctx, proof)
	if err != nil {
		return match.Match{}, err
	}
	ch, err := x.Flag(by, note, refs)
	if err != nil {
		return match.Match{}, err
	}
	return s.afterChange(ctx, rt, ch, false)
}

// ResolveDispute rules on a disputed match. The match completes with the
// authoritative score and advances like any other completion.
func (s *Service) ResolveDispute(ctx context.Context, matchID string, score bracket.Score, resolverID, notes string) (match.Match, error) {
	rt, x, err := s.lookup(matchID)
	if err != nil {
		return match.Match{}, err
	}
	ch, err := s.gate.Resolve(x, score, resolverID, notes)
	if err != nil {
		return match.Match{}, err
	}
	return s.afterChange(ctx, rt, ch, true)
}

func (s *Service) OpenDisputes() []match.Dispute {
	return s.gate.Open()
}

// CheckIn confirms a participant's presence. A scheduled match whose window
// has opened is moved into check-in first, so a participant never has to
// wait for the sweeper.
func (s *Service) CheckIn(ctx context.Context, matchID string, p bracket.ParticipantID) (match.Match, error) {
	rt, x, err := s.lookup(matchID)
	if err != nil {
		return match.Match{}, err
	}
	if ch, err := x.Tick(s.now()); err == nil && !ch.Noop && ch.To == match.CheckIn {
		if _, err := s.afterChange(ctx, rt, ch, false); err != nil {
			return match.Match{}, err
		}
	}
	ch, err := x.ConfirmCheckIn(p)
	if err != nil {
		return match.Match{}, err
	}
	return s.afterChange(ctx, rt, ch, false)
}

func (s *Service) StartMatch(ctx context.Context, matchID, actor string) (match.Match, error) {
	rt, x, err := s.lookup(matchID)
	if err != nil {
		return match.Match{}, err
	}
	ch, err := x.Start(actor)
	if err != nil {
		return match.Match{}, err
	}
	return s.afterChange(ctx, rt, ch, false)
}

func (s *Service) FinishMatch(ctx context.Context, matchID, actor string) (match.Match, error) {
	rt, x, err := s.lookup(matchID)
	if err != nil {
		return match.Match{}, err
	}
	ch, err := x.Finish(actor)
	if err != nil {
		return match.Match{}, err
	}
	return s.afterChange(ctx, rt, ch, false)
}

func (s *Service) RescheduleMatch(ctx context.Context, matchID string, at time.Time, actor string) (match.Match, error) {
	rt, x, err := s.lookup(matchID)
	if err != nil {
		return match.Match{}, err
	}
	ch, err := x.Reschedule(at, actor)
	if err != nil {
		return match.Match{}, err
	}
	return s.afterChange(ctx, rt, ch, false)
}

// CancelMatch closes a match without a result. Its node stays undecided until
// an organizer advances it manually.
func (s *Service) CancelMatch(ctx context.Context, matchID, actor, reason string) (match.Match, error) {
	rt, x, err := s.lookup(matchID)
	if err != nil {
		return match.Match{}, err
	}
	ch, err := x.Cancel(actor, reason)
	if err != nil {
		return match.Match{}, err
	}
	return s.afterChange(ctx, rt, ch, false)
}
