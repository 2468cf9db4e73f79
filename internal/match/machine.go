// Package match implements the per-match lifecycle from seating to a
// confirmed result.
package match

import (
	"fmt"
	"sync"
	"time"

	"github.com/AdamBeresnev/bracket-engine/internal/bracket"
	"github.com/google/uuid"
)

const systemActor = "system"

// Machine serialises every operation on a single match.
type Machine struct {
	mu     sync.Mutex
	m      Match
	policy Policy
	now    func() time.Time
}

func New(id, tournamentID, bracketID string, node bracket.NodeID, allowDraw bool, policy Policy, now func() time.Time) *Machine {
	if now == nil {
		now = time.Now
	}
	t := now().UTC()
	return &Machine{
		m: Match{
			ID:           id,
			TournamentID: tournamentID,
			BracketID:    bracketID,
			Node:         node,
			State:        AwaitingParticipants,
			AllowDraw:    allowDraw,
			WinnerSlot:   -1,
			CreatedAt:    t,
			UpdatedAt:    t,
		},
		policy: policy,
		now:    now,
	}
}

// Restore rebuilds a machine from a persisted snapshot.
func Restore(m Match, policy Policy, now func() time.Time) *Machine {
	if now == nil {
		now = time.Now
	}
	return &Machine{m: m.clone(), policy: policy, now: now}
}

func (x *Machine) ID() string {
	return x.m.ID
}

func (x *Machine) Snapshot() Match {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.m.clone()
}

// Seat binds both participants and schedules the match at the given time.
func (x *Machine) Seat(a, b bracket.ParticipantID, at time.Time) (Change, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.m.State != AwaitingParticipants {
		return x.reject("seat")
	}
	if a == "" || b == "" || a == b {
		return Change{}, fmt.Errorf("%w: cannot seat %q against %q", bracket.ErrNotParticipant, a, b)
	}
	from := x.m.State
	x.m.Participants = [2]bracket.ParticipantID{a, b}
	x.schedule(at)
	x.transition(Scheduled, systemActor, "")
	return x.change(from), nil
}

// Reschedule moves the start time of a match that has not opened check-in.
func (x *Machine) Reschedule(at time.Time, actor string) (Change, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.m.State != Scheduled {
		return x.reject("reschedule")
	}
	x.schedule(at)
	x.touch()
	return x.change(Scheduled), nil
}

func (x *Machine) schedule(at time.Time) {
	at = at.UTC()
	x.m.ScheduledAt = at
	x.m.CheckInOpensAt = at.Add(-x.policy.CheckInOffset)
	x.m.CheckInClosesAt = x.m.CheckInOpensAt.Add(x.policy.CheckInWindow)
}

// Tick fires whichever time-driven transition is due at now.
func (x *Machine) Tick(now time.Time) (Change, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	from := x.m.State
	switch from {
	case Scheduled:
		if now.Before(x.m.CheckInOpensAt) {
			return x.noop(), nil
		}
		x.transition(CheckIn, systemActor, "check-in opened")
	case CheckIn:
		if now.Before(x.m.CheckInClosesAt) {
			return x.noop(), nil
		}
		x.expireCheckIn()
	case Live, PendingResult:
		if x.m.ResultDueAt.IsZero() || now.Before(x.m.ResultDueAt) {
			return x.noop(), nil
		}
		x.awaitResult(systemActor, "result window expired")
		x.openDispute(ReasonDeadline, systemActor, "result window expired", nil)
	default:
		return x.noop(), nil
	}
	return x.change(from), nil
}

func (x *Machine) expireCheckIn() {
	present := -1
	for i, in := range x.m.CheckedIn {
		if in {
			present = i
		}
	}
	switch {
	case x.m.CheckedIn[0] && x.m.CheckedIn[1]:
		x.transition(Ready, systemActor, "")
	case present >= 0:
		score := bracket.Oriented(present, x.policy.ForfeitWin, x.policy.ForfeitLoss)
		if score.IsDraw() {
			score = bracket.Oriented(present, 1, 0)
		}
		x.m.Forfeit = true
		x.complete(score, systemActor, "forfeit: opponent did not check in")
	default:
		x.m.CancelReason = CancelNoShow
		x.transition(Cancelled, systemActor, CancelNoShow)
	}
}

func (x *Machine) ConfirmCheckIn(p bracket.ParticipantID) (Change, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	slot := x.m.SlotOf(p)
	if slot < 0 {
		return Change{}, fmt.Errorf("%w: %s in match %s", bracket.ErrNotParticipant, p, x.m.ID)
	}
	if x.m.State != CheckIn {
		return x.reject("check in")
	}
	if x.m.CheckedIn[slot] {
		return x.noop(), nil
	}
	x.m.CheckedIn[slot] = true
	if x.m.CheckedIn[0] && x.m.CheckedIn[1] {
		x.transition(Ready, string(p), "")
	} else {
		x.touch()
	}
	return x.change(CheckIn), nil
}

func (x *Machine) Start(actor string) (Change, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.m.State != Ready {
		return x.reject("start")
	}
	if x.policy.ResultWindow > 0 {
		x.m.ResultDueAt = x.now().UTC().Add(x.policy.ResultWindow)
	}
	x.transition(Live, actor, "")
	return x.change(Ready), nil
}

func (x *Machine) Finish(actor string) (Change, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.m.State != Live {
		return x.reject("finish")
	}
	x.transition(PendingResult, actor, "")
	return x.change(Live), nil
}

// Submit records one side's claimed result. The second agreeing submission
// completes the match; conflicting claims open a dispute.
func (x *Machine) Submit(sub Submission) (Change, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	slot := x.m.SlotOf(sub.Submitter)
	if slot < 0 {
		return Change{}, fmt.Errorf("%w: %s in match %s", bracket.ErrNotParticipant, sub.Submitter, x.m.ID)
	}
	if err := x.checkScore(sub.Score); err != nil {
		return Change{}, err
	}

	prev := x.m.Submissions[slot]
	switch x.m.State {
	case Live, PendingResult:
		if prev != nil && prev.Same(sub) {
			return x.noop(), nil
		}
	case Completed, Disputed:
		if prev != nil && prev.Same(sub) {
			return x.noop(), nil
		}
		return x.reject("submit")
	default:
		return x.reject("submit")
	}

	from := x.m.State
	if sub.SubmittedAt.IsZero() {
		sub.SubmittedAt = x.now().UTC()
	}
	x.m.Submissions[slot] = &sub
	if from == Live {
		x.transition(PendingResult, string(sub.Submitter), "result submitted")
	} else {
		x.touch()
	}

	a, b := x.m.Submissions[0], x.m.Submissions[1]
	if a == nil || b == nil {
		return x.change(from), nil
	}
	switch {
	case a.Score == b.Score:
		x.complete(a.Score, systemActor, "submissions agree")
	case a.Score.WinnerSlot() != b.Score.WinnerSlot():
		x.openDispute(ReasonWinnerMismatch, systemActor, "", nil)
	case x.policy.StrictScore:
		x.openDispute(ReasonScoreMismatch, systemActor, "", nil)
	default:
		first := a
		if b.SubmittedAt.Before(a.SubmittedAt) {
			first = b
		}
		x.complete(first.Score, systemActor, "submissions agree on the winner")
	}
	return x.change(from), nil
}

// Flag lets a participant contest a match before its result is confirmed.
func (x *Machine) Flag(by bracket.ParticipantID, note string, evidence []string) (Change, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.m.SlotOf(by) < 0 {
		return Change{}, fmt.Errorf("%w: %s in match %s", bracket.ErrNotParticipant, by, x.m.ID)
	}
	if note == "" {
		return Change{}, fmt.Errorf("flag dispute: %w", bracket.ErrReasonRequired)
	}
	from := x.m.State
	if from != Live && from != PendingResult {
		return x.reject("flag")
	}
	x.awaitResult(string(by), "dispute flagged")
	x.openDispute(ReasonFlagged, string(by), note, evidence)
	return x.change(from), nil
}

// Resolve closes an open dispute with an authoritative score.
func (x *Machine) Resolve(score bracket.Score, resolver, notes string) (Change, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.m.Dispute.Resolved() {
		return Change{}, fmt.Errorf("match %s: %w", x.m.ID, bracket.ErrAlreadyResolved)
	}
	if x.m.State != Disputed {
		return x.reject("resolve")
	}
	if resolver == "" {
		return Change{}, fmt.Errorf("resolve dispute: resolver: %w", bracket.ErrReasonRequired)
	}
	if err := x.checkScore(score); err != nil {
		return Change{}, err
	}
	x.m.Dispute.Resolution = &Resolution{
		Score:      score,
		ResolverID: resolver,
		Notes:      notes,
		ResolvedAt: x.now().UTC(),
	}
	x.complete(score, resolver, "dispute resolved")
	return x.change(Disputed), nil
}

func (x *Machine) Cancel(actor, reason string) (Change, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if reason == "" {
		return Change{}, fmt.Errorf("cancel match %s: %w", x.m.ID, bracket.ErrReasonRequired)
	}
	from := x.m.State
	if from.Terminal() {
		return x.reject("cancel")
	}
	x.m.CancelReason = reason
	x.transition(Cancelled, actor, reason)
	return x.change(from), nil
}

// SoftDelete hides the match without discarding its history.
func (x *Machine) SoftDelete() Match {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.m.DeletedAt == nil {
		t := x.now().UTC()
		x.m.DeletedAt = &t
		x.touch()
	}
	return x.m.clone()
}

func (x *Machine) checkScore(s bracket.Score) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if s.IsDraw() && !x.m.AllowDraw {
		return fmt.Errorf("%w: draws are not allowed in match %s", bracket.ErrInvalidScore, x.m.ID)
	}
	return nil
}

func (x *Machine) complete(score bracket.Score, actor, reason string) {
	x.m.Score = &score
	x.m.WinnerSlot = score.WinnerSlot()
	x.transition(Completed, actor, reason)
}

// awaitResult moves a LIVE match to PENDING_RESULT, the only state a
// dispute may open from.
func (x *Machine) awaitResult(actor, reason string) {
	if x.m.State == Live {
		x.transition(PendingResult, actor, reason)
	}
}

func (x *Machine) openDispute(reason ReasonCode, by, note string, evidence []string) {
	var subs []Submission
	for _, s := range x.m.Submissions {
		if s != nil {
			subs = append(subs, *s)
		}
	}
	x.m.Dispute = &Dispute{
		ID:          uuid.NewString(),
		MatchID:     x.m.ID,
		Reason:      reason,
		Note:        note,
		RaisedBy:    by,
		Evidence:    append([]string(nil), evidence...),
		Submissions: subs,
		OpenedAt:    x.now().UTC(),
	}
	x.transition(Disputed, by, string(reason))
}

func (x *Machine) transition(to State, actor, reason string) {
	x.m.History = append(x.m.History, Transition{
		From:   x.m.State,
		To:     to,
		Actor:  actor,
		Reason: reason,
		At:     x.now().UTC(),
	})
	x.m.State = to
	x.touch()
}

func (x *Machine) touch() {
	x.m.Version++
	x.m.UpdatedAt = x.now().UTC()
}

func (x *Machine) change(from State) Change {
	return Change{From: from, To: x.m.State, Match: x.m.clone()}
}

func (x *Machine) noop() Change {
	return Change{From: x.m.State, To: x.m.State, Match: x.m.clone(), Noop: true}
}

func (x *Machine) reject(op string) (Change, error) {
	return Change{}, fmt.Errorf("%s match %s in state %s: %w", op, x.m.ID, x.m.State, bracket.ErrInvalidStateTransition)
}
