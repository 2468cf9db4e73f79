package match

import (
	"time"

	"github.com/AdamBeresnev/bracket-engine/internal/bracket"
)

type State string

const (
	AwaitingParticipants State = "AWAITING_PARTICIPANTS"
	Scheduled            State = "SCHEDULED"
	CheckIn              State = "CHECK_IN"
	Ready                State = "READY"
	Live                 State = "LIVE"
	PendingResult        State = "PENDING_RESULT"
	Completed            State = "COMPLETED"
	Disputed             State = "DISPUTED"
	Cancelled            State = "CANCELLED"
)

// Terminal states accept no further transitions.
func (s State) Terminal() bool {
	return s == Completed || s == Cancelled
}

type ReasonCode string

const (
	ReasonWinnerMismatch ReasonCode = "winner_mismatch"
	ReasonScoreMismatch  ReasonCode = "score_mismatch"
	ReasonFlagged        ReasonCode = "flagged"
	ReasonDeadline       ReasonCode = "deadline"
)

// CancelNoShow is recorded when nobody checks in.
const CancelNoShow = "no_show"

type Submission struct {
	Submitter   bracket.ParticipantID `json:"submitter" msgpack:"submitter"`
	Score       bracket.Score         `json:"score" msgpack:"score"`
	Evidence    string                `json:"evidence,omitempty" msgpack:"evidence"`
	SubmittedAt time.Time             `json:"submitted_at" msgpack:"submitted_at"`
}

// Same ignores submission time.
func (s Submission) Same(o Submission) bool {
	return s.Submitter == o.Submitter && s.Score == o.Score && s.Evidence == o.Evidence
}

type Resolution struct {
	Score      bracket.Score `json:"score" msgpack:"score"`
	ResolverID string        `json:"resolver_id" msgpack:"resolver_id"`
	Notes      string        `json:"notes,omitempty" msgpack:"notes"`
	ResolvedAt time.Time     `json:"resolved_at" msgpack:"resolved_at"`
}

type Dispute struct {
	ID          string       `json:"id" msgpack:"id"`
	MatchID     string       `json:"match_id" msgpack:"match_id"`
	Reason      ReasonCode   `json:"reason" msgpack:"reason"`
	Note        string       `json:"note,omitempty" msgpack:"note"`
	RaisedBy    string       `json:"raised_by,omitempty" msgpack:"raised_by"`
	Evidence    []string     `json:"evidence,omitempty" msgpack:"evidence"`
	Submissions []Submission `json:"submissions,omitempty" msgpack:"submissions"`
	OpenedAt    time.Time    `json:"opened_at" msgpack:"opened_at"`
	Resolution  *Resolution  `json:"resolution,omitempty" msgpack:"resolution"`
}

func (d *Dispute) Resolved() bool {
	return d != nil && d.Resolution != nil
}

type Transition struct {
	From   State     `json:"from" msgpack:"from"`
	To     State     `json:"to" msgpack:"to"`
	Actor  string    `json:"actor,omitempty" msgpack:"actor"`
	Reason string    `json:"reason,omitempty" msgpack:"reason"`
	At     time.Time `json:"at" msgpack:"at"`
}

type Match struct {
	ID           string         `json:"id" msgpack:"id"`
	TournamentID string         `json:"tournament_id" msgpack:"tournament_id"`
	BracketID    string         `json:"bracket_id" msgpack:"bracket_id"`
	Node         bracket.NodeID `json:"node" msgpack:"node"`

	Participants [2]bracket.ParticipantID `json:"participants" msgpack:"participants"`
	State        State                    `json:"state" msgpack:"state"`
	AllowDraw    bool                     `json:"allow_draw" msgpack:"allow_draw"`

	ScheduledAt     time.Time `json:"scheduled_at" msgpack:"scheduled_at"`
	CheckInOpensAt  time.Time `json:"check_in_opens_at" msgpack:"check_in_opens_at"`
	CheckInClosesAt time.Time `json:"check_in_closes_at" msgpack:"check_in_closes_at"`
	// ResultDueAt is zero when no result deadline applies.
	ResultDueAt time.Time `json:"result_due_at,omitempty" msgpack:"result_due_at"`
	CheckedIn   [2]bool   `json:"checked_in" msgpack:"checked_in"`

	Submissions [2]*Submission `json:"submissions" msgpack:"submissions"`
	Score       *bracket.Score `json:"score,omitempty" msgpack:"score"`
	// WinnerSlot is -1 until completion and for draws.
	WinnerSlot int  `json:"winner_slot" msgpack:"winner_slot"`
	Forfeit    bool `json:"forfeit" msgpack:"forfeit"`

	Dispute      *Dispute `json:"dispute,omitempty" msgpack:"dispute"`
	CancelReason string   `json:"cancel_reason,omitempty" msgpack:"cancel_reason"`

	History   []Transition `json:"history" msgpack:"history"`
	Version   uint64       `json:"version" msgpack:"version"`
	CreatedAt time.Time    `json:"created_at" msgpack:"created_at"`
	UpdatedAt time.Time    `json:"updated_at" msgpack:"updated_at"`
	DeletedAt *time.Time   `json:"deleted_at,omitempty" msgpack:"deleted_at"`
}

// Winner is empty until completion and for draws.
func (m *Match) Winner() bracket.ParticipantID {
	if m.State != Completed || m.WinnerSlot < 0 {
		return ""
	}
	return m.Participants[m.WinnerSlot]
}

func (m *Match) Loser() bracket.ParticipantID {
	if m.State != Completed || m.WinnerSlot < 0 {
		return ""
	}
	return m.Participants[1-m.WinnerSlot]
}

func (m *Match) SlotOf(id bracket.ParticipantID) int {
	for i, p := range m.Participants {
		if p == id {
			return i
		}
	}
	return -1
}

func (m Match) clone() Match {
	c := m
	for i, s := range m.Submissions {
		if s != nil {
			cp := *s
			c.Submissions[i] = &cp
		}
	}
	if m.Score != nil {
		s := *m.Score
		c.Score = &s
	}
	if m.Dispute != nil {
		d := *m.Dispute
		d.Evidence = append([]string(nil), m.Dispute.Evidence...)
		d.Submissions = append([]Submission(nil), m.Dispute.Submissions...)
		if m.Dispute.Resolution != nil {
			r := *m.Dispute.Resolution
			d.Resolution = &r
		}
		c.Dispute = &d
	}
	c.History = append([]Transition(nil), m.History...)
	if m.DeletedAt != nil {
		t := *m.DeletedAt
		c.DeletedAt = &t
	}
	return c
}

// Change describes the effect of one operation. From equals To when the
// operation changed nothing but the stored data.
type Change struct {
	From  State `json:"from"`
	To    State `json:"to"`
	Match Match `json:"match"`
	// Noop is set for idempotent repeats that left the match untouched.
	Noop bool `json:"noop"`
}

func (c Change) Transitioned() bool {
	return c.From != c.To
}

// Completed reports whether this change is the one that completed the match.
func (c Change) Completed() bool {
	return c.To == Completed && c.From != Completed
}

// Policy holds the per-tournament timing and agreement rules.
type Policy struct {
	// StrictScore disputes same-winner submissions whose scores differ.
	StrictScore   bool
	CheckInOffset time.Duration
	CheckInWindow time.Duration
	// ResultWindow of zero disables the result deadline.
	ResultWindow time.Duration
	// ForfeitWin and ForfeitLoss score a forfeited match.
	ForfeitWin  int
	ForfeitLoss int
}

func DefaultPolicy() Policy {
	return Policy{
		StrictScore:   true,
		CheckInOffset: 15 * time.Minute,
		CheckInWindow: 10 * time.Minute,
		ResultWindow:  time.Hour,
		ForfeitWin:    1,
		ForfeitLoss:   0,
	}
}
