package bracket

import (
	"errors"
	"fmt"
)

var (
	ErrFormatNotApplicable      = errors.New("format not applicable")
	ErrInsufficientParticipants = errors.New("insufficient participants")
	ErrInvalidSeedAssignment    = errors.New("invalid seed assignment")
	ErrBracketAlreadyExists     = errors.New("bracket already exists")
	ErrInvalidStateTransition   = errors.New("invalid state transition")
	ErrAlreadyResolved          = errors.New("dispute already resolved")
	ErrNodeNotReady             = errors.New("node not ready")

	ErrNotFound        = errors.New("not found")
	ErrUnknownFormat   = errors.New("unknown format")
	ErrNotParticipant  = errors.New("not a participant of this match")
	ErrInvalidScore    = errors.New("invalid score")
	ErrReasonRequired  = errors.New("a reason is required")
	ErrNodeFrozen      = errors.New("node is frozen pending inspection")
	ErrDisputed        = errors.New("match outcome is under dispute")
	ErrRoundIncomplete = errors.New("round is not complete")
)

// ConflictError reports a slot write that collided with a different occupant.
// It always unwraps to ErrNodeNotReady.
type ConflictError struct {
	Node     NodeID
	Slot     int
	Existing Slot
	Incoming Slot
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("node %d slot %d holds %s, refusing %s: %v", e.Node, e.Slot, e.Existing, e.Incoming, ErrNodeNotReady)
}

func (e *ConflictError) Unwrap() error {
	return ErrNodeNotReady
}
