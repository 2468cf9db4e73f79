package bracket

import (
	"fmt"
	"slices"
)

// CheckPlace validates that s may be written through e without replacing a
// different occupant. Writing the occupant a slot already holds is allowed.
func (b *Bracket) CheckPlace(e Edge, s Slot) error {
	if !e.Valid() {
		return nil
	}
	n := b.Node(e.To)
	if n == nil || e.Slot < 0 || e.Slot > 1 {
		return fmt.Errorf("%w: dangling edge %d/%d", ErrNodeNotReady, e.To, e.Slot)
	}
	cur := n.Slots[e.Slot]
	if cur.IsTBD() || cur == s {
		return nil
	}
	return &ConflictError{Node: e.To, Slot: e.Slot, Existing: cur, Incoming: s}
}

// Place writes s through e. It reports whether the slot changed.
func (b *Bracket) Place(e Edge, s Slot) (bool, error) {
	if err := b.CheckPlace(e, s); err != nil {
		return false, err
	}
	if !e.Valid() {
		return false, nil
	}
	n := &b.Nodes[e.To]
	if n.Slots[e.Slot] == s {
		return false, nil
	}
	n.Slots[e.Slot] = s
	return true, nil
}

// Settle resolves bye pairings at id and everything they cascade into.
// It returns the nodes that now hold two participants and have no match bound.
func (b *Bracket) Settle(id NodeID) ([]NodeID, error) {
	var ready []NodeID
	err := b.settle(id, &ready)
	return ready, err
}

// SettleAll runs Settle over every node, in id order.
func (b *Bracket) SettleAll() ([]NodeID, error) {
	var ready []NodeID
	for i := range b.Nodes {
		if err := b.settle(NodeID(i), &ready); err != nil {
			return ready, err
		}
	}
	return ready, nil
}

func (b *Bracket) settle(id NodeID, ready *[]NodeID) error {
	n := b.Node(id)
	if n == nil || n.Done() || n.Frozen {
		return nil
	}
	a, c := n.Slots[0], n.Slots[1]
	switch {
	case a.IsParticipant() && c.IsParticipant():
		if n.MatchID == "" && !slices.Contains(*ready, id) {
			*ready = append(*ready, id)
		}
		return nil
	case a.IsParticipant() && c.IsBye():
		return b.resolve(id, 0, nil, ready)
	case a.IsBye() && c.IsParticipant():
		return b.resolve(id, 1, nil, ready)
	case a.IsBye() && c.IsBye():
		return b.resolve(id, -1, nil, ready)
	}
	return nil
}

// Advance records a result for a ready node and propagates it. Both outgoing
// edges are validated before either is written.
func (b *Bracket) Advance(id NodeID, winnerSlot int, score *Score) ([]NodeID, error) {
	n := b.Node(id)
	if n == nil {
		return nil, fmt.Errorf("node %d: %w", id, ErrNotFound)
	}
	if n.Frozen {
		return nil, fmt.Errorf("node %d: %w", id, ErrNodeFrozen)
	}
	if !n.Ready() {
		return nil, fmt.Errorf("node %d: %w", id, ErrNodeNotReady)
	}
	if winnerSlot < -1 || winnerSlot > 1 {
		return nil, fmt.Errorf("%w: winner slot %d", ErrInvalidScore, winnerSlot)
	}
	if winnerSlot == -1 && n.Elimination() {
		return nil, fmt.Errorf("%w: draws are not possible on %s node %d", ErrInvalidScore, n.Side, id)
	}
	if score != nil {
		if err := score.Validate(); err != nil {
			return nil, err
		}
		if score.WinnerSlot() != winnerSlot {
			return nil, fmt.Errorf("%w: score %s disagrees with winner slot %d", ErrInvalidScore, score, winnerSlot)
		}
		s := *score
		score = &s
	}

	var ready []NodeID
	err := b.resolve(id, winnerSlot, score, &ready)
	return ready, err
}

func (b *Bracket) resolve(id NodeID, winnerSlot int, score *Score, ready *[]NodeID) error {
	n := &b.Nodes[id]
	win, lose := Bye(), Bye()
	if winnerSlot >= 0 {
		win, lose = n.Slots[winnerSlot], n.Slots[1-winnerSlot]
	} else if n.Elimination() && (n.Slots[0].IsParticipant() || n.Slots[1].IsParticipant()) {
		return fmt.Errorf("%w: node %d needs a winner", ErrInvalidScore, id)
	}

	if err := b.CheckPlace(n.WinnerTo, win); err != nil {
		return err
	}
	if err := b.CheckPlace(n.LoserTo, lose); err != nil {
		return err
	}
	reset := winnerSlot == 1 && n.ResetTo >= 0
	if reset {
		if err := b.CheckPlace(Edge{To: n.ResetTo, Slot: 0}, n.Slots[0]); err != nil {
			return err
		}
		if err := b.CheckPlace(Edge{To: n.ResetTo, Slot: 1}, n.Slots[1]); err != nil {
			return err
		}
	}

	n.Completed = true
	n.WinnerSlot = winnerSlot
	n.Score = score
	winnerTo, loserTo := n.WinnerTo, n.LoserTo

	// Both writes were checked above and cannot fail.
	_, _ = b.Place(winnerTo, win)
	_, _ = b.Place(loserTo, lose)

	if n.ResetTo >= 0 {
		resetID := n.ResetTo
		if reset {
			_, _ = b.Place(Edge{To: resetID, Slot: 0}, n.Slots[0])
			_, _ = b.Place(Edge{To: resetID, Slot: 1}, n.Slots[1])
			if err := b.settle(resetID, ready); err != nil {
				return err
			}
		} else {
			b.Nodes[resetID].Skipped = true
		}
	}

	for _, e := range [2]Edge{winnerTo, loserTo} {
		if !e.Valid() {
			continue
		}
		if err := b.settle(e.To, ready); err != nil {
			return err
		}
	}
	return nil
}

// Cancel closes the pairing at id without a result. Nothing propagates from
// a cancelled elimination node until it is advanced manually.
func (b *Bracket) Cancel(id NodeID) error {
	n := b.Node(id)
	if n == nil {
		return fmt.Errorf("node %d: %w", id, ErrNotFound)
	}
	if n.Done() {
		return fmt.Errorf("node %d is already closed: %w", id, ErrInvalidStateTransition)
	}
	n.Cancelled = true
	return nil
}

// Reopen clears a cancellation so the node can take a result again.
func (b *Bracket) Reopen(id NodeID) error {
	n := b.Node(id)
	if n == nil {
		return fmt.Errorf("node %d: %w", id, ErrNotFound)
	}
	if !n.Cancelled {
		return nil
	}
	n.Cancelled = false
	return nil
}

// Finish marks the bracket completed once its deciding nodes are done and
// reports whether it did.
func (b *Bracket) Finish() bool {
	if b.Completed {
		return true
	}
	switch b.Format {
	case RoundRobin:
		if !b.StageDone(0) {
			return false
		}
	case Swiss:
		if b.CurrentRound < b.TotalRounds || !b.StageDone(0) {
			return false
		}
	default:
		if b.Format == GroupPlayoff && b.Stage < 1 {
			return false
		}
		champion, ok := b.terminalWinner()
		if !ok {
			return false
		}
		b.Champion = champion
		b.Completed = true
		return true
	}

	if table := b.Standings(0); len(table) > 0 {
		b.Champion = table[0].Participant
	}
	b.Completed = true
	return true
}

func (b *Bracket) terminalWinner() (ParticipantID, bool) {
	var champion ParticipantID
	round, found := -1, false
	for i := range b.Nodes {
		n := &b.Nodes[i]
		if n.Stage != b.Stage || n.WinnerTo.To != Terminal {
			continue
		}
		found = true
		if !n.Done() {
			return "", false
		}
		if n.Completed && n.Round > round {
			champion, round = n.Winner(), n.Round
		}
	}
	return champion, found
}
