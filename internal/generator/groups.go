package generator

import (
	"fmt"

	"github.com/AdamBeresnev/bracket-engine/internal/bracket"
)

const defaultAdvancePerGroup = 2

type groupPlayoff struct{}

func groupParams(n int, params bracket.Params) (bracket.Params, error) {
	if params.GroupCount == 0 {
		params.GroupCount = max(1, n/4)
	}
	if params.AdvancePerGroup == 0 {
		params.AdvancePerGroup = defaultAdvancePerGroup
	}
	g, k := params.GroupCount, params.AdvancePerGroup
	if g < 1 || k < 1 {
		return params, fmt.Errorf("%w: %d groups advancing %d", bracket.ErrFormatNotApplicable, g, k)
	}
	smallest := n / g
	if smallest < 2 {
		return params, fmt.Errorf("%w: %d participants cannot fill %d groups", bracket.ErrFormatNotApplicable, n, g)
	}
	if k > smallest {
		return params, fmt.Errorf("%w: cannot advance %d from a group of %d", bracket.ErrFormatNotApplicable, k, smallest)
	}
	if g*k < 2 {
		return params, fmt.Errorf("%w: playoff needs at least two qualifiers", bracket.ErrFormatNotApplicable)
	}
	return params, nil
}

// Generate snake-drafts the field into groups and schedules a round robin in
// each. The playoff tree is appended by Extend once every group is done.
func (groupPlayoff) Generate(seeded []bracket.Participant, params bracket.Params) (*bracket.Bracket, error) {
	params, err := groupParams(len(seeded), params)
	if err != nil {
		return nil, err
	}
	b := bracket.New(bracket.GroupPlayoff, seeded, params)

	g := params.GroupCount
	b.Groups = make([][]bracket.ParticipantID, g)
	for i, p := range seeded {
		col := i % g
		if (i/g)%2 == 1 {
			col = g - 1 - col
		}
		b.Groups[col] = append(b.Groups[col], p.ID)
	}

	rounds := 0
	for gi, members := range b.Groups {
		rounds = max(rounds, scheduleRoundRobin(b, members, 0, gi))
	}
	if _, err := b.SettleAll(); err != nil {
		return nil, err
	}
	b.TotalRounds = rounds
	b.CurrentRound = rounds
	return b, nil
}

// Extend seeds the top finishers of each group into a single-elimination
// playoff: every group winner first, then every runner-up, and so on.
func (groupPlayoff) Extend(b *bracket.Bracket) ([]bracket.NodeID, error) {
	if b.Stage != 0 || !b.StageDone(0) {
		return nil, nil
	}

	table := b.Standings(0)
	entrants := make([]bracket.ParticipantID, 0, b.Params.GroupCount*b.Params.AdvancePerGroup)
	for rank := 1; rank <= b.Params.AdvancePerGroup; rank++ {
		for g := range b.Groups {
			for _, row := range table {
				if row.Group == g && row.Rank == rank {
					entrants = append(entrants, row.Participant)
				}
			}
		}
	}
	if len(entrants) < 2 {
		return nil, fmt.Errorf("%w: only %d qualifiers", bracket.ErrFormatNotApplicable, len(entrants))
	}

	first := bracket.NodeID(len(b.Nodes))
	l := layoutElimination(b, len(entrants), 1)
	b.Nodes[l.final()].WinnerTo = bracket.TerminalEdge
	l.seat(b, entrants)

	added := make([]bracket.NodeID, 0, len(b.Nodes)-int(first))
	for id := first; int(id) < len(b.Nodes); id++ {
		if _, err := b.Settle(id); err != nil {
			return nil, err
		}
		added = append(added, id)
	}
	b.Stage = 1
	b.TotalRounds += len(l.rounds)
	b.CurrentRound = b.TotalRounds
	return added, nil
}
