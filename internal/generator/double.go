package generator

import (
	"github.com/AdamBeresnev/bracket-engine/internal/bracket"
)

type doubleElimination struct{}

// Generate lays out the winners tree, a losers bracket of 2(k-1) rounds that
// alternates between dropping in winners-bracket losers and halving the
// field, and a grand final with an optional reset.
func (doubleElimination) Generate(seeded []bracket.Participant, params bracket.Params) (*bracket.Bracket, error) {
	b := bracket.New(bracket.DoubleElimination, seeded, params)

	wb := layoutElimination(b, len(seeded), 0)
	k := len(wb.rounds)
	lbRounds := 2 * (k - 1)

	lb := make([][]bracket.NodeID, lbRounds)
	for lr := 1; lr <= lbRounds; lr++ {
		count := wb.size >> ((lr+1)/2 + 1)
		for p := 0; p < count; p++ {
			lb[lr-1] = append(lb[lr-1], b.NewNode(bracket.LosersSide, 0, 0, lr, p))
		}
	}

	gfRound := max(k, lbRounds) + 1
	gf := b.NewNode(bracket.FinalsSide, 0, 0, gfRound, 0)
	b.Nodes[gf].WinnerTo = bracket.TerminalEdge
	if params.BracketReset {
		reset := b.NewNode(bracket.FinalsSide, 0, 0, gfRound+1, 0)
		b.Nodes[reset].WinnerTo = bracket.TerminalEdge
		b.Nodes[gf].ResetTo = reset
	}

	b.Nodes[wb.final()].WinnerTo = bracket.Edge{To: gf, Slot: 0}

	if k == 1 {
		b.Nodes[wb.final()].LoserTo = bracket.Edge{To: gf, Slot: 1}
	} else {
		for p, id := range wb.rounds[0] {
			b.Nodes[id].LoserTo = bracket.Edge{To: lb[0][p/2], Slot: p % 2}
		}
		for r := 2; r <= k; r++ {
			drop := lb[2*(r-1)-1]
			for p, id := range wb.rounds[r-1] {
				q := p
				// Every other drop round enters reversed.
				if r%2 == 0 {
					q = len(drop) - 1 - p
				}
				b.Nodes[id].LoserTo = bracket.Edge{To: drop[q], Slot: 1}
			}
		}
		for lr := 1; lr <= lbRounds; lr++ {
			for p, id := range lb[lr-1] {
				switch {
				case lr == lbRounds:
					b.Nodes[id].WinnerTo = bracket.Edge{To: gf, Slot: 1}
				case lr%2 == 1:
					b.Nodes[id].WinnerTo = bracket.Edge{To: lb[lr][p], Slot: 0}
				default:
					b.Nodes[id].WinnerTo = bracket.Edge{To: lb[lr][p/2], Slot: p % 2}
				}
			}
		}
	}

	wb.seat(b, bracket.IDs(seeded))
	if _, err := b.SettleAll(); err != nil {
		return nil, err
	}
	b.TotalRounds = gfRound
	if params.BracketReset {
		b.TotalRounds++
	}
	b.CurrentRound = b.TotalRounds
	return b, nil
}
