package generator

import (
	"math"

	"github.com/AdamBeresnev/bracket-engine/internal/bracket"
)

type singleElimination struct{}

func (singleElimination) Generate(seeded []bracket.Participant, params bracket.Params) (*bracket.Bracket, error) {
	b := bracket.New(bracket.SingleElimination, seeded, params)

	l := layoutElimination(b, len(seeded), 0)
	b.Nodes[l.final()].WinnerTo = bracket.TerminalEdge
	l.seat(b, bracket.IDs(seeded))

	if _, err := b.SettleAll(); err != nil {
		return nil, err
	}
	b.TotalRounds = len(l.rounds)
	b.CurrentRound = len(l.rounds)
	return b, nil
}

// Gets the nearest power of 2 while rounding up, so with input 5 it returns 8 and so on
func calcBracketSize(count int) int {
	if count <= 0 {
		return 0
	}

	// Log2 -> Ceil -> 2^^log2 to round up
	log2 := math.Ceil(math.Log2(float64(count)))
	return int(math.Pow(2, log2))
}

// generateRound1Pairs returns seed index pairs for the first round so that
// the top seeds can only meet late. Indices past the field size are byes.
func generateRound1Pairs(bracketSize int) [][2]int {
	if bracketSize == 0 {
		return [][2]int{}
	}

	rounds := []int{0}
	for len(rounds) < bracketSize {
		var nextRound []int
		currentCount := len(rounds) * 2

		for _, seed := range rounds {
			nextRound = append(nextRound, seed)
			nextRound = append(nextRound, (currentCount-1)-seed)
		}
		rounds = nextRound
	}

	pairs := make([][2]int, 0, bracketSize/2)
	for i := 0; i < len(rounds); i += 2 {
		matchup := [2]int{rounds[i], rounds[i+1]}
		pairs = append(pairs, matchup)
	}

	return pairs
}

// layout is a winners tree; rounds[r-1][p] is the node at round r, position p.
type layout struct {
	size   int
	rounds [][]bracket.NodeID
}

func (l layout) final() bracket.NodeID {
	last := l.rounds[len(l.rounds)-1]
	return last[0]
}

// layoutElimination appends an empty winners tree large enough for count
// entrants and wires each node's winner edge to its parent.
func layoutElimination(b *bracket.Bracket, count, stage int) layout {
	bracketSize := calcBracketSize(count)
	totalRounds := int(math.Log2(float64(bracketSize)))

	l := layout{size: bracketSize, rounds: make([][]bracket.NodeID, totalRounds)}
	for r := 1; r <= totalRounds; r++ {
		matchesInRound := bracketSize >> r
		for i := 0; i < matchesInRound; i++ {
			l.rounds[r-1] = append(l.rounds[r-1], b.NewNode(bracket.WinnersSide, stage, 0, r, i))
		}
	}

	for r := 1; r < totalRounds; r++ {
		for i, id := range l.rounds[r-1] {
			b.Nodes[id].WinnerTo = bracket.Edge{To: l.rounds[r][i/2], Slot: i % 2}
		}
	}
	return l
}

// seat fills round one from entrants in seed order, padding with byes.
func (l layout) seat(b *bracket.Bracket, entrants []bracket.ParticipantID) {
	for i, pair := range generateRound1Pairs(l.size) {
		n := b.Node(l.rounds[0][i])
		n.Slots = [2]bracket.Slot{entrant(entrants, pair[0]), entrant(entrants, pair[1])}
	}
}

func entrant(entrants []bracket.ParticipantID, idx int) bracket.Slot {
	if idx < len(entrants) {
		return bracket.Filled(entrants[idx])
	}
	return bracket.Bye()
}
