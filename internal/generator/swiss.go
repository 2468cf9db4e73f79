package generator

import (
	"fmt"
	"math"
	"sort"

	"github.com/AdamBeresnev/bracket-engine/internal/bracket"
)

// pairingBudget caps the rematch-free search before falling back to greedy pairing.
const pairingBudget = 200_000

type swiss struct{}

func swissRounds(n int, params bracket.Params) int {
	if params.SwissRounds > 0 {
		return params.SwissRounds
	}
	return max(1, int(math.Ceil(math.Log2(float64(n)))))
}

func (swiss) Generate(seeded []bracket.Participant, params bracket.Params) (*bracket.Bracket, error) {
	if params.SwissRounds < 0 {
		return nil, fmt.Errorf("%w: %d swiss rounds", bracket.ErrFormatNotApplicable, params.SwissRounds)
	}
	params.SwissRounds = swissRounds(len(seeded), params)
	b := bracket.New(bracket.Swiss, seeded, params)
	b.TotalRounds = params.SwissRounds

	ids := bracket.IDs(seeded)
	var bye bracket.ParticipantID
	if len(ids)%2 == 1 {
		bye, ids = ids[len(ids)-1], ids[:len(ids)-1]
	}
	half := len(ids) / 2
	pairs := make([][2]bracket.ParticipantID, 0, half)
	for i := 0; i < half; i++ {
		pairs = append(pairs, [2]bracket.ParticipantID{ids[i], ids[i+half]})
	}
	appendSwissRound(b, 1, pairs, bye, nil)

	if _, err := b.SettleAll(); err != nil {
		return nil, err
	}
	b.CurrentRound = 1
	return b, nil
}

// Extend pairs the next round once every node of the current one is closed.
func (swiss) Extend(b *bracket.Bracket) ([]bracket.NodeID, error) {
	if b.CurrentRound >= b.TotalRounds || !b.RoundDone(0, b.CurrentRound) {
		return nil, nil
	}

	table := b.Standings(0)
	sort.SliceStable(table, func(i, j int) bool {
		if table[i].Points != table[j].Points {
			return table[i].Points > table[j].Points
		}
		return table[i].Seed < table[j].Seed
	})
	order := make([]bracket.ParticipantID, len(table))
	for i, row := range table {
		order[i] = row.Participant
	}

	played := make(map[[2]bracket.ParticipantID]bool)
	hadBye := make(map[bracket.ParticipantID]bool)
	for i := range b.Nodes {
		n := &b.Nodes[i]
		if n.Cancelled {
			continue
		}
		a, c := n.Participants()
		switch {
		case n.Slots[1].IsBye():
			hadBye[a] = true
		case n.Slots[0].IsBye():
			hadBye[c] = true
		default:
			played[pairKey(a, c)] = true
		}
	}

	var bye bracket.ParticipantID
	if len(order)%2 == 1 {
		at := len(order) - 1
		for i := len(order) - 1; i >= 0; i-- {
			if !hadBye[order[i]] {
				at = i
				break
			}
		}
		bye = order[at]
		order = append(order[:at:at], order[at+1:]...)
	}

	budget := pairingBudget
	pairs, ok := pairWithoutRematch(order, played, &budget)
	if !ok {
		pairs = pairGreedy(order, played)
	}

	round := b.CurrentRound + 1
	first := bracket.NodeID(len(b.Nodes))
	appendSwissRound(b, round, pairs, bye, played)
	b.CurrentRound = round

	added := make([]bracket.NodeID, 0, len(b.Nodes)-int(first))
	for id := first; int(id) < len(b.Nodes); id++ {
		if _, err := b.Settle(id); err != nil {
			return nil, err
		}
		added = append(added, id)
	}
	return added, nil
}

func appendSwissRound(b *bracket.Bracket, round int, pairs [][2]bracket.ParticipantID, bye bracket.ParticipantID, played map[[2]bracket.ParticipantID]bool) {
	for i, p := range pairs {
		id := b.NewNode(bracket.GroupSide, 0, 0, round, i)
		n := b.Node(id)
		n.Slots = [2]bracket.Slot{bracket.Filled(p[0]), bracket.Filled(p[1])}
		n.Rematch = played[pairKey(p[0], p[1])]
	}
	if bye != "" {
		id := b.NewNode(bracket.GroupSide, 0, 0, round, len(pairs))
		b.Node(id).Slots = [2]bracket.Slot{bracket.Filled(bye), bracket.Bye()}
	}
}

func pairKey(a, c bracket.ParticipantID) [2]bracket.ParticipantID {
	if c < a {
		a, c = c, a
	}
	return [2]bracket.ParticipantID{a, c}
}

// pairWithoutRematch pairs order top-down, always trying the closest-ranked
// opponent first and backtracking when the remainder cannot be paired.
func pairWithoutRematch(order []bracket.ParticipantID, played map[[2]bracket.ParticipantID]bool, budget *int) ([][2]bracket.ParticipantID, bool) {
	if len(order) == 0 {
		return nil, true
	}
	*budget--
	if *budget < 0 {
		return nil, false
	}
	head := order[0]
	for j := 1; j < len(order); j++ {
		if played[pairKey(head, order[j])] {
			continue
		}
		rest := make([]bracket.ParticipantID, 0, len(order)-2)
		rest = append(rest, order[1:j]...)
		rest = append(rest, order[j+1:]...)
		if tail, ok := pairWithoutRematch(rest, played, budget); ok {
			return append([][2]bracket.ParticipantID{{head, order[j]}}, tail...), true
		}
	}
	return nil, false
}

// pairGreedy always succeeds, accepting rematches where it has to.
func pairGreedy(order []bracket.ParticipantID, played map[[2]bracket.ParticipantID]bool) [][2]bracket.ParticipantID {
	left := append([]bracket.ParticipantID(nil), order...)
	pairs := make([][2]bracket.ParticipantID, 0, len(left)/2)
	for len(left) >= 2 {
		head := left[0]
		pick := 1
		for j := 1; j < len(left); j++ {
			if !played[pairKey(head, left[j])] {
				pick = j
				break
			}
		}
		pairs = append(pairs, [2]bracket.ParticipantID{head, left[pick]})
		left = append(left[1:pick], left[pick+1:]...)
	}
	return pairs
}
