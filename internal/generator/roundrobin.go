package generator

import (
	"github.com/AdamBeresnev/bracket-engine/internal/bracket"
)

type roundRobin struct{}

func (roundRobin) Generate(seeded []bracket.Participant, params bracket.Params) (*bracket.Bracket, error) {
	b := bracket.New(bracket.RoundRobin, seeded, params)
	rounds := scheduleRoundRobin(b, bracket.IDs(seeded), 0, 0)
	if _, err := b.SettleAll(); err != nil {
		return nil, err
	}
	b.TotalRounds = rounds
	b.CurrentRound = rounds
	return b, nil
}

// scheduleRoundRobin appends one group node per pairing using the circle
// method: the first entrant stays put while the rest rotate one step per
// round. An odd field gets a phantom entrant whose pairings become byes.
func scheduleRoundRobin(b *bracket.Bracket, entrants []bracket.ParticipantID, stage, group int) int {
	slots := make([]bracket.Slot, 0, len(entrants)+1)
	for _, id := range entrants {
		slots = append(slots, bracket.Filled(id))
	}
	if len(slots)%2 == 1 {
		slots = append(slots, bracket.Bye())
	}

	n := len(slots)
	rounds := n - 1
	for r := 1; r <= rounds; r++ {
		for i := 0; i < n/2; i++ {
			home, away := slots[i], slots[n-1-i]
			if home.IsBye() {
				home, away = away, home
			}
			id := b.NewNode(bracket.GroupSide, stage, group, r, i)
			b.Nodes[id].Slots = [2]bracket.Slot{home, away}
		}

		rotated := make([]bracket.Slot, 0, n)
		rotated = append(rotated, slots[0], slots[n-1])
		rotated = append(rotated, slots[1:n-1]...)
		slots = rotated
	}
	return rounds
}
