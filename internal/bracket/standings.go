package bracket

import (
	"math"
	"sort"
)

const (
	WinPoints  = 3
	DrawPoints = 1
)

type Standing struct {
	Participant  ParticipantID `json:"participant"`
	Seed         int           `json:"seed"`
	Group        int           `json:"group"`
	Played       int           `json:"played"`
	Wins         int           `json:"wins"`
	Draws        int           `json:"draws"`
	Losses       int           `json:"losses"`
	Byes         int           `json:"byes"`
	Points       int           `json:"points"`
	ScoreFor     int           `json:"score_for"`
	ScoreAgainst int           `json:"score_against"`
	// Buchholz is the sum of opponents' points, Swiss only.
	Buchholz int `json:"buchholz,omitempty"`
	Rank     int `json:"rank"`
}

// Standings tallies the completed group-side nodes of a stage. Rows are
// ordered by group, then by rank within the group.
func (b *Bracket) Standings(stage int) []Standing {
	rows := make(map[ParticipantID]*Standing, len(b.Participants))
	order := make([]ParticipantID, 0, len(b.Participants))
	add := func(id ParticipantID, group int) {
		if _, ok := rows[id]; ok {
			return
		}
		p, _ := b.Participant(id)
		rows[id] = &Standing{Participant: id, Seed: p.Seed, Group: group}
		order = append(order, id)
	}
	if len(b.Groups) > 0 && stage == 0 {
		for g, members := range b.Groups {
			for _, id := range members {
				add(id, g)
			}
		}
	} else {
		for _, p := range b.Participants {
			add(p.ID, 0)
		}
	}

	swiss := b.Format == Swiss
	opponents := make(map[ParticipantID][]ParticipantID)
	for i := range b.Nodes {
		n := &b.Nodes[i]
		if n.Stage != stage || n.Side != GroupSide || !n.Completed {
			continue
		}
		if n.IsBye() {
			id := n.Winner()
			if r, ok := rows[id]; ok {
				r.Byes++
				if swiss {
					r.Wins++
					r.Points += WinPoints
				}
			}
			continue
		}
		for slot := 0; slot < 2; slot++ {
			r, ok := rows[n.Slots[slot].Participant]
			if !ok {
				continue
			}
			r.Played++
			opponents[r.Participant] = append(opponents[r.Participant], n.Slots[1-slot].Participant)
			if n.Score != nil {
				own, other := n.Score.ForSlot(slot)
				r.ScoreFor += own
				r.ScoreAgainst += other
			}
			switch n.WinnerSlot {
			case -1:
				r.Draws++
				r.Points += DrawPoints
			case slot:
				r.Wins++
				r.Points += WinPoints
			default:
				r.Losses++
			}
		}
	}

	if swiss {
		for id, opps := range opponents {
			for _, o := range opps {
				if or, ok := rows[o]; ok {
					rows[id].Buchholz += or.Points
				}
			}
		}
	}

	table := make([]Standing, 0, len(order))
	for _, id := range order {
		table = append(table, *rows[id])
	}
	sort.SliceStable(table, func(i, j int) bool {
		a, c := table[i], table[j]
		if a.Group != c.Group {
			return a.Group < c.Group
		}
		if a.Points != c.Points {
			return a.Points > c.Points
		}
		if a.Buchholz != c.Buchholz {
			return a.Buchholz > c.Buchholz
		}
		if a.Wins != c.Wins {
			return a.Wins > c.Wins
		}
		if da, dc := a.ScoreFor-a.ScoreAgainst, c.ScoreFor-c.ScoreAgainst; da != dc {
			return da > dc
		}
		return a.Seed < c.Seed
	})
	for i := range table {
		if i > 0 && table[i].Group == table[i-1].Group {
			table[i].Rank = table[i-1].Rank + 1
		} else {
			table[i].Rank = 1
		}
	}
	return table
}

// Placements ranks participants of an elimination stage by how far they got.
// Participants knocked out at the same depth share a rank; those still alive
// share the top rank until the bracket completes.
func (b *Bracket) Placements() []Standing {
	depth := make(map[ParticipantID]int, len(b.Participants))
	alive := math.MaxInt
	for i := range b.Nodes {
		n := &b.Nodes[i]
		if n.Stage != b.Stage {
			continue
		}
		for _, s := range n.Slots {
			if s.IsParticipant() {
				depth[s.Participant] = alive
			}
		}
	}
	for i := range b.Nodes {
		n := &b.Nodes[i]
		if n.Stage != b.Stage || !n.Completed || !n.Elimination() || n.WinnerSlot < 0 {
			continue
		}
		loser := n.Loser()
		if loser == "" || n.LoserTo.Valid() || (n.ResetTo >= 0 && n.WinnerSlot == 1) {
			continue
		}
		d := n.Round
		if n.Side == FinalsSide {
			d += 1 << 16
		}
		depth[loser] = d
	}
	if b.Completed && b.Champion != "" {
		depth[b.Champion] = alive
	}

	table := make([]Standing, 0, len(depth))
	for id := range depth {
		p, _ := b.Participant(id)
		table = append(table, Standing{Participant: id, Seed: p.Seed})
	}
	sort.Slice(table, func(i, j int) bool {
		di, dj := depth[table[i].Participant], depth[table[j].Participant]
		if di != dj {
			return di > dj
		}
		if table[i].Seed != table[j].Seed {
			return table[i].Seed < table[j].Seed
		}
		return table[i].Participant < table[j].Participant
	})
	for i := range table {
		if i > 0 && depth[table[i].Participant] == depth[table[i-1].Participant] {
			table[i].Rank = table[i-1].Rank
		} else {
			table[i].Rank = i + 1
		}
	}
	return table
}
