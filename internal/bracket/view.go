package bracket

import "sort"

type RoundView struct {
	Round int    `json:"round"`
	Nodes []Node `json:"nodes"`
}

type SectionView struct {
	Stage  int         `json:"stage"`
	Side   BracketSide `json:"side"`
	Group  int         `json:"group"`
	Rounds []RoundView `json:"rounds"`
}

// View groups a bracket's nodes into render-ready sections and rounds.
type View struct {
	BracketID    string        `json:"bracket_id"`
	TournamentID string        `json:"tournament_id"`
	Format       Format        `json:"format"`
	Version      uint64        `json:"version"`
	Completed    bool          `json:"completed"`
	Champion     ParticipantID `json:"champion,omitempty"`
	Sections     []SectionView `json:"sections"`
	Participants []Participant `json:"participants"`
}

var sideOrder = map[BracketSide]int{
	GroupSide:   0,
	WinnersSide: 1,
	LosersSide:  2,
	FinalsSide:  3,
}

type sectionKey struct {
	stage int
	side  BracketSide
	group int
}

func PrepareView(b *Bracket) View {
	sections := make(map[sectionKey]map[int][]Node)
	var keys []sectionKey

	for _, n := range b.Nodes {
		k := sectionKey{stage: n.Stage, side: n.Side, group: n.Group}
		rounds, exists := sections[k]
		if !exists {
			rounds = make(map[int][]Node)
			sections[k] = rounds
			keys = append(keys, k)
		}
		rounds[n.Round] = append(rounds[n.Round], n)
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].stage != keys[j].stage {
			return keys[i].stage < keys[j].stage
		}
		if keys[i].side != keys[j].side {
			return sideOrder[keys[i].side] < sideOrder[keys[j].side]
		}
		return keys[i].group < keys[j].group
	})

	v := View{
		BracketID:    b.ID,
		TournamentID: b.TournamentID,
		Format:       b.Format,
		Version:      b.Version,
		Completed:    b.Completed,
		Champion:     b.Champion,
		Participants: b.Participants,
	}
	for _, k := range keys {
		v.Sections = append(v.Sections, SectionView{
			Stage:  k.stage,
			Side:   k.side,
			Group:  k.group,
			Rounds: sortRounds(sections[k]),
		})
	}
	return v
}

func sortRounds(rounds map[int][]Node) []RoundView {
	nums := make([]int, 0, len(rounds))
	for r := range rounds {
		nums = append(nums, r)
	}
	sort.Ints(nums)

	out := make([]RoundView, 0, len(nums))
	for _, r := range nums {
		nodes := rounds[r]
		sort.Slice(nodes, func(i, j int) bool {
			return nodes[i].Position < nodes[j].Position
		})
		out = append(out, RoundView{Round: r, Nodes: nodes})
	}
	return out
}
