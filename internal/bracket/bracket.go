package bracket

import (
	"fmt"
	"time"
)

type Format uint8

const (
	SingleElimination Format = iota
	DoubleElimination
	RoundRobin
	Swiss
	GroupPlayoff

	FormatCount
)

var formatNames = [FormatCount]string{
	SingleElimination: "single",
	DoubleElimination: "double",
	RoundRobin:        "round_robin",
	Swiss:             "swiss",
	GroupPlayoff:      "group_playoff",
}

func (f Format) String() string {
	if f < FormatCount {
		return formatNames[f]
	}
	return fmt.Sprintf("format(%d)", uint8(f))
}

func ParseFormat(s string) (Format, error) {
	for i, name := range formatNames {
		if name == s {
			return Format(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

func (f Format) MarshalText() ([]byte, error) {
	if f >= FormatCount {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFormat, f)
	}
	return []byte(f.String()), nil
}

func (f *Format) UnmarshalText(text []byte) error {
	parsed, err := ParseFormat(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// MinParticipants is the smallest field the format can be generated for.
func (f Format) MinParticipants() int {
	switch f {
	case RoundRobin, Swiss:
		return 3
	case GroupPlayoff:
		return 4
	default:
		return 2
	}
}

// AllowsDraws reports whether nodes of the format may end level.
func (f Format) AllowsDraws() bool {
	return f == RoundRobin || f == Swiss || f == GroupPlayoff
}

type SeedingMethod string

const (
	SeedRandom SeedingMethod = "random"
	SeedRanked SeedingMethod = "ranked"
	SeedManual SeedingMethod = "manual"
)

func ParseSeedingMethod(s string) (SeedingMethod, error) {
	switch m := SeedingMethod(s); m {
	case SeedRandom, SeedRanked, SeedManual:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown seeding method %q", ErrInvalidSeedAssignment, s)
}

// Params carries the format-specific knobs. Zero values select defaults.
type Params struct {
	BracketReset    bool `json:"bracket_reset" msgpack:"bracket_reset"`
	SwissRounds     int  `json:"swiss_rounds,omitempty" msgpack:"swiss_rounds"`
	GroupCount      int  `json:"group_count,omitempty" msgpack:"group_count"`
	AdvancePerGroup int  `json:"advance_per_group,omitempty" msgpack:"advance_per_group"`
}

type Bracket struct {
	ID           string        `json:"id" msgpack:"id"`
	TournamentID string        `json:"tournament_id" msgpack:"tournament_id"`
	Format       Format        `json:"format" msgpack:"format"`
	Seeding      SeedingMethod `json:"seeding" msgpack:"seeding"`
	Params       Params        `json:"params" msgpack:"params"`

	// Participants is in seed order.
	Participants []Participant    `json:"participants" msgpack:"participants"`
	Groups       [][]ParticipantID `json:"groups,omitempty" msgpack:"groups"`
	Nodes        []Node           `json:"nodes" msgpack:"nodes"`

	// Stage is 0 for the main or group stage and 1 once a playoff has been appended.
	Stage        int `json:"stage" msgpack:"stage"`
	TotalRounds  int `json:"total_rounds" msgpack:"total_rounds"`
	CurrentRound int `json:"current_round" msgpack:"current_round"`

	Version   uint64        `json:"version" msgpack:"version"`
	Completed bool          `json:"completed" msgpack:"completed"`
	Champion  ParticipantID `json:"champion,omitempty" msgpack:"champion"`
	CreatedAt time.Time     `json:"created_at" msgpack:"created_at"`
}

func New(format Format, seeded []Participant, params Params) *Bracket {
	return &Bracket{
		Format:       format,
		Params:       params,
		Participants: append([]Participant(nil), seeded...),
	}
}

// AddNode appends n to the arena and returns its id.
func (b *Bracket) AddNode(n Node) NodeID {
	n.ID = NodeID(len(b.Nodes))
	b.Nodes = append(b.Nodes, n)
	return n.ID
}

// NewNode appends an empty node at the given coordinates.
func (b *Bracket) NewNode(side BracketSide, stage, group, round, position int) NodeID {
	return b.AddNode(newNode(side, stage, group, round, position))
}

// Node returns a pointer into the arena, nil when id is out of range.
func (b *Bracket) Node(id NodeID) *Node {
	if id < 0 || int(id) >= len(b.Nodes) {
		return nil
	}
	return &b.Nodes[id]
}

func (b *Bracket) Lookup(stage int, side BracketSide, group, round, position int) *Node {
	for i := range b.Nodes {
		n := &b.Nodes[i]
		if n.Stage == stage && n.Side == side && n.Group == group && n.Round == round && n.Position == position {
			return n
		}
	}
	return nil
}

func (b *Bracket) NodeByMatch(matchID string) *Node {
	for i := range b.Nodes {
		if b.Nodes[i].MatchID == matchID {
			return &b.Nodes[i]
		}
	}
	return nil
}

func (b *Bracket) Participant(id ParticipantID) (Participant, bool) {
	for _, p := range b.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return Participant{}, false
}

// RoundDone reports whether every node of the stage and round is completed, cancelled or skipped.
func (b *Bracket) RoundDone(stage, round int) bool {
	seen := false
	for i := range b.Nodes {
		n := &b.Nodes[i]
		if n.Stage != stage || n.Round != round {
			continue
		}
		seen = true
		if !n.Done() {
			return false
		}
	}
	return seen
}

// StageDone reports whether every node in the stage is finished.
func (b *Bracket) StageDone(stage int) bool {
	seen := false
	for i := range b.Nodes {
		if b.Nodes[i].Stage != stage {
			continue
		}
		seen = true
		if !b.Nodes[i].Done() {
			return false
		}
	}
	return seen
}

// Clone returns a deep copy safe to hand to readers.
func (b *Bracket) Clone() *Bracket {
	c := *b
	c.Participants = append([]Participant(nil), b.Participants...)
	c.Nodes = make([]Node, len(b.Nodes))
	for i, n := range b.Nodes {
		if n.Score != nil {
			s := *n.Score
			n.Score = &s
		}
		c.Nodes[i] = n
	}
	if b.Groups != nil {
		c.Groups = make([][]ParticipantID, len(b.Groups))
		for i, g := range b.Groups {
			c.Groups[i] = append([]ParticipantID(nil), g...)
		}
	}
	return &c
}
