package bracket

import "fmt"

type BracketSide string

const (
	WinnersSide BracketSide = "winners"
	LosersSide  BracketSide = "losers"
	FinalsSide  BracketSide = "finals"
	GroupSide   BracketSide = "group"
)

// NodeID indexes Bracket.Nodes. Negative values are edge sentinels.
type NodeID int

const (
	NoNode   NodeID = -1
	Terminal NodeID = -2
)

// Edge points at one slot of a downstream node.
type Edge struct {
	To   NodeID `json:"to" msgpack:"to"`
	Slot int    `json:"slot" msgpack:"slot"`
}

var (
	NoEdge       = Edge{To: NoNode}
	TerminalEdge = Edge{To: Terminal}
)

// Valid reports whether the edge leads to a real node.
func (e Edge) Valid() bool {
	return e.To >= 0
}

type SlotKind uint8

const (
	SlotTBD SlotKind = iota
	SlotParticipant
	SlotBye
)

var slotKindNames = [...]string{"tbd", "participant", "bye"}

func (k SlotKind) String() string {
	if int(k) < len(slotKindNames) {
		return slotKindNames[k]
	}
	return fmt.Sprintf("slot(%d)", uint8(k))
}

func (k SlotKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *SlotKind) UnmarshalText(text []byte) error {
	for i, name := range slotKindNames {
		if name == string(text) {
			*k = SlotKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown slot kind %q", text)
}

type Slot struct {
	Kind        SlotKind      `json:"kind" msgpack:"kind"`
	Participant ParticipantID `json:"participant,omitempty" msgpack:"participant"`
}

func TBD() Slot { return Slot{Kind: SlotTBD} }

func Bye() Slot { return Slot{Kind: SlotBye} }

func Filled(id ParticipantID) Slot {
	return Slot{Kind: SlotParticipant, Participant: id}
}

func (s Slot) IsTBD() bool         { return s.Kind == SlotTBD }
func (s Slot) IsBye() bool         { return s.Kind == SlotBye }
func (s Slot) IsParticipant() bool { return s.Kind == SlotParticipant }

func (s Slot) String() string {
	if s.IsParticipant() {
		return string(s.Participant)
	}
	return s.Kind.String()
}

// Node is one pairing position in the bracket graph.
type Node struct {
	ID    NodeID      `json:"id" msgpack:"id"`
	Side  BracketSide `json:"side" msgpack:"side"`
	Stage int         `json:"stage" msgpack:"stage"`
	// Group is the pool index for group-stage nodes, zero otherwise.
	Group    int `json:"group" msgpack:"group"`
	Round    int `json:"round" msgpack:"round"`
	Position int `json:"position" msgpack:"position"`

	Slots    [2]Slot `json:"slots" msgpack:"slots"`
	WinnerTo Edge    `json:"winner_to" msgpack:"winner_to"`
	LoserTo  Edge    `json:"loser_to" msgpack:"loser_to"`
	// ResetTo is set on the first grand final when a bracket reset is configured.
	ResetTo NodeID `json:"reset_to" msgpack:"reset_to"`

	MatchID string `json:"match_id,omitempty" msgpack:"match_id"`

	Completed bool `json:"completed" msgpack:"completed"`
	Cancelled bool `json:"cancelled" msgpack:"cancelled"`
	// Skipped marks an optional node that turned out not to be needed.
	Skipped bool `json:"skipped" msgpack:"skipped"`
	Frozen  bool `json:"frozen" msgpack:"frozen"`
	Rematch bool `json:"rematch" msgpack:"rematch"`

	// WinnerSlot is -1 for draws and for nodes without a result.
	WinnerSlot int    `json:"winner_slot" msgpack:"winner_slot"`
	Score      *Score `json:"score,omitempty" msgpack:"score"`
}

func newNode(side BracketSide, stage, group, round, position int) Node {
	return Node{
		Side:       side,
		Stage:      stage,
		Group:      group,
		Round:      round,
		Position:   position,
		WinnerTo:   NoEdge,
		LoserTo:    NoEdge,
		ResetTo:    NoNode,
		WinnerSlot: -1,
	}
}

// Participants returns the occupants of both slots, empty for TBD or bye.
func (n *Node) Participants() (ParticipantID, ParticipantID) {
	return n.Slots[0].Participant, n.Slots[1].Participant
}

// Ready reports whether both slots hold participants and the node awaits a result.
func (n *Node) Ready() bool {
	return n.Slots[0].IsParticipant() && n.Slots[1].IsParticipant() && !n.Done()
}

// Done covers completed, cancelled and skipped nodes.
func (n *Node) Done() bool {
	return n.Completed || n.Cancelled || n.Skipped
}

func (n *Node) IsBye() bool {
	return n.Slots[0].IsBye() || n.Slots[1].IsBye()
}

// Winner returns the winning participant, empty for draws, byes of two byes or pending nodes.
func (n *Node) Winner() ParticipantID {
	if !n.Completed || n.WinnerSlot < 0 {
		return ""
	}
	return n.Slots[n.WinnerSlot].Participant
}

func (n *Node) Loser() ParticipantID {
	if !n.Completed || n.WinnerSlot < 0 {
		return ""
	}
	return n.Slots[1-n.WinnerSlot].Participant
}

// SlotOf returns the slot index id occupies, or -1.
func (n *Node) SlotOf(id ParticipantID) int {
	for i, s := range n.Slots {
		if s.IsParticipant() && s.Participant == id {
			return i
		}
	}
	return -1
}

// Elimination reports whether the node feeds a single-outcome path where draws are impossible.
func (n *Node) Elimination() bool {
	return n.Side != GroupSide
}

func (n *Node) Key() string {
	return fmt.Sprintf("%d/%s/%d/%d/%d", n.Stage, n.Side, n.Group, n.Round, n.Position)
}
