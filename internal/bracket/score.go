package bracket

import "fmt"

// Score is oriented by slot: A belongs to slot 0, B to slot 1.
type Score struct {
	A int `json:"a" msgpack:"a"`
	B int `json:"b" msgpack:"b"`
}

func (s Score) Validate() error {
	if s.A < 0 || s.B < 0 {
		return fmt.Errorf("%w: negative value %d-%d", ErrInvalidScore, s.A, s.B)
	}
	return nil
}

// WinnerSlot returns 0 or 1, or -1 for a draw.
func (s Score) WinnerSlot() int {
	switch {
	case s.A > s.B:
		return 0
	case s.B > s.A:
		return 1
	default:
		return -1
	}
}

func (s Score) IsDraw() bool {
	return s.A == s.B
}

// ForSlot returns the score with points for slot first.
func (s Score) ForSlot(slot int) (own, other int) {
	if slot == 1 {
		return s.B, s.A
	}
	return s.A, s.B
}

// Oriented builds a score where winnerSlot gets win points.
func Oriented(winnerSlot, win, lose int) Score {
	if winnerSlot == 1 {
		return Score{A: lose, B: win}
	}
	return Score{A: win, B: lose}
}

func (s Score) String() string {
	return fmt.Sprintf("%d-%d", s.A, s.B)
}
