// Package generator builds the node graph for each tournament format.
package generator

import (
	"fmt"

	"github.com/AdamBeresnev/bracket-engine/internal/bracket"
)

// Generator turns a seeded field into a bracket. Implementations are pure:
// the same input always produces the same graph.
type Generator interface {
	Generate(seeded []bracket.Participant, params bracket.Params) (*bracket.Bracket, error)
}

// Extender is implemented by formats that add nodes as results come in.
// Extend returns the ids of appended nodes, none when nothing was due.
type Extender interface {
	Extend(b *bracket.Bracket) ([]bracket.NodeID, error)
}

var table = [bracket.FormatCount]Generator{
	bracket.SingleElimination: singleElimination{},
	bracket.DoubleElimination: doubleElimination{},
	bracket.RoundRobin:        roundRobin{},
	bracket.Swiss:             swiss{},
	bracket.GroupPlayoff:      groupPlayoff{},
}

// For returns the generator registered for f.
func For(f bracket.Format) (Generator, error) {
	if f >= bracket.FormatCount || table[f] == nil {
		return nil, fmt.Errorf("%w: %d", bracket.ErrUnknownFormat, f)
	}
	return table[f], nil
}

func Generate(f bracket.Format, seeded []bracket.Participant, params bracket.Params) (*bracket.Bracket, error) {
	g, err := For(f)
	if err != nil {
		return nil, err
	}
	if len(seeded) < f.MinParticipants() {
		return nil, fmt.Errorf("%w: %s needs at least %d participants, got %d",
			bracket.ErrFormatNotApplicable, f, f.MinParticipants(), len(seeded))
	}
	seen := make(map[bracket.ParticipantID]struct{}, len(seeded))
	for _, p := range seeded {
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("%w: %s appears twice", bracket.ErrInvalidSeedAssignment, p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	return g.Generate(seeded, params)
}

// Extend appends whatever the format has become ready to generate.
// Formats that are fully generated up front return no nodes.
func Extend(b *bracket.Bracket) ([]bracket.NodeID, error) {
	g, err := For(b.Format)
	if err != nil {
		return nil, err
	}
	ext, ok := g.(Extender)
	if !ok {
		return nil, nil
	}
	return ext.Extend(b)
}
