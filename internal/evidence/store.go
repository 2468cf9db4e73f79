// Package evidence stores result proof outside the core and hands back opaque
// references to it.
package evidence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/AdamBeresnev/bracket-engine/internal/bracket"
)

// Ref points at a stored blob. It is safe to persist and compare.
type Ref string

type Store interface {
	Store(ctx context.Context, blob []byte, contentType string) (Ref, error)
	Retrieve(ctx context.Context, ref Ref) ([]byte, error)
}

// refFor derives a content address, so storing the same proof twice yields
// the same reference.
func refFor(blob []byte) Ref {
	sum := sha256.Sum256(blob)
	return Ref(hex.EncodeToString(sum[:]))
}

type Memory struct {
	mu    sync.RWMutex
	blobs map[Ref][]byte
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{blobs: make(map[Ref][]byte)}
}

func (m *Memory) Store(_ context.Context, blob []byte, _ string) (Ref, error) {
	ref := refFor(blob)
	m.mu.Lock()
	m.blobs[ref] = append([]byte(nil), blob...)
	m.mu.Unlock()
	return ref, nil
}

func (m *Memory) Retrieve(_ context.Context, ref Ref) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	blob, ok := m.blobs[ref]
	if !ok {
		return nil, fmt.Errorf("evidence %s: %w", ref, bracket.ErrNotFound)
	}
	return append([]byte(nil), blob...), nil
}
