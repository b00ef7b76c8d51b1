// Package drng adapts third-party random-number generators to the
// entropy.DRNG collaborator contract: given a freshly filled seed
// buffer, mix it into the generator's internal state and report whether
// the generator now believes itself fully seeded.
package drng

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/maruel/fortuna"

	"esdmd/internal/entropy"
)

// fortunaMinSeed is maruel/fortuna's own minimum construction-time seed
// length (2x sha256.BlockSize, its internal pool size); see its
// NewFortuna doc comment.
const fortunaMinSeed = 128

// FortunaNode adapts maruel/fortuna's accumulator to entropy.DRNG. It is
// the designated init instance (manager.Nodes[0]) —
// the manager's UnsetFullySeeded cascade rule singles this node out.
type FortunaNode struct {
	mu     sync.Mutex
	gen    fortuna.Fortuna
	seeded atomic.Bool
}

// NewFortunaNode constructs a Fortuna accumulator bootstrapped with
// crypto/rand, the same bootstrap-before-real-seed pattern the manager
// itself uses in lifecycle.go's injectBootstrapSeed.
func NewFortunaNode() (*FortunaNode, error) {
	seed := make([]byte, fortunaMinSeed)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("drng: bootstrap fortuna seed: %w", err)
	}
	gen, err := fortuna.NewFortuna(seed)
	if err != nil {
		return nil, fmt.Errorf("drng: construct fortuna: %w", err)
	}
	for i := range seed {
		seed[i] = 0
	}
	return &FortunaNode{gen: gen}, nil
}

func (n *FortunaNode) Name() string { return "fortuna" }

// Reseed adds every source's slot as one random event, keyed by the
// source's registry index (Fortuna caps useful event size at 32 bytes;
// larger slots are still accepted, just less efficiently folded in).
func (n *FortunaNode) Reseed(_ context.Context, buf *entropy.Buffer) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	credited := buf.EntropyRate()
	for i := range buf.Slots {
		if buf.Slots[i].Bits == 0 {
			continue
		}
		n.gen.AddRandomEvent(byte(i), buf.Slots[i].Data)
	}

	if credited >= 256 {
		n.seeded.Store(true)
	}
	return nil
}

func (n *FortunaNode) FullySeeded() bool     { return n.seeded.Load() }
func (n *FortunaNode) SetFullySeeded(v bool) { n.seeded.Store(v) }

func (n *FortunaNode) Read(p []byte) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.gen.Read(p)
}
