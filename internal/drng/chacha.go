package drng

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	chacha "github.com/sixafter/prng-chacha"

	"esdmd/internal/entropy"
)

const chachaFullSeedBits = 256

// ChaChaNode adapts sixafter/prng-chacha to entropy.DRNG, as the
// manager's third per-node backend (manager.Nodes[2]). Unlike
// aes-ctr-drbg, this library exposes no personalization or reseed hook
// at all — it self-seeds from crypto/rand once at construction and
// never again. Reseed therefore cannot inject buf's material directly;
// it only re-derives a fresh reader (forcing a new self-seed from the
// OS CSPRNG) and updates the credited-bit bookkeeping used by
// FullySeeded. This gap is intentional, not papered over.
type ChaChaNode struct {
	mu     sync.Mutex
	reader io.Reader
	seeded atomic.Bool
}

// NewChaChaNode constructs a node with the library's defaults.
func NewChaChaNode() (*ChaChaNode, error) {
	r, err := chacha.NewReader()
	if err != nil {
		return nil, err
	}
	return &ChaChaNode{reader: r}, nil
}

func (n *ChaChaNode) Name() string { return "chacha20_prng" }

func (n *ChaChaNode) Reseed(_ context.Context, buf *entropy.Buffer) error {
	r, err := chacha.NewReader()
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.reader = r
	n.mu.Unlock()

	if buf.EntropyRate() >= chachaFullSeedBits {
		n.seeded.Store(true)
	}
	return nil
}

func (n *ChaChaNode) FullySeeded() bool     { return n.seeded.Load() }
func (n *ChaChaNode) SetFullySeeded(v bool) { n.seeded.Store(v) }

func (n *ChaChaNode) Read(p []byte) (int, error) {
	n.mu.Lock()
	r := n.reader
	n.mu.Unlock()
	return r.Read(p)
}
