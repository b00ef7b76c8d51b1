package drng

import (
	"context"
	"crypto/sha256"
	"io"
	"sync"
	"sync/atomic"

	ctrdrbg "github.com/sixafter/aes-ctr-drbg"
	"golang.org/x/crypto/hkdf"

	"esdmd/internal/entropy"
)

// ctrdrbgDerivedLen is the personalization value's length after HKDF
// derivation — long enough to carry 256 bits of the concatenated slot
// material regardless of how many sources actually contributed.
const ctrdrbgDerivedLen = 32

// ctrdrbgFullSeedBits is the credited-bit threshold this node requires
// before it reports itself fully seeded.
const ctrdrbgFullSeedBits = 256

// CtrDrbgNode adapts sixafter/aes-ctr-drbg to entropy.DRNG. The library
// self-seeds from crypto/rand at construction and exposes no direct
// "mix this buffer in" hook, so Reseed folds the seed buffer into a
// WithPersonalization value and reconstructs the reader — the
// documented adapter choice recorded in DESIGN.md for this backend.
type CtrDrbgNode struct {
	mu     sync.Mutex
	reader ctrdrbg.Interface
	seeded atomic.Bool
}

// NewCtrDrbgNode constructs a node with the library's defaults.
func NewCtrDrbgNode() (*CtrDrbgNode, error) {
	r, err := ctrdrbg.NewReader()
	if err != nil {
		return nil, err
	}
	return &CtrDrbgNode{reader: r}, nil
}

func (n *CtrDrbgNode) Name() string { return "aes_ctr_drbg" }

// Reseed concatenates every credited slot's data, runs it through HKDF
// to produce a fixed-length personalization value, and rebuilds the
// reader. aes-ctr-drbg still re-seeds its own key material from
// crypto/rand internally; the personalization value is mixed into that
// keying, not a replacement for it — this node never claims the
// manager's entropy was the DRBG's sole key source.
func (n *CtrDrbgNode) Reseed(_ context.Context, buf *entropy.Buffer) error {
	var raw []byte
	for i := range buf.Slots {
		if buf.Slots[i].Bits == 0 {
			continue
		}
		raw = append(raw, buf.Slots[i].Data...)
	}

	personalization, err := derivePersonalization(raw)
	if err != nil {
		return err
	}

	r, err := ctrdrbg.NewReader(ctrdrbg.WithPersonalization(personalization))
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.reader = r
	n.mu.Unlock()

	if buf.EntropyRate() >= ctrdrbgFullSeedBits {
		n.seeded.Store(true)
	}
	return nil
}

func (n *CtrDrbgNode) FullySeeded() bool     { return n.seeded.Load() }
func (n *CtrDrbgNode) SetFullySeeded(v bool) { n.seeded.Store(v) }

// derivePersonalization stretches raw source material into a uniform,
// fixed-length value via HKDF-SHA256. An empty input (no slot carried
// credited bits) yields a nil personalization, leaving the reader's
// own crypto/rand self-seed untouched.
func derivePersonalization(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	h := hkdf.New(sha256.New, raw, nil, []byte("esdmd-aes-ctr-drbg"))
	out := make([]byte, ctrdrbgDerivedLen)
	if _, err := io.ReadFull(h, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (n *CtrDrbgNode) Read(p []byte) (int, error) {
	n.mu.Lock()
	r := n.reader
	n.mu.Unlock()
	return r.Read(p)
}
