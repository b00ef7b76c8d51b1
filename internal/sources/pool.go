package sources

import (
	"crypto/sha256"
	"encoding/binary"
	"sync"
	"time"
)

// mixPool is the SHA-256 whitening accumulator shared by every
// noise-derived source (jitter, interrupt, scheduler, aux). It tracks a
// conservative bit credit independent of how many raw bytes have been
// mixed in — crediting is the caller's job, not the pool's.
type mixPool struct {
	mu      sync.Mutex
	state   [64]byte
	written uint64
	read    uint64
	bits    uint32
	maxBits uint32
}

func newMixPool(maxBits uint32) *mixPool {
	return &mixPool{maxBits: maxBits}
}

// credit mixes data into the pool and adds bits of credit, clamped to
// maxBits.
func (p *mixPool) credit(data []byte, bits uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mixLocked(data)
	p.bits += bits
	if p.bits > p.maxBits {
		p.bits = p.maxBits
	}
}

func (p *mixPool) mixLocked(data []byte) {
	h := sha256.New()
	h.Write(p.state[:])
	h.Write(data)
	binary.Write(h, binary.BigEndian, time.Now().UnixNano())
	copy(p.state[:32], h.Sum(nil))

	h.Reset()
	h.Write(data)
	h.Write(p.state[:32])
	binary.Write(h, binary.BigEndian, p.written)
	copy(p.state[32:], h.Sum(nil))

	p.written += uint64(len(data))
}

// currEntropy reports the credited bits currently held.
func (p *mixPool) currEntropy() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bits
}

// drain writes len(out) bytes of keystream derived from the pool state
// and debits up to requestedBits of credit, returning the bits actually
// granted (never more than was available).
func (p *mixPool) drain(out []byte, requestedBits uint32) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()

	h := sha256.New()
	for i := 0; i < len(out); i += 32 {
		h.Reset()
		h.Write(p.state[:])
		binary.Write(h, binary.BigEndian, p.read)
		binary.Write(h, binary.BigEndian, uint64(i))
		block := h.Sum(nil)
		copy(out[i:], block)
		p.read++

		h.Reset()
		h.Write(p.state[:])
		h.Write(block)
		copy(p.state[:32], h.Sum(nil))
	}

	granted := requestedBits
	if granted > p.bits {
		granted = p.bits
	}
	p.bits -= granted
	return granted
}

func (p *mixPool) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = [64]byte{}
	p.written = 0
	p.read = 0
	p.bits = 0
}
