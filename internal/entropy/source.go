// Package entropy implements the entropy source manager and seed-level
// state machine: the subsystem that aggregates heterogeneous noise
// sources, tracks a conservative estimate of collected entropy, and
// drives one or more DRNGs through the uninitialized -> min-seeded ->
// fully-seeded -> operational lifecycle.
//
// It does not implement entropy sources or DRNG algorithms itself —
// those are external collaborators consumed through the Source and DRNG
// interfaces in this file and manager.go.
package entropy

import (
	"context"
	"time"
)

// Estimate is a conservative, non-negative count of entropy bits. Zero
// is the sentinel for "no entropy delivered" — a source must never
// overstate what it produced.
type Estimate = uint32

// Source is the capability surface every entropy source implements.
// Sources are referenced by their position in the registry (the source
// index), which also fixes their slot in the seed buffer: ordering is
// deterministic so that downstream mixing is deterministic given source
// outputs (spec "Ordering").
type Source interface {
	// Name is a human-readable identifier, used in logs only.
	Name() string

	// Init performs one-time setup. A nil return from a non-optional
	// source that doesn't implement Init is treated as success; sources
	// that have no setup to do simply omit this from their capability
	// set by returning nil error unconditionally.
	Init() error

	// Fini releases resources. Manager.Finalize calls it on every
	// registered source, whatever the outcome of that source's Init.
	Fini() error

	// Reset asks the source to discard accounting state. Bytes already
	// resident in a source's internal pool are not required to be
	// erased — they cannot harm and may help a later reseed.
	Reset()

	// Monitor gives a source a chance to pull a sample opportunistically.
	// Invoked by the startup monitor; optional sources may no-op.
	Monitor()

	// CurrEntropy returns the current entropy estimate available from
	// this source, assuming a caller asks for at least threshold bits.
	// Pure, fast, and safe to call concurrently with everything else.
	CurrEntropy(threshold Estimate) Estimate

	// MaxEntropy returns the theoretical maximum this source can ever
	// report — a constant property of the source, not its live state.
	MaxEntropy() Estimate

	// GetEnt fills slot.Data with up to requestedBits worth of raw
	// material and sets slot.Bits to the conservative credit for what
	// was actually written (<= threshold implied by the caller's
	// context). fullySeededHint lets a source tune its sampling
	// aggressiveness once the manager is already fully seeded.
	GetEnt(ctx context.Context, slot *Slot, requestedBits Estimate, fullySeededHint bool)
}

// Slot is one entropy source's contribution to a single reseed event.
type Slot struct {
	Bits Estimate
	Data []byte
}

// Zeroize overwrites Data and clears Bits. Called on every exit path of
// a reseed, including refusal and error paths.
func (s *Slot) Zeroize() {
	for i := range s.Data {
		s.Data[i] = 0
	}
	s.Bits = 0
}

// Buffer is the per-reseed seed buffer: one Slot per registered source,
// in registry order, plus the timestamp of the reseed attempt. It is
// owned by whoever triggers a reseed and is borrowed, never retained, by
// the manager; callers must defer buf.Zeroize() immediately after
// constructing one.
type Buffer struct {
	Slots []Slot
	Now   time.Time
}

// NewBuffer allocates a Buffer sized for n sources, each with cap bytes
// of scratch space.
func NewBuffer(n, cap int) *Buffer {
	b := &Buffer{Slots: make([]Slot, n)}
	for i := range b.Slots {
		b.Slots[i].Data = make([]byte, cap)
	}
	return b
}

// Zeroize clears every slot. Safe to call multiple times.
func (b *Buffer) Zeroize() {
	for i := range b.Slots {
		b.Slots[i].Zeroize()
	}
}

// EntropyRate sums the per-slot credited bits. This is the authoritative
// figure for a given reseed event — the SLSM never re-reads sources
// after the fact (invariant 7).
func (b *Buffer) EntropyRate() Estimate {
	var total Estimate
	for i := range b.Slots {
		total += b.Slots[i].Bits
	}
	return total
}

// DRNG is the out-of-scope DRNG collaborator contract the manager relies
// on: given a freshly filled seed buffer, mix it into the generator's
// state and report whether the generator now considers itself fully
// seeded with the requested security strength.
type DRNG interface {
	// Name identifies the backend for logs/metrics.
	Name() string

	// Reseed mixes buf's per-source contributions into the generator.
	// Implementations decide how much of buf.EntropyRate() they trust;
	// the manager only cares that Reseed returns once mixing completed.
	Reseed(ctx context.Context, buf *Buffer) error

	// FullySeeded reports whether this DRNG instance currently believes
	// it holds full security strength. Distinct from the manager's own
	// fullySeeded flag, which additionally requires InitOps to have
	// observed enough seed_bits.
	FullySeeded() bool

	// SetFullySeeded lets the SLSM push a demotion/promotion down into
	// the backend (UnsetFullySeeded clears it; a later successful
	// Reseed sets it back).
	SetFullySeeded(v bool)

	// Read draws operational random bytes once the manager considers
	// the DRNG operational. Callers are responsible for checking
	// Manager.StateOperational() first; Read itself does not gate on it.
	Read(p []byte) (int, error)
}
