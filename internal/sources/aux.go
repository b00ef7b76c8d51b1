package sources

import (
	"context"

	"esdmd/internal/entropy"
)

// auxMaxBits bounds the auxiliary pool's credited capacity; generous
// since it is the sink for the bootstrap seed and any explicit
// add-entropy calls.
const auxMaxBits = 4096

// AuxSource is the always-last registry entry: the sink for the
// manager's own bootstrap seed (lifecycle.go) and for entropy injected
// from outside the manager (the CLI's add-entropy subcommand). It is
// otherwise an
// ordinary mixing pool.
type AuxSource struct {
	pool *mixPool
}

// NewAuxSource constructs an empty auxiliary pool.
func NewAuxSource() *AuxSource {
	return &AuxSource{pool: newMixPool(auxMaxBits)}
}

func (s *AuxSource) Name() string { return "aux" }
func (s *AuxSource) Init() error  { return nil }
func (s *AuxSource) Fini() error  { return nil }
func (s *AuxSource) Reset()       { s.pool.reset() }
func (s *AuxSource) Monitor()     {}

func (s *AuxSource) CurrEntropy(_ entropy.Estimate) entropy.Estimate {
	return entropy.Estimate(s.pool.currEntropy())
}

func (s *AuxSource) MaxEntropy() entropy.Estimate { return auxMaxBits }

func (s *AuxSource) GetEnt(_ context.Context, slot *entropy.Slot, requestedBits entropy.Estimate, _ bool) {
	granted := s.pool.drain(slot.Data, uint32(requestedBits))
	slot.Bits = entropy.Estimate(granted)
}

// InsertAux mixes external data into the pool and credits entropyBits.
// The manager's own bootstrap seed always passes 0 (untrusted); an
// operator-initiated add-entropy call may pass a caller-asserted
// estimate, which the accountant still treats as just another source's
// claim — no credit here is ever re-validated against the actual data.
func (s *AuxSource) InsertAux(data []byte, entropyBits entropy.Estimate) {
	s.pool.credit(data, uint32(entropyBits))
}
