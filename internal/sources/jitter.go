package sources

import (
	"context"
	"time"

	"esdmd/internal/entropy"
)

// jitterMaxBits bounds how much credit the jitter source can ever claim
// to hold; kept conservative since CPU timing jitter is a weak,
// unvalidated source, not meant to be the sole contributor.
const jitterMaxBits = 256

// JitterSource collects entropy from CPU execution-timing jitter and
// health-tests each sample with the SP800-90B repetition-count and
// adaptive-proportion tests before crediting it.
type JitterSource struct {
	pool *mixPool
	rep  *RepetitionCountTest
	apt  *AdaptiveProportionTest
}

// NewJitterSource constructs a ready-to-use jitter source.
func NewJitterSource() *JitterSource {
	return &JitterSource{
		pool: newMixPool(jitterMaxBits),
		rep:  NewRepetitionCountTest(21),
		apt:  NewAdaptiveProportionTest(512, 325),
	}
}

func (s *JitterSource) Name() string { return "cpu_jitter" }
func (s *JitterSource) Init() error  { return nil }
func (s *JitterSource) Fini() error  { return nil }

func (s *JitterSource) Reset() {
	s.pool.reset()
	s.rep.Reset()
	s.apt.Reset()
}

// Monitor collects one timing sample, feeds it to both SP800-90B health
// tests, and credits one bit only if both tests currently pass. A
// byte that fails health testing is still mixed as whitening material —
// just not credited, keeping the running estimate conservative.
func (s *JitterSource) Monitor() {
	b := s.collectSample()
	s.rep.Feed(b)
	s.apt.Feed(b)

	bits := uint32(1)
	if s.rep.Status() == HealthFailed || s.apt.Status() == HealthFailed {
		bits = 0
	}
	s.pool.credit([]byte{b}, bits)
}

// collectSample XORs 64 timing deltas from a small memory-touching loop.
func (s *JitterSource) collectSample() byte {
	var acc uint64
	for j := 0; j < 64; j++ {
		acc ^= timingDelta()
	}
	return byte(acc)
}

func timingDelta() uint64 {
	t1 := time.Now().UnixNano()
	buf := make([]byte, 256)
	for i := range buf {
		buf[i] = byte(i)
	}
	t2 := time.Now().UnixNano()
	return uint64(t2 - t1)
}

func (s *JitterSource) CurrEntropy(_ entropy.Estimate) entropy.Estimate {
	return entropy.Estimate(s.pool.currEntropy())
}

func (s *JitterSource) MaxEntropy() entropy.Estimate { return jitterMaxBits }

func (s *JitterSource) GetEnt(_ context.Context, slot *entropy.Slot, requestedBits entropy.Estimate, _ bool) {
	granted := s.pool.drain(slot.Data, uint32(requestedBits))
	slot.Bits = entropy.Estimate(granted)
}
