package sources

import (
	"context"
	"time"

	"esdmd/internal/entropy"
)

// interruptMaxBits mirrors jitterMaxBits's conservatism; this source
// stands in for a kernel's hardware interrupt taps, which an
// unprivileged daemon cannot observe directly.
const interruptMaxBits = 256

// InterruptSource approximates hardware interrupt-arrival jitter by
// racing a goroutine send against the caller: the scheduling latency
// between the two is the noise signal. This is a user-space stand-in
// for a kernel interrupt-handler tap, which has no equivalent available
// to an unprivileged daemon.
type InterruptSource struct {
	pool *mixPool
	rep  *RepetitionCountTest
	apt  *AdaptiveProportionTest
}

// NewInterruptSource constructs a ready-to-use interrupt-jitter source.
func NewInterruptSource() *InterruptSource {
	return &InterruptSource{
		pool: newMixPool(interruptMaxBits),
		rep:  NewRepetitionCountTest(21),
		apt:  NewAdaptiveProportionTest(512, 325),
	}
}

func (s *InterruptSource) Name() string { return "interrupt_sim" }
func (s *InterruptSource) Init() error  { return nil }
func (s *InterruptSource) Fini() error  { return nil }

func (s *InterruptSource) Reset() {
	s.pool.reset()
	s.rep.Reset()
	s.apt.Reset()
}

// Monitor starts a goroutine that stamps the moment it gets scheduled,
// and folds the round-trip latency against the caller's own timestamp
// into one byte.
func (s *InterruptSource) Monitor() {
	arrived := make(chan int64, 1)
	start := time.Now().UnixNano()
	go func() {
		arrived <- time.Now().UnixNano()
	}()
	end := <-arrived

	b := byte(uint64(end-start) ^ uint64(time.Now().UnixNano()))
	s.rep.Feed(b)
	s.apt.Feed(b)

	bits := uint32(1)
	if s.rep.Status() == HealthFailed || s.apt.Status() == HealthFailed {
		bits = 0
	}
	s.pool.credit([]byte{b}, bits)
}

func (s *InterruptSource) CurrEntropy(_ entropy.Estimate) entropy.Estimate {
	return entropy.Estimate(s.pool.currEntropy())
}

func (s *InterruptSource) MaxEntropy() entropy.Estimate { return interruptMaxBits }

func (s *InterruptSource) GetEnt(_ context.Context, slot *entropy.Slot, requestedBits entropy.Estimate, _ bool) {
	granted := s.pool.drain(slot.Data, uint32(requestedBits))
	slot.Bits = entropy.Estimate(granted)
}
