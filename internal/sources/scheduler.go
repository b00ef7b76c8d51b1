package sources

import (
	"context"
	"runtime"
	"time"

	"esdmd/internal/entropy"
)

const schedulerMaxBits = 256

// SchedulerSource draws noise from runtime.Gosched() round-trip
// latency: how long the Go scheduler takes to hand control back depends
// on other goroutines, the OS scheduler, and system load — independent
// enough of the jitter and interrupt sources to be worth its own
// registry slot.
type SchedulerSource struct {
	pool *mixPool
	rep  *RepetitionCountTest
	apt  *AdaptiveProportionTest
}

// NewSchedulerSource constructs a ready-to-use scheduler-jitter source.
func NewSchedulerSource() *SchedulerSource {
	return &SchedulerSource{
		pool: newMixPool(schedulerMaxBits),
		rep:  NewRepetitionCountTest(21),
		apt:  NewAdaptiveProportionTest(512, 325),
	}
}

func (s *SchedulerSource) Name() string { return "scheduler_jitter" }
func (s *SchedulerSource) Init() error  { return nil }
func (s *SchedulerSource) Fini() error  { return nil }

func (s *SchedulerSource) Reset() {
	s.pool.reset()
	s.rep.Reset()
	s.apt.Reset()
}

func (s *SchedulerSource) Monitor() {
	t1 := time.Now().UnixNano()
	runtime.Gosched()
	t2 := time.Now().UnixNano()

	b := byte(uint64(t2 - t1))
	s.rep.Feed(b)
	s.apt.Feed(b)

	bits := uint32(1)
	if s.rep.Status() == HealthFailed || s.apt.Status() == HealthFailed {
		bits = 0
	}
	s.pool.credit([]byte{b}, bits)
}

func (s *SchedulerSource) CurrEntropy(_ entropy.Estimate) entropy.Estimate {
	return entropy.Estimate(s.pool.currEntropy())
}

func (s *SchedulerSource) MaxEntropy() entropy.Estimate { return schedulerMaxBits }

func (s *SchedulerSource) GetEnt(_ context.Context, slot *entropy.Slot, requestedBits entropy.Estimate, _ bool) {
	granted := s.pool.drain(slot.Data, uint32(requestedBits))
	slot.Bits = entropy.Estimate(granted)
}
