package entropy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource is a minimal, in-memory Source used across this package's
// tests: Monitor credits a fixed number of bits per call, GetEnt drains
// whatever has been credited, capped by requestedBits.
type fakeSource struct {
	mu       sync.Mutex
	name     string
	bits     Estimate
	max      Estimate
	perPoll  Estimate
	initErr  error
	finiErr  error
	initN    int
	finiN    int
	resetN   int
}

func newFakeSource(name string, max, perPoll Estimate) *fakeSource {
	return &fakeSource{name: name, max: max, perPoll: perPoll}
}

func (s *fakeSource) Name() string { return s.name }
func (s *fakeSource) Init() error  { s.initN++; return s.initErr }
func (s *fakeSource) Fini() error  { s.finiN++; return s.finiErr }

func (s *fakeSource) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetN++
	s.bits = 0
}

func (s *fakeSource) Monitor() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bits += s.perPoll
	if s.bits > s.max {
		s.bits = s.max
	}
}

func (s *fakeSource) CurrEntropy(_ Estimate) Estimate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bits
}

func (s *fakeSource) MaxEntropy() Estimate { return s.max }

func (s *fakeSource) GetEnt(_ context.Context, slot *Slot, requestedBits Estimate, _ bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	granted := requestedBits
	if granted > s.bits {
		granted = s.bits
	}
	s.bits -= granted
	for i := range slot.Data {
		slot.Data[i] = byte(i + 1)
	}
	slot.Bits = granted
}

// fakeAux embeds fakeSource and adds InsertAux, satisfying AuxSource.
type fakeAux struct {
	*fakeSource
}

func (a *fakeAux) InsertAux(_ []byte, bits Estimate) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bits += bits
	if a.bits > a.max {
		a.bits = a.max
	}
}

// fakeDRNG is a minimal DRNG collaborator recording Reseed calls.
type fakeDRNG struct {
	mu       sync.Mutex
	name     string
	seeded   bool
	reseeds  int
	lastBits Estimate
	failNext bool
}

func (d *fakeDRNG) Name() string { return d.name }

func (d *fakeDRNG) Reseed(_ context.Context, buf *Buffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reseeds++
	d.lastBits = buf.EntropyRate()
	if d.failNext {
		d.failNext = false
		return assert.AnError
	}
	if d.lastBits >= 256 {
		d.seeded = true
	}
	return nil
}

func (d *fakeDRNG) FullySeeded() bool { d.mu.Lock(); defer d.mu.Unlock(); return d.seeded }
func (d *fakeDRNG) SetFullySeeded(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seeded = v
}
func (d *fakeDRNG) Read(p []byte) (int, error) { return len(p), nil }

func testPolicy() Policy {
	p := DefaultPolicy()
	return p
}

func newTestManager(t *testing.T, sources []Source, nodes []DRNG) *Manager {
	t.Helper()
	reg := NewRegistry(sources)
	m := NewManager(reg, testPolicy(), nodes, nil, nil, nil)
	return m
}

// --- invariant I1: operational implies fully_seeded implies min_seeded ---

func TestInitOps_PromotionOrderRespectsInvariant(t *testing.T) {
	jitter := newFakeSource("jitter", 512, 200)
	aux := &fakeAux{newFakeSource("aux", 512, 0)}
	node := &fakeDRNG{name: "init"}
	m := newTestManager(t, []Source{jitter, aux}, []DRNG{node})

	ctx := context.Background()

	jitter.mu.Lock()
	jitter.bits = m.policy.InitEntropyBits
	jitter.mu.Unlock()
	m.InitOps(ctx, nil)
	assert.False(t, m.StateMinSeeded(), "entropy at the initial-level threshold alone should not yet min-seed")

	jitter.mu.Lock()
	jitter.bits = m.policy.MinSeedEntropyBits
	jitter.mu.Unlock()
	m.InitOps(ctx, nil)
	assert.True(t, m.StateMinSeeded())
	assert.False(t, m.StateFullySeeded())
	assert.False(t, m.StateOperational())

	jitter.mu.Lock()
	jitter.bits = m.policy.SeedEntropyOSR(false)
	jitter.mu.Unlock()
	m.InitOps(ctx, nil)
	assert.True(t, m.StateFullySeeded())
	assert.True(t, m.StateMinSeeded())
	assert.True(t, m.StateOperational())
}

func TestInitOps_NoOpOnceOperational(t *testing.T) {
	m := newTestManager(t, []Source{newFakeSource("s", 512, 0)}, []DRNG{&fakeDRNG{name: "init"}})
	m.operational.Store(true)
	m.fullySeeded.Store(false)

	m.InitOps(context.Background(), nil)

	assert.True(t, m.StateOperational())
	assert.False(t, m.StateFullySeeded(), "InitOps must not touch any flag once already operational")
}

// --- invariant: at most one reseed in progress (L2 / scenario 3) ---

func TestPoolTryLock_OnlyOneWinner(t *testing.T) {
	m := newTestManager(t, nil, nil)

	var wg sync.WaitGroup
	wins := make(chan bool, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wins <- m.PoolTryLock()
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for w := range wins {
		if w {
			won++
		}
	}
	assert.Equal(t, 1, won, "exactly one concurrent PoolTryLock should succeed")
}

func TestAddEntropy_SkipsWhenGateHeld(t *testing.T) {
	jitter := newFakeSource("jitter", 4096, 0)
	jitter.bits = 4096
	aux := &fakeAux{newFakeSource("aux", 4096, 0)}
	node := &fakeDRNG{name: "init"}
	m := newTestManager(t, []Source{jitter, aux}, []DRNG{node})

	require.True(t, m.available.CompareAndSwap(false, true))
	require.True(t, m.PoolTryLock())

	calls := 0
	m.SetSeedWork(func(ctx context.Context, mm *Manager) { calls++ })

	m.AddEntropy(context.Background())
	assert.Equal(t, 0, calls, "a concurrent caller that loses the gate race must not run seed work")
}

// --- FillSeedBuffer refusal path (invariant I6) ---

func TestFillSeedBuffer_RefusesWhenFullySeededButStarved(t *testing.T) {
	jitter := newFakeSource("jitter", 4096, 0)
	aux := &fakeAux{newFakeSource("aux", 4096, 0)}
	m := newTestManager(t, []Source{jitter, aux}, []DRNG{&fakeDRNG{name: "init"}})
	m.fullySeeded.Store(true)

	buf := NewBuffer(2, 32)
	m.FillSeedBuffer(context.Background(), buf, 256)

	assert.Equal(t, Estimate(0), buf.EntropyRate())
	for _, slot := range buf.Slots {
		assert.Zero(t, slot.Bits)
	}
}

func TestFillSeedBuffer_DrawsInRegistryOrder(t *testing.T) {
	s1 := newFakeSource("s1", 4096, 0)
	s1.bits = 128
	s2 := newFakeSource("s2", 4096, 0)
	s2.bits = 200
	aux := &fakeAux{newFakeSource("aux", 4096, 0)}
	m := newTestManager(t, []Source{s1, s2, aux}, []DRNG{&fakeDRNG{name: "init"}})

	buf := NewBuffer(3, 32)
	m.FillSeedBuffer(context.Background(), buf, 1000)

	assert.Equal(t, Estimate(128), buf.Slots[0].Bits)
	assert.Equal(t, Estimate(200), buf.Slots[1].Bits)
}

// --- UnsetFullySeeded demotion asymmetry ---

func TestUnsetFullySeeded_InitNodeCascadesDemotion(t *testing.T) {
	initNode := &fakeDRNG{name: "init", seeded: true}
	other := &fakeDRNG{name: "other", seeded: true}
	m := newTestManager(t, []Source{newFakeSource("s", 512, 0)}, []DRNG{initNode, other})
	m.operational.Store(true)
	m.fullySeeded.Store(true)
	m.allNodesSeeded.Store(true)
	m.available.Store(false) // prevent AddEntropy's cascade call from racing ReseedWanted in this test

	m.UnsetFullySeeded(context.Background(), initNode)

	assert.False(t, m.StateOperational())
	assert.False(t, m.StateFullySeeded())
	assert.False(t, m.AllNodesSeeded())
	assert.False(t, initNode.FullySeeded())
}

func TestUnsetFullySeeded_OtherNodeDoesNotCascade(t *testing.T) {
	initNode := &fakeDRNG{name: "init", seeded: true}
	other := &fakeDRNG{name: "other", seeded: true}
	m := newTestManager(t, []Source{newFakeSource("s", 512, 0)}, []DRNG{initNode, other})
	m.operational.Store(true)
	m.fullySeeded.Store(true)
	m.allNodesSeeded.Store(true)

	m.UnsetFullySeeded(context.Background(), other)

	assert.True(t, m.StateOperational(), "demoting a non-init node must not demote the manager")
	assert.True(t, m.StateFullySeeded())
	assert.False(t, other.FullySeeded())
	assert.False(t, m.AllNodesSeeded(), "all_nodes_seeded still clears regardless of which node demoted")
}

// --- ResetState: clears every seed-level flag and resets each source ---

func TestResetState_ClearsFlagsAndCallsSourceReset(t *testing.T) {
	s := newFakeSource("s", 512, 0)
	m := newTestManager(t, []Source{s}, []DRNG{&fakeDRNG{name: "init"}})
	m.operational.Store(true)
	m.fullySeeded.Store(true)
	m.minSeeded.Store(true)
	m.allNodesSeeded.Store(true)

	m.ResetState()

	assert.False(t, m.StateOperational())
	assert.False(t, m.StateFullySeeded())
	assert.False(t, m.StateMinSeeded())
	assert.False(t, m.AllNodesSeeded())
	assert.Equal(t, 1, s.resetN)
}

// --- Lifecycle: Initialize short-circuits, Finalize aggregates ---

func TestInitialize_ShortCircuitsOnFirstSourceFailure(t *testing.T) {
	good := newFakeSource("good", 512, 0)
	bad := newFakeSource("bad", 512, 0)
	bad.initErr = assert.AnError
	never := newFakeSource("never", 512, 0)

	m := newTestManager(t, []Source{good, bad, never}, []DRNG{&fakeDRNG{name: "init"}})

	err := m.Initialize(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceInitFailure)
	assert.Equal(t, 1, good.initN)
	assert.Equal(t, 1, bad.initN)
	assert.Equal(t, 0, never.initN, "a source after the failing one must never be initialized")
}

func TestFinalize_AggregatesAllSourceErrorsWithoutShortCircuit(t *testing.T) {
	s1 := newFakeSource("s1", 512, 0)
	s1.finiErr = assert.AnError
	s2 := newFakeSource("s2", 512, 0)
	s2.finiErr = assert.AnError
	s3 := newFakeSource("s3", 512, 0)

	m := newTestManager(t, []Source{s1, s2, s3}, []DRNG{&fakeDRNG{name: "init"}})

	err := m.Finalize()

	require.Error(t, err)
	assert.Equal(t, 1, s1.finiN)
	assert.Equal(t, 1, s2.finiN)
	assert.Equal(t, 1, s3.finiN, "every source's Fini must run even after earlier ones failed")
	assert.True(t, m.terminate.Load())
}

func TestInitialize_InjectsUncreditedBootstrapSeed(t *testing.T) {
	aux := &fakeAux{newFakeSource("aux", 512, 0)}
	m := newTestManager(t, []Source{aux}, []DRNG{&fakeDRNG{name: "init"}})

	require.NoError(t, m.Initialize(context.Background()))

	assert.Zero(t, aux.CurrEntropy(0), "bootstrap seed must not be credited with any entropy")
	assert.True(t, m.available.Load())
}

func TestInitialize_RejectsDoubleInitialize(t *testing.T) {
	aux := &fakeAux{newFakeSource("aux", 512, 0)}
	m := newTestManager(t, []Source{aux}, []DRNG{&fakeDRNG{name: "init"}})

	require.NoError(t, m.Initialize(context.Background()))
	err := m.Initialize(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyAllocated)
}

func TestInitialize_RejectsEmptyRegistry(t *testing.T) {
	m := newTestManager(t, nil, []DRNG{&fakeDRNG{name: "init"}})

	err := m.Initialize(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoSources)
}

// --- End-to-end scenario: accumulate across sources to full seeding ---

func TestScenario_AccumulateToOperational(t *testing.T) {
	jitter := newFakeSource("jitter", 4096, 0)
	sched := newFakeSource("sched", 4096, 0)
	aux := &fakeAux{newFakeSource("aux", 4096, 0)}
	node := &fakeDRNG{name: "init"}
	m := newTestManager(t, []Source{jitter, sched, aux}, []DRNG{node})

	require.NoError(t, m.Initialize(context.Background()))

	jitter.mu.Lock()
	jitter.bits = 200
	jitter.mu.Unlock()
	sched.mu.Lock()
	sched.bits = 200
	sched.mu.Unlock()

	ctx := context.Background()
	m.AddEntropy(ctx)

	deadline := time.Now().Add(time.Second)
	for !m.StateOperational() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	assert.True(t, m.StateOperational())
	assert.True(t, m.StateFullySeeded())
	assert.True(t, m.StateMinSeeded())
	assert.Equal(t, 1, node.reseeds)
}

// --- Wait queue correctness ---

func TestWaitQueue_WaitForReturnsOnPredicateTrue(t *testing.T) {
	wq := NewWaitQueue()
	ready := false

	done := make(chan bool, 1)
	go func() {
		done <- wq.WaitFor(context.Background(), func() bool { return ready })
	}()

	time.Sleep(10 * time.Millisecond)
	ready = true
	wq.WakeAll()

	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("WaitFor did not return after WakeAll")
	}
}

func TestWaitQueue_WaitForReturnsFalseOnCancel(t *testing.T) {
	wq := NewWaitQueue()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan bool, 1)
	go func() {
		done <- wq.WaitFor(ctx, func() bool { return false })
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("WaitFor did not return after context cancellation")
	}
}

// --- SetWriteWakeupBits clamping ---

func TestSetWriteWakeupBits_RejectsZeroAndClampsToMax(t *testing.T) {
	m := newTestManager(t, nil, nil)

	before := m.GetWriteWakeupBits()
	m.SetWriteWakeupBits(0)
	assert.Equal(t, before, m.GetWriteWakeupBits(), "zero must be rejected, leaving the prior value")

	max := m.policy.ReduceByOSR(m.policy.DigestSize)
	m.SetWriteWakeupBits(max + 1000)
	assert.Equal(t, max, m.GetWriteWakeupBits())
}

// --- Accountant pure math ---

func TestAccountant_AvailEntropySumsAcrossSources(t *testing.T) {
	s1 := newFakeSource("s1", 512, 0)
	s1.bits = 50
	s2 := newFakeSource("s2", 512, 0)
	s2.bits = 70
	reg := NewRegistry([]Source{s1, s2})
	a := NewAccountant(reg, DefaultPolicy())

	assert.Equal(t, Estimate(120), a.AvailEntropy(true))
}

func TestPolicy_SeedEntropyOSR_OversamplesWhileNotAllNodesSeeded(t *testing.T) {
	p := DefaultPolicy()
	assert.Greater(t, p.SeedEntropyOSR(false), p.SeedEntropyOSR(true))
}
