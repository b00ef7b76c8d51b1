package entropy

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// StatusPublisher is the manager's outward notification hook, satisfied
// by internal/status's Prometheus publisher. It is optional: a nil
// publisher simply means nobody is watching.
type StatusPublisher interface {
	SetOperational(bool)
}

// Manager is the entropy source manager: it owns the registry, the
// entropy accountant, the seed-level state machine flags, the reseed
// gate, and the two wait queues, and coordinates them the way
// esdm_es_mgr_cb does in the original. One Manager serves one daemon
// instance.
type Manager struct {
	registry   *Registry
	accountant *Accountant
	policy     Policy

	// Nodes are the per-NUMA-node DRNG collaborators. Nodes[0] is always
	// the init instance consulted by UnsetFullySeeded's cascade rule.
	Nodes []DRNG

	initWait   *WaitQueue
	writerWait *WaitQueue

	operational      atomic.Bool
	fullySeeded      atomic.Bool
	minSeeded        atomic.Bool
	allNodesSeeded   atomic.Bool
	available        atomic.Bool
	terminate        atomic.Bool
	reseedInProgress atomic.Bool

	bootEntropyThresh atomic.Uint32
	writeWakeupBits   atomic.Uint32

	status StatusPublisher

	// bufferSlotBytes bounds how many bytes each source may contribute
	// to a seed buffer slot (see Slot.Data).
	bufferSlotBytes int

	monitorCfg MonitorConfig

	// cpuRandomWord, when set, returns one machine word from a
	// CPU-resident random instruction (e.g. RDRAND/RDSEED). It is
	// injected rather than hand-rolled here to keep per-arch assembly
	// confined to internal/sources (see DESIGN.md). A nil or
	// false-returning source falls back to the wall clock.
	cpuRandomWord func() (uint64, bool)

	// drngSeedWork implements the actual reseed work once the gate is
	// held; overridable for tests, defaults to defaultSeedWork.
	drngSeedWork func(ctx context.Context, m *Manager)

	// bgTasks tracks background goroutines (the startup monitor) Finalize
	// must join before sweeping source Fini hooks, so a source's Fini
	// never runs concurrently with its own Monitor.
	bgTasks sync.WaitGroup

	log *slog.Logger
}

// NewManager wires a registry, an accountant built over the same
// registry and policy, and a set of per-node DRNG collaborators into a
// ready-to-use Manager. cpuRandomWord and log may be nil.
func NewManager(registry *Registry, policy Policy, nodes []DRNG, status StatusPublisher, cpuRandomWord func() (uint64, bool), log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	m := &Manager{
		registry:        registry,
		accountant:      NewAccountant(registry, policy),
		policy:          policy,
		Nodes:           nodes,
		initWait:        NewWaitQueue(),
		writerWait:      NewWaitQueue(),
		status:          status,
		bufferSlotBytes: int(policy.DigestSize / 8),
		monitorCfg:      DefaultMonitorConfig(),
		cpuRandomWord:   cpuRandomWord,
		log:             log,
	}
	m.drngSeedWork = defaultSeedWork
	m.writeWakeupBits.Store(uint32(policy.ReduceByOSR(policy.DigestSize)))
	return m
}

func (m *Manager) logger() *slog.Logger { return m.log }

// initNode returns the designated init DRNG instance (Nodes[0]), or nil
// if none are configured.
func (m *Manager) initNode() DRNG {
	if len(m.Nodes) == 0 {
		return nil
	}
	return m.Nodes[0]
}

// AvailEntropy reports the entropy currently available across all
// registered sources, as the accountant computes it.
func (m *Manager) AvailEntropy(allNodesSeeded bool) Estimate {
	return m.accountant.AvailEntropy(allNodesSeeded)
}

// AvailEntropyAux reports entropy available from the auxiliary pool
// alone.
func (m *Manager) AvailEntropyAux(allNodesSeeded bool) Estimate {
	return m.accountant.AvailEntropyAux(allNodesSeeded)
}

// AvailPoolsizeAux reports the auxiliary pool's total capacity in bits.
func (m *Manager) AvailPoolsizeAux() Estimate {
	return m.accountant.AvailPoolsizeAux()
}

// SetMonitorConfig overrides the startup monitor's timing; intended for
// tests that can't wait 30 minutes.
func (m *Manager) SetMonitorConfig(cfg MonitorConfig) {
	m.monitorCfg = cfg
}

// SetSeedWork overrides the reseed work function; intended for tests
// that want to observe AddEntropy's gating without a real DRNG.
func (m *Manager) SetSeedWork(f func(ctx context.Context, m *Manager)) {
	m.drngSeedWork = f
}
