package entropy

import (
	"context"
	"log/slog"
	"time"
)

// PoolTryLock attempts to acquire the reseed gate with a single atomic
// compare-and-swap. It never blocks: on contention it returns false
// immediately so the caller can skip rather than queue.
func (m *Manager) PoolTryLock() bool {
	return m.reseedInProgress.CompareAndSwap(false, true)
}

// PoolUnlock releases the reseed gate. Must be called by whichever
// caller's PoolTryLock succeeded.
func (m *Manager) PoolUnlock() {
	m.reseedInProgress.Store(false)
}

// ReseedWanted reports whether a reseed should be attempted: the
// manager must be available, not all nodes may yet be seeded, and
// available entropy must meet the current boot threshold.
func (m *Manager) ReseedWanted() bool {
	if !m.available.Load() {
		return false
	}
	if m.allNodesSeeded.Load() {
		return false
	}
	return m.accountant.AvailEntropy(m.allNodesSeeded.Load()) >= Estimate(m.bootEntropyThresh.Load())
}

// AddEntropy is the reseed trigger entry point. If ReseedWanted and the
// gate can be acquired, it delegates to the DRNG collaborator, which is
// expected to call back into FillSeedBuffer and finally PoolUnlock. A
// concurrent caller who loses the race returns immediately without
// touching any state.
func (m *Manager) AddEntropy(ctx context.Context) {
	if !m.ReseedWanted() {
		return
	}
	if !m.PoolTryLock() {
		return
	}
	m.drngSeedWork(ctx, m)
}

// FillSeedBuffer stamps buf.Now and asks each source, in registry order,
// for entropy into its slot. Only the gate holder may call this.
//
// If the manager is already fully seeded but available entropy has
// dropped below max(security strength, 128) bits, it refuses to draw:
// every slot is zeroed and writer waiters are woken so a later entropy
// arrival can retrigger, but the SLSM is left unchanged (invariant I6).
func (m *Manager) FillSeedBuffer(ctx context.Context, buf *Buffer, requestedBits Estimate) {
	buf.Now = time.Now()

	if m.fullySeeded.Load() {
		minRequired := m.policy.MinSeedEntropyBits
		if m.policy.SecurityStrengthBits > minRequired {
			minRequired = m.policy.SecurityStrengthBits
		}
		if m.accountant.AvailEntropy(m.allNodesSeeded.Load()) < minRequired {
			buf.Zeroize()
			m.writerWait.WakeAll()
			m.logger().Warn("refusing to draw seed buffer: insufficient entropy")
			return
		}
	}

	_ = m.registry.ForEach(func(i int, s Source) error {
		s.GetEnt(ctx, &buf.Slots[i], requestedBits, m.fullySeeded.Load())
		return nil
	})

	m.writerWait.WakeAll()
}

// EntropyRateEB returns the sum of per-slot credited bits in buf
// (invariant I4).
func (m *Manager) EntropyRateEB(buf *Buffer) Estimate {
	return buf.EntropyRate()
}

// defaultSeedWork is the manager's own drng_seed_work implementation: it
// fills a fresh seed buffer, hands it to every configured DRNG node,
// re-evaluates the SLSM, and releases the gate. Real deployments may
// override Manager.drngSeedWork (e.g. to route through an external
// DRNG collaborator process running in a separate security domain); the
// CLI and every test that does not call SetSeedWork use the default.
func defaultSeedWork(ctx context.Context, m *Manager) {
	defer m.PoolUnlock()

	buf := NewBuffer(m.registry.Len(), m.bufferSlotBytes)
	defer buf.Zeroize()

	requestedBits := m.policy.SeedEntropyOSR(m.allNodesSeeded.Load())
	m.FillSeedBuffer(ctx, buf, requestedBits)

	for _, node := range m.Nodes {
		if err := node.Reseed(ctx, buf); err != nil {
			m.logger().Error("drng reseed failed", slog.String("drng", node.Name()), slog.Any("error", err))
			continue
		}
	}

	m.InitOps(ctx, buf)

	if m.fullySeeded.Load() {
		allSeeded := true
		for _, node := range m.Nodes {
			if !node.FullySeeded() {
				allSeeded = false
				break
			}
		}
		m.allNodesSeeded.Store(allSeeded)
	}
}
