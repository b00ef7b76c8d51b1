package entropy

import (
	"context"
	"log/slog"
)

// InitOps is the seed-level state machine's transition function. It computes
// seed_bits from buf if provided, else by polling every source, and
// applies at most one promotion per call, in the documented order:
//
//  1. already operational -> no-op
//  2. already fully seeded -> promote to operational
//  3. seed_bits meets the oversampled full-seed target -> fully seeded (+ operational)
//  4. not min seeded and seed_bits >= MinSeedEntropyBits -> min seeded
//  5. not min seeded and seed_bits >= InitEntropyBits -> tighten the next threshold
func (m *Manager) InitOps(ctx context.Context, buf *Buffer) {
	if m.operational.Load() {
		return
	}

	allSeeded := m.allNodesSeeded.Load()
	requestedBits := m.policy.SeedEntropyOSR(allSeeded)

	var seedBits Estimate
	if buf != nil {
		seedBits = buf.EntropyRate()
	} else {
		thresh := m.policy.RequiredEntropyThreshold(allSeeded)
		_ = m.registry.ForEach(func(_ int, s Source) error {
			seedBits += s.CurrEntropy(thresh)
			return nil
		})
	}

	switch {
	case m.fullySeeded.Load():
		m.setOperational(requestedBits)

	case m.policy.FullySeededCheck(allSeeded, seedBits):
		m.fullySeeded.Store(true)
		m.minSeeded.Store(true)
		m.setOperational(requestedBits)
		m.logger().Info("fully seeded", slog.Uint64("seed_bits", uint64(seedBits)))

	case !m.minSeeded.Load() && seedBits >= m.policy.MinSeedEntropyBits:
		m.minSeeded.Store(true)
		m.bootEntropyThresh.Store(uint32(m.policy.SeedEntropyOSR(allSeeded)))
		m.initWait.WakeAll()
		m.logger().Info("minimally seeded", slog.Uint64("seed_bits", uint64(seedBits)))

	case !m.minSeeded.Load() && seedBits >= m.policy.InitEntropyBits:
		// Tighten the next trigger threshold; no state change yet.
		m.bootEntropyThresh.Store(uint32(m.policy.MinSeedEntropyBits))
		m.logger().Info("initial entropy level", slog.Uint64("seed_bits", uint64(seedBits)))
	}
}

// setOperational promotes the manager to operational, wakes init
// waiters, and notifies the status collaborator. Internal helper shared
// by InitOps's two promoting branches.
func (m *Manager) setOperational(requestedBits Estimate) {
	m.operational.Store(true)
	m.bootEntropyThresh.Store(uint32(requestedBits))
	m.initWait.WakeAll()
	if m.status != nil {
		m.status.SetOperational(true)
	}
	m.logger().Info("esdm fully operational")
}

// UnsetFullySeeded demotes a single DRNG node. Every demotion clears
// that node's own FullySeeded flag and the manager's all_nodes_seeded
// flag. Only when the node is the init instance and the manager is
// currently operational does the demotion cascade further: the manager
// drops to non-operational/non-fully-seeded, the status collaborator is
// notified, and a reseed is requested. Demoting any other node leaves
// the manager's operational and fully-seeded flags untouched.
func (m *Manager) UnsetFullySeeded(ctx context.Context, node DRNG) {
	node.SetFullySeeded(false)
	m.allNodesSeeded.Store(false)

	if node == m.initNode() && m.operational.Load() {
		m.logger().Debug("esdm set to non-operational")
		m.operational.Store(false)
		m.fullySeeded.Store(false)

		if m.status != nil {
			m.status.SetOperational(false)
		}

		m.AddEntropy(ctx)
	}
}

// ResetState calls Reset on every source that provides one and clears
// all three seed-level booleans (and all_nodes_seeded). Entropy bytes
// already resident in source pools are left alone — they cannot harm
// and may help the next reseed.
func (m *Manager) ResetState() {
	_ = m.registry.ForEach(func(_ int, s Source) error {
		s.Reset()
		return nil
	})
	m.operational.Store(false)
	m.fullySeeded.Store(false)
	m.minSeeded.Store(false)
	m.allNodesSeeded.Store(false)
	m.logger().Debug("reset esdm state")
}

// StateOperational reports whether the DRNG reached full security
// strength and is fit for use.
func (m *Manager) StateOperational() bool { return m.operational.Load() }

// StateFullySeeded reports whether the manager is fully seeded.
func (m *Manager) StateFullySeeded() bool { return m.fullySeeded.Load() }

// StateMinSeeded reports whether the manager reached minimal seeding.
func (m *Manager) StateMinSeeded() bool { return m.minSeeded.Load() }

// AllNodesSeeded reports whether every per-node DRNG instance is fully
// seeded.
func (m *Manager) AllNodesSeeded() bool { return m.allNodesSeeded.Load() }
