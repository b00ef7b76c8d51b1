package entropy

import (
	"context"
	"time"
)

// MonitorConfig controls the bounded startup monitor.
type MonitorConfig struct {
	// Duration bounds total wall-clock time the monitor runs before
	// giving up (default ~30 minutes).
	Duration time.Duration
	// Quantum is the sleep interval between polls (default ~0.5s).
	Quantum time.Duration
}

// DefaultMonitorConfig returns the recommended startup-monitor defaults.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Duration: 30 * time.Minute,
		Quantum:  500 * time.Millisecond,
	}
}

// MonitorInitialize starts the bounded startup monitor on its own
// goroutine and returns immediately. The monitor polls every registered
// source's Monitor hook once per quantum, re-entering InitOps(nil) to
// re-evaluate seed state, until all_nodes_seeded, m.terminate is set, ctx
// is cancelled, or the configured duration elapses. Failure to reach
// full seeding by the deadline is not fatal — it logs a warning and
// exits; later AddEntropy calls can still promote the state.
func (m *Manager) MonitorInitialize(ctx context.Context) {
	cfg := m.monitorCfg
	m.logger().Debug("full entropy monitor started")

	m.bgTasks.Add(1)
	go func() {
		defer m.bgTasks.Done()
		ticker := time.NewTicker(cfg.Quantum)
		defer ticker.Stop()

		deadline := time.Now().Add(cfg.Duration)

		for {
			if m.terminate.Load() {
				return
			}
			if m.allNodesSeeded.Load() {
				m.logger().Info("stopping entropy monitor: all nodes seeded")
				return
			}
			if !time.Now().Before(deadline) {
				m.logger().Warn("full entropy monitor terminated: did not collect sufficient entropy")
				return
			}

			_ = m.registry.ForEach(func(_ int, s Source) error {
				s.Monitor()
				return nil
			})
			m.InitOps(ctx, nil)

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}
