// Package status publishes the manager's seed-level state as Prometheus
// metrics using the ecosystem's standard instrumentation client.
package status

import "github.com/prometheus/client_golang/prometheus"

// Publisher implements entropy.StatusPublisher and exposes the
// manager's state as a small set of gauges/counters.
type Publisher struct {
	operational       prometheus.Gauge
	fullySeeded       prometheus.Gauge
	minSeeded         prometheus.Gauge
	bootEntropyThresh prometheus.Gauge
	reseedTotal       prometheus.Counter
}

// NewPublisher registers its metrics against reg and returns a ready
// Publisher. Pass prometheus.NewRegistry() in tests to avoid colliding
// with the global default registry.
func NewPublisher(reg prometheus.Registerer) *Publisher {
	p := &Publisher{
		operational: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "esdm_operational",
			Help: "1 if the entropy source manager is fully operational.",
		}),
		fullySeeded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "esdm_fully_seeded",
			Help: "1 if the manager is fully seeded.",
		}),
		minSeeded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "esdm_min_seeded",
			Help: "1 if the manager reached minimal seeding.",
		}),
		bootEntropyThresh: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "esdm_boot_entropy_thresh_bits",
			Help: "Current reseed trigger threshold, in bits.",
		}),
		reseedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "esdm_reseed_total",
			Help: "Total number of reseed attempts the gate let through.",
		}),
	}
	reg.MustRegister(p.operational, p.fullySeeded, p.minSeeded, p.bootEntropyThresh, p.reseedTotal)
	return p
}

// SetOperational implements entropy.StatusPublisher.
func (p *Publisher) SetOperational(v bool) {
	p.operational.Set(boolToFloat(v))
}

// SetFullySeeded records the manager's fully-seeded flag.
func (p *Publisher) SetFullySeeded(v bool) {
	p.fullySeeded.Set(boolToFloat(v))
}

// SetMinSeeded records the manager's min-seeded flag.
func (p *Publisher) SetMinSeeded(v bool) {
	p.minSeeded.Set(boolToFloat(v))
}

// SetBootEntropyThresh records the current reseed trigger threshold.
func (p *Publisher) SetBootEntropyThresh(bits uint32) {
	p.bootEntropyThresh.Set(float64(bits))
}

// IncReseed increments the reseed-attempt counter.
func (p *Publisher) IncReseed() {
	p.reseedTotal.Inc()
}

func boolToFloat(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
