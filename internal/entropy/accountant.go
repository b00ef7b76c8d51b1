package entropy

// Policy holds the compile-time/config-time tunables the accountant
// computes against. All fields are bits unless noted, and all methods
// on Policy are pure and safe to call concurrently — the accountant
// never mutates state.
type Policy struct {
	// SecurityStrengthBits is the DRNG's target security strength.
	SecurityStrengthBits Estimate

	// SP80090CCompliant enables the oversampling regime of SP800-90C.
	SP80090CCompliant bool

	// SeedBufferInitAddBits is added to the entropy threshold while
	// SP800-90C compliant and not all nodes are seeded yet.
	SeedBufferInitAddBits Estimate

	// OversamplingRatioNum/Den express the oversampling ratio as a
	// rational multiplier (avoids floating point on a security-critical
	// path). E.g. 3/2 means "request 1.5x".
	OversamplingRatioNum uint64
	OversamplingRatioDen uint64

	// MinSeedEntropyBits, InitEntropyBits, FullSeedEntropyBits are the
	// three escalating thresholds driving InitOps. MinSeedEntropyBits
	// is conventionally fixed at 128, but kept configurable here so
	// tests can shrink it.
	MinSeedEntropyBits  Estimate
	InitEntropyBits     Estimate
	FullSeedEntropyBits Estimate

	// DigestSize is the DRNG's underlying digest size in bits, used by
	// the write-wakeup clamp.
	DigestSize Estimate
}

// DefaultPolicy returns the recommended production tunables.
func DefaultPolicy() Policy {
	return Policy{
		SecurityStrengthBits:   256,
		SP80090CCompliant:      true,
		SeedBufferInitAddBits:  128,
		OversamplingRatioNum:   3,
		OversamplingRatioDen:   2,
		MinSeedEntropyBits:     128,
		InitEntropyBits:        32,
		FullSeedEntropyBits:    256,
		DigestSize:             256,
	}
}

// RequiredEntropyThreshold is the per-source "threshold" argument passed
// to CurrEntropy: security strength, plus oversampling while compliant
// and not all nodes are seeded.
func (p Policy) RequiredEntropyThreshold(allNodesSeeded bool) Estimate {
	thresh := p.SecurityStrengthBits
	if p.SP80090CCompliant && !allNodesSeeded {
		thresh += p.SeedBufferInitAddBits
	}
	return thresh
}

// SeedEntropyOSR is the number of bits the manager demands for the next
// reseed trigger: the full-seed target, oversampled while not all nodes
// are seeded and SP800-90C compliance is on.
func (p Policy) SeedEntropyOSR(allNodesSeeded bool) Estimate {
	base := uint64(p.FullSeedEntropyBits)
	if p.SP80090CCompliant && !allNodesSeeded && p.OversamplingRatioDen != 0 {
		base = base * p.OversamplingRatioNum / p.OversamplingRatioDen
	}
	return Estimate(base)
}

// ReduceByOSR divides bits by the oversampling ratio — the inverse of
// SeedEntropyOSR's scaling, used to clamp write_wakeup_bits to a
// pre-oversampling figure.
func (p Policy) ReduceByOSR(bits Estimate) Estimate {
	if p.OversamplingRatioNum == 0 {
		return bits
	}
	return Estimate(uint64(bits) * p.OversamplingRatioDen / p.OversamplingRatioNum)
}

// FullySeededCheck reports whether collectedBits meets the oversampled
// full-seed target for the given all-nodes-seeded hint.
func (p Policy) FullySeededCheck(fullySeededHint bool, collectedBits Estimate) bool {
	return collectedBits >= p.SeedEntropyOSR(fullySeededHint)
}

// Accountant computes available entropy against a registry and policy.
// It holds no mutable state of its own.
type Accountant struct {
	registry *Registry
	policy   Policy
}

// NewAccountant binds a registry and policy together.
func NewAccountant(r *Registry, p Policy) *Accountant {
	return &Accountant{registry: r, policy: p}
}

// AvailEntropy sums CurrEntropy across every registered source, each
// queried with the current required threshold.
func (a *Accountant) AvailEntropy(allNodesSeeded bool) Estimate {
	thresh := a.policy.RequiredEntropyThreshold(allNodesSeeded)
	var total Estimate
	_ = a.registry.ForEach(func(_ int, s Source) error {
		total += s.CurrEntropy(thresh)
		return nil
	})
	return total
}

// AvailEntropyAux returns the auxiliary source's current entropy only.
func (a *Accountant) AvailEntropyAux(allNodesSeeded bool) Estimate {
	idx := a.registry.AuxIndex()
	if idx < 0 {
		return 0
	}
	thresh := a.policy.RequiredEntropyThreshold(allNodesSeeded)
	s, err := a.registry.Get(idx)
	if err != nil {
		return 0
	}
	return s.CurrEntropy(thresh)
}

// AvailPoolsizeAux returns the auxiliary source's maximum capacity.
func (a *Accountant) AvailPoolsizeAux() Estimate {
	idx := a.registry.AuxIndex()
	if idx < 0 {
		return 0
	}
	s, err := a.registry.Get(idx)
	if err != nil {
		return 0
	}
	return s.MaxEntropy()
}
