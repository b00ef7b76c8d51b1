// Package sources implements the concrete entropy.Source collaborators:
// CPU jitter, simulated interrupt and scheduler timing, the kernel CSPRNG
// (with optional hardware-RNG and TPM enhancement), and the auxiliary
// pool that accepts externally-injected material.
package sources

import "sync"

// HealthStatus mirrors the health states a noise-derived source can be
// in.
type HealthStatus int

const (
	HealthUnknown HealthStatus = iota
	HealthHealthy
	HealthFailed
	HealthRecovering
)

// RepetitionCountTest implements NIST SP 800-90B section 4.4.1: detects
// a stuck-at fault where the same sample repeats too many times in a
// row.
type RepetitionCountTest struct {
	mu sync.Mutex

	cutoff int

	lastValue   byte
	repeatCount int
	status      HealthStatus
}

// NewRepetitionCountTest builds a test with the given cutoff. cutoff<=0
// falls back to the conservative default of 21 (alpha=2^-20, H=1).
func NewRepetitionCountTest(cutoff int) *RepetitionCountTest {
	if cutoff <= 0 {
		cutoff = 21
	}
	return &RepetitionCountTest{cutoff: cutoff, status: HealthUnknown}
}

func (t *RepetitionCountTest) Feed(b byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if b == t.lastValue {
		t.repeatCount++
		if t.repeatCount >= t.cutoff {
			t.status = HealthFailed
		}
	} else {
		t.lastValue = b
		t.repeatCount = 1
		if t.status == HealthFailed {
			t.status = HealthRecovering
		} else if t.status != HealthRecovering {
			t.status = HealthHealthy
		}
	}
}

func (t *RepetitionCountTest) Status() HealthStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *RepetitionCountTest) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.repeatCount = 0
	t.status = HealthUnknown
}

// AdaptiveProportionTest implements NIST SP 800-90B section 4.4.2:
// detects bias by bounding how often any single value may occur inside
// a sliding window.
type AdaptiveProportionTest struct {
	mu sync.Mutex

	windowSize int
	cutoff     int

	window     []byte
	windowPos  int
	windowFull bool
	counts     [256]int
	status     HealthStatus
}

// NewAdaptiveProportionTest builds a test over windowSize samples,
// failing when any byte value occurs cutoff or more times within the
// window. windowSize<=0 and cutoff<=0 fall back to W=512, C=325 (H=1,
// alpha=2^-20, 8-bit samples).
func NewAdaptiveProportionTest(windowSize, cutoff int) *AdaptiveProportionTest {
	if windowSize <= 0 {
		windowSize = 512
	}
	if cutoff <= 0 {
		cutoff = 325
	}
	return &AdaptiveProportionTest{
		windowSize: windowSize,
		cutoff:     cutoff,
		window:     make([]byte, windowSize),
		status:     HealthUnknown,
	}
}

func (t *AdaptiveProportionTest) Feed(b byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.windowFull {
		t.counts[t.window[t.windowPos]]--
	}
	t.window[t.windowPos] = b
	t.counts[b]++
	t.windowPos = (t.windowPos + 1) % t.windowSize
	if t.windowPos == 0 {
		t.windowFull = true
	}

	if !t.windowFull {
		return
	}
	maxCount := 0
	for _, c := range t.counts {
		if c > maxCount {
			maxCount = c
		}
	}
	if maxCount >= t.cutoff {
		t.status = HealthFailed
	} else if t.status == HealthFailed {
		t.status = HealthRecovering
	} else {
		t.status = HealthHealthy
	}
}

func (t *AdaptiveProportionTest) Status() HealthStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *AdaptiveProportionTest) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.window = make([]byte, t.windowSize)
	t.windowPos = 0
	t.windowFull = false
	t.counts = [256]int{}
	t.status = HealthUnknown
}
