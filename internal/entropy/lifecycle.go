package entropy

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

// AuxSource is the auxiliary pool's extended capability: besides the
// uniform Source surface, it accepts externally-injected material (the
// bootstrap seed, and later, explicit add-entropy calls from outside
// the manager). The auxiliary source is always the last registry entry.
type AuxSource interface {
	Source
	// InsertAux mixes data into the pool, crediting entropyBits (which
	// may legitimately be 0 — the bootstrap seed is never trusted; see
	// DESIGN NOTES "Bootstrap seed quality").
	InsertAux(data []byte, entropyBits Estimate)
}

// bootstrapWords is how many machine words make up the bootstrap seed
// record.
const bootstrapWords = 8

// Initialize performs the manager lifecycle's one-time setup: sets the
// initial boot threshold, initializes every source that provides an
// Init hook (short-circuiting on the first failure), and injects an
// uncredited bootstrap seed into the auxiliary pool so it never starts
// from a zero state. Calling it again on an already-live manager, or
// against an empty registry, is reported rather than attempted.
func (m *Manager) Initialize(ctx context.Context) error {
	if m.available.Load() {
		return ErrAlreadyAllocated
	}
	if m.registry.Len() == 0 {
		return ErrNoSources
	}

	m.logger().Info("initialize entropy source manager")
	m.bootEntropyThresh.Store(uint32(m.policy.SeedEntropyOSR(false)))

	if err := m.registry.ForEach(func(_ int, s Source) error {
		m.logger().Debug("initialize source", "name", s.Name())
		if err := s.Init(); err != nil {
			return fmt.Errorf("%w: source %q: %v", ErrSourceInitFailure, s.Name(), err)
		}
		return nil
	}); err != nil {
		return err
	}

	m.injectBootstrapSeed()
	m.available.Store(true)
	return nil
}

// injectBootstrapSeed builds an uncredited seed record from a CPU-random
// instruction where available, falling back to high-resolution
// wall-clock nanoseconds, and inserts it into the auxiliary pool. The
// record is zeroized immediately after insertion.
func (m *Manager) injectBootstrapSeed() {
	idx := m.registry.AuxIndex()
	if idx < 0 {
		return
	}
	s, err := m.registry.Get(idx)
	if err != nil {
		return
	}
	aux, ok := s.(AuxSource)
	if !ok {
		return
	}

	var words [bootstrapWords]uint64
	for i := range words {
		if m.cpuRandomWord != nil {
			if v, ok := m.cpuRandomWord(); ok {
				words[i] = v
				continue
			}
		}
		words[i] = uint64(time.Now().UnixNano())
	}

	buf := make([]byte, 8+len(words)*8)
	putUint64(buf[0:8], uint64(time.Now().Unix()))
	for i, w := range words {
		putUint64(buf[8+i*8:16+i*8], w)
	}

	aux.InsertAux(buf, 0)

	for i := range buf {
		buf[i] = 0
	}
	for i := range words {
		words[i] = 0
	}
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// Finalize sets the termination flag so background loops (the startup
// monitor) exit on their next poll, joins those goroutines so none is
// still calling a source's Monitor when Fini runs on the same source,
// then calls Fini on every source that provides one. Unlike Initialize,
// a failing Fini does not short-circuit the remaining sources — every
// source gets a chance to release its resources, and the errors are
// aggregated.
func (m *Manager) Finalize() error {
	m.terminate.Store(true)
	m.available.Store(false)
	m.bgTasks.Wait()

	var merr *multierror.Error
	_ = m.registry.ForEach(func(_ int, s Source) error {
		if err := s.Fini(); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("source %q: %w", s.Name(), err))
		}
		return nil
	})
	return merr.ErrorOrNil()
}
