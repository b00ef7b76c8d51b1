package entropy

import (
	"context"
	"sync"
)

// WaitQueue pairs a mutex with a condition variable, matching the
// original's thread_wait_queue (common/threading_support.h):
// wake_one/wake_all don't need the mutex, but WaitFor's predicate must
// be evaluated while holding it, and is re-checked after every wakeup to
// defend against spurious wakeups.
type WaitQueue struct {
	mu sync.Mutex
	cv *sync.Cond
}

// NewWaitQueue constructs a ready-to-use wait queue.
func NewWaitQueue() *WaitQueue {
	wq := &WaitQueue{}
	wq.cv = sync.NewCond(&wq.mu)
	return wq
}

// WakeOne wakes a single waiter, if any.
func (wq *WaitQueue) WakeOne() { wq.cv.Signal() }

// WakeAll wakes every current waiter.
func (wq *WaitQueue) WakeAll() { wq.cv.Broadcast() }

// WaitFor blocks until pred() is true or ctx is done, re-evaluating pred
// after every wakeup. Returns false if ctx was cancelled first.
func (wq *WaitQueue) WaitFor(ctx context.Context, pred func() bool) bool {
	done := make(chan struct{})
	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				// Nudge the waiter loop so it notices cancellation.
				wq.cv.Broadcast()
			case <-done:
			}
		}()
		defer close(done)
	}

	wq.mu.Lock()
	defer wq.mu.Unlock()
	for !pred() {
		if ctx != nil && ctx.Err() != nil {
			return false
		}
		wq.cv.Wait()
	}
	return true
}

// GetWriteWakeupBits returns the configured write-wakeup threshold.
func (m *Manager) GetWriteWakeupBits() Estimate {
	return Estimate(m.writeWakeupBits.Load())
}

// SetWriteWakeupBits clamps v to reduce_by_osr(digest size) and rejects
// zero (a zero threshold would never wake writers).
func (m *Manager) SetWriteWakeupBits(v Estimate) {
	if v == 0 {
		return
	}
	max := m.policy.ReduceByOSR(m.policy.DigestSize)
	if v > max {
		v = max
	}
	m.writeWakeupBits.Store(uint32(v))
}
