package transcript

import (
	"sync"
	"time"
)

// Mailbox is a single-slot, last-write-wins handoff between the audio
// producer and a polling consumer. Publish never blocks; an unread value is
// simply replaced.
type Mailbox struct {
	mu     sync.Mutex
	slot   *Result
	closed bool

	ready chan struct{} // cap 1, signalled on publish
	done  chan struct{}
}

func NewMailbox() *Mailbox {
	return &Mailbox{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Publish stores r, replacing any unread value, and reports whether an
// unread value was discarded. Publishing to a closed Mailbox is a no-op.
func (m *Mailbox) Publish(r Result) (overwrote bool) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	overwrote = m.slot != nil
	m.slot = &r
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
	return overwrote
}

// TryTake returns and clears the current value, waiting up to timeout for
// one to arrive. A timeout <= 0 checks once without waiting.
func (m *Mailbox) TryTake(timeout time.Duration) (Result, bool) {
	if r, ok := m.take(); ok || timeout <= 0 {
		return r, ok
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-m.ready:
			// The token may be stale if an earlier take already drained
			// the slot; keep waiting in that case.
			if r, ok := m.take(); ok {
				return r, true
			}
		case <-timer.C:
			return m.take()
		case <-m.done:
			return Result{}, false
		}
	}
}

func (m *Mailbox) take() (Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slot == nil || m.closed {
		return Result{}, false
	}
	r := *m.slot
	m.slot = nil
	return r, true
}

// Close drops any unread value and wakes waiting consumers. Safe to call
// more than once.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.slot = nil
	close(m.done)
}

// Closed reports whether Close has been called.
func (m *Mailbox) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
