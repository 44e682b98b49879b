// Package mailbox is the single slot hand-off between the decoder (producer) and
// the foreground (consumer).
package mailbox

import "sync"

// Mailbox holds at most one received byte and its ready flag.
//
// It is not a queue: Put on a full mailbox overwrites the unread byte. The lost byte is
// only counted (Overruns), the consumer never sees it. Exactly one producer calls Put,
// any number of consumers may call TryReceive, only one of them gets the byte.
type Mailbox struct {
	mu    sync.Mutex
	value byte
	ready bool

	received uint64
	overruns uint64

	// notify gets a token whenever a byte is put.
	notify chan struct{}
}

// Stats is a snapshot of the mailbox counters.
type Stats struct {
	Ready    bool
	Received uint64
	Overruns uint64
}

// New initials an empty Mailbox.
func New() *Mailbox {
	return &Mailbox{notify: make(chan struct{}, 1)}
}

// Put stores b and sets the ready flag.
// It reports whether an unread byte was overwritten.
func (m *Mailbox) Put(b byte) bool {
	m.mu.Lock()
	overwritten := m.ready
	m.value = b
	m.ready = true
	m.received++
	if overwritten {
		m.overruns++
	}
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
	return overwritten
}

// TryReceive returns the stored byte and clears the ready flag.
// The bool is false if no byte is available.
func (m *Mailbox) TryReceive() (byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.ready {
		return 0, false
	}
	m.ready = false
	return m.value, true
}

// Ready returns a channel which gets a token after Put.
// A token may be stale, always check the result of TryReceive.
func (m *Mailbox) Ready() <-chan struct{} {
	return m.notify
}

// Reset clears the ready flag and the counters.
func (m *Mailbox) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.value = 0
	m.ready = false
	m.received = 0
	m.overruns = 0

	select {
	case <-m.notify:
	default:
	}
}

// Stats returns a snapshot of the mailbox counters.
func (m *Mailbox) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Stats{Ready: m.ready, Received: m.received, Overruns: m.overruns}
}
