package events

import "sync"

// Buffer accumulates events raised inside a single scheduling transaction.
// It is owned by the transaction object and is never shared across
// transactions; callers append via Add and the transaction flushes the
// whole buffer to a Publisher only after its store commit succeeds.
type Buffer struct {
	mu     sync.Mutex
	events []Event
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Add appends an event. Safe to call from the transaction's own goroutine;
// the mutex exists only because a future caller may fan out validator work
// across goroutines within one transaction.
func (b *Buffer) Add(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, evt)
}

// Drain returns and clears the buffered events. Called exactly once, right
// after commit.
func (b *Buffer) Drain() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.events
	b.events = nil
	return out
}
