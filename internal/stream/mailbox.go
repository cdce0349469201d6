package stream

import "sync"

// Mailbox is an unbounded FIFO that lets listener callbacks hand events to a
// single consumer goroutine without ever blocking the producer.
type Mailbox[T any] struct {
	mu     sync.Mutex
	items  []T
	signal chan struct{}
}

func NewMailbox[T any]() *Mailbox[T] {
	return &Mailbox[T]{signal: make(chan struct{}, 1)}
}

// Put enqueues x.
func (m *Mailbox[T]) Put(x T) {
	m.mu.Lock()
	m.items = append(m.items, x)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// Ready is signalled whenever items may be waiting.
func (m *Mailbox[T]) Ready() <-chan struct{} {
	return m.signal
}

// Drain removes and returns everything queued so far, oldest first.
func (m *Mailbox[T]) Drain() []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.items
	m.items = nil
	return items
}
