// Package stream provides an observable value with an explicit
// subscribe/unsubscribe lifecycle.
//
// It backs the session, profile, progress and batch feeds: each holds a
// current value, pushes every change to its listeners, and hands every new
// subscriber the current value immediately so late subscribers never start
// blank.
package stream

import "sync"

// Value holds a current value of type T and the listeners observing it.
// The zero value is not usable; create one with NewValue.
type Value[T any] struct {
	// notifyMu serializes Set and Subscribe so listeners observe changes in
	// order and a subscriber cannot miss an update that races its Subscribe.
	notifyMu sync.Mutex

	mu        sync.Mutex
	current   T
	nextID    int
	listeners map[int]func(T)
}

// NewValue creates a Value holding initial.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{
		current:   initial,
		listeners: make(map[int]func(T)),
	}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Set replaces the current value and notifies every listener.
// Listeners must not call Set on the same Value.
func (v *Value[T]) Set(x T) {
	v.notifyMu.Lock()
	defer v.notifyMu.Unlock()

	v.mu.Lock()
	v.current = x
	fns := make([]func(T), 0, len(v.listeners))
	for _, fn := range v.listeners {
		fns = append(fns, fn)
	}
	v.mu.Unlock()

	for _, fn := range fns {
		fn(x)
	}
}

// Update applies fn to a copy of the current value and stores the result.
func (v *Value[T]) Update(fn func(T) T) {
	v.Set(fn(v.Get()))
}

// Subscribe registers fn and calls it once with the current value.
// The returned function unsubscribes; calling it more than once is a no-op.
func (v *Value[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	v.notifyMu.Lock()
	defer v.notifyMu.Unlock()

	v.mu.Lock()
	id := v.nextID
	v.nextID++
	v.listeners[id] = fn
	current := v.current
	v.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			v.mu.Lock()
			delete(v.listeners, id)
			v.mu.Unlock()
		})
	}
}

// Listeners returns the number of active subscriptions.
func (v *Value[T]) Listeners() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.listeners)
}
