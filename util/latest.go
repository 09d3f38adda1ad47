// Package util holds small concurrency helpers shared between the node's
// scheduler goroutine and the terminal monitor.
package util

import (
	"maps"
	"sync"
)

// Latest keeps the most recent value of something and signals changes
// without ever blocking the writer. A reader that falls behind only sees
// the newest value.
type Latest[T any] struct {
	mu      sync.Mutex
	value   T
	changed chan struct{}
}

// NewLatest returns a Latest holding initial with no change pending.
func NewLatest[T any](initial T) *Latest[T] {
	return &Latest[T]{
		value:   initial,
		changed: make(chan struct{}, 1),
	}
}

// Set stores v and marks a change.
func (l *Latest[T]) Set(v T) {
	l.mu.Lock()
	l.value = v
	l.mu.Unlock()

	select {
	case l.changed <- struct{}{}:
	default:
	}
}

// Get returns the current value.
func (l *Latest[T]) Get() T {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value
}

// Changed delivers one token per burst of Set calls.
func (l *Latest[T]) Changed() <-chan struct{} {
	return l.changed
}

// Pending reports whether a change has not been picked up yet.
func (l *Latest[T]) Pending() bool {
	return len(l.changed) > 0
}

// Mailbox collects keyed values between two drains. A later Put for the
// same key replaces the earlier one.
type Mailbox[K comparable, V any] struct {
	mu      sync.Mutex
	values  map[K]V
	changed chan struct{}
}

func NewMailbox[K comparable, V any]() *Mailbox[K, V] {
	return &Mailbox[K, V]{
		values:  make(map[K]V),
		changed: make(chan struct{}, 1),
	}
}

// Put stores v under k and marks a change.
func (m *Mailbox[K, V]) Put(k K, v V) {
	m.mu.Lock()
	m.values[k] = v
	m.mu.Unlock()

	select {
	case m.changed <- struct{}{}:
	default:
	}
}

// Drain returns everything put since the last drain and empties the box.
func (m *Mailbox[K, V]) Drain() map[K]V {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := maps.Clone(m.values)
	clear(m.values)
	select {
	case <-m.changed:
	default:
	}
	return out
}

// Changed delivers one token per burst of Put calls.
func (m *Mailbox[K, V]) Changed() <-chan struct{} {
	return m.changed
}
