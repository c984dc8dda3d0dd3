package events

import (
	"sync"
)

// ChannelEvent fans values out to listener channels.
// Delivery never blocks: when a listener's buffer is full, its oldest queued
// value is dropped so the listener always ends up holding the newest one.
type ChannelEvent[T any] struct {
	mu         sync.Mutex
	channels   map[uint64]chan T
	nextID     uint64
	replayLast bool
	last       T
	hasLast    bool
	closed     bool
}

// NewChannelEvent creates a ChannelEvent.
// replayLast: new listeners immediately receive the most recent value, if any
func NewChannelEvent[T any](replayLast bool) *ChannelEvent[T] {
	return &ChannelEvent[T]{
		channels:   make(map[uint64]chan T),
		replayLast: replayLast,
	}
}

// Listen registers ch and returns its deregistration function.
// ch should be buffered; an unbuffered channel only receives values while its
// reader is already waiting.
func (e *ChannelEvent[T]) Listen(ch chan T) func() {
	if ch == nil {
		panic("channel cannot be nil")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return func() {}
	}
	id := e.nextID
	e.nextID++
	e.channels[id] = ch
	if e.replayLast && e.hasLast {
		offerLatest(ch, e.last)
	}

	return func() {
		e.mu.Lock()
		delete(e.channels, id)
		e.mu.Unlock()
	}
}

// Notify delivers value to every listener
func (e *ChannelEvent[T]) Notify(value T) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.last = value
	e.hasLast = true
	for _, ch := range e.channels {
		offerLatest(ch, value)
	}
}

// Last returns the most recent value passed to Notify
func (e *ChannelEvent[T]) Last() (T, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last, e.hasLast
}

// Close drops every listener; later Notify and Listen calls do nothing.
// Listener channels are not closed since the event does not own them.
func (e *ChannelEvent[T]) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	clear(e.channels)
}

// ListenerCount returns the current number of registered listeners
func (e *ChannelEvent[T]) ListenerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.channels)
}

// offerLatest sends without blocking, evicting one stale value if the buffer is full
func offerLatest[T any](ch chan T, value T) {
	select {
	case ch <- value:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- value:
	default:
		// a concurrent sender refilled it; theirs is at least as new
	}
}
