package eventbus

import "sync"

// DefaultBuffer is the channel size handed to each subscriber.
const DefaultBuffer = 32

// TypedBus is a type-safe publish/subscribe bus for events of type T.
type TypedBus[T any] struct {
	mu       sync.RWMutex
	subs     []chan T
	handlers []handler[T]
	nextID   int
	closed   bool
}

// NewTyped creates a new TypedBus.
func NewTyped[T any]() *TypedBus[T] { return &TypedBus[T]{} }

type handler[T any] struct {
	id int
	fn func(T)
}

// Publish runs the registered handlers in order of registration, then
// offers the event to every channel subscriber without blocking.
func (b *TypedBus[T]) Publish(e T) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	hs := make([]handler[T], len(b.handlers))
	copy(hs, b.handlers)
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
	b.mu.RUnlock()

	// handlers may publish further events, so they run without the lock
	for _, h := range hs {
		h.fn(e)
	}
}

// Handle registers a synchronous handler and returns a function removing it.
func (b *TypedBus[T]) Handle(h func(T)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.handlers = append(b.handlers, handler[T]{id: id, fn: h})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, hd := range b.handlers {
			if hd.id == id {
				b.handlers = append(b.handlers[:i], b.handlers[i+1:]...)
				return
			}
		}
	}
}

// Subscribe registers a subscriber and returns its channel.
func (b *TypedBus[T]) Subscribe() <-chan T {
	ch := make(chan T, DefaultBuffer)
	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.subs = append(b.subs, ch)
	}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *TypedBus[T]) Unsubscribe(sub <-chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, ch := range b.subs {
		if ch == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			if !b.closed {
				close(ch)
			}
			return
		}
	}
}

// Close closes the bus and all subscriber channels.
func (b *TypedBus[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
	b.handlers = nil
	b.mu.Unlock()
}
