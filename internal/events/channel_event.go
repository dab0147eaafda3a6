package events

import "sync/atomic"

// ChannelEvent fans values out to listener channels. Notify never blocks: a listener
// whose channel is full misses that value and the miss is counted.
type ChannelEvent[T any] struct {
	registry[chan<- T, T]
	dropped atomic.Uint64
}

// NewChannelEvent creates an event stream. With replayLast, a new listener immediately
// receives the latest value if one was published.
func NewChannelEvent[T any](replayLast bool) *ChannelEvent[T] {
	return &ChannelEvent[T]{registry: newRegistry[chan<- T, T](replayLast)}
}

// Listen registers ch and returns a function that deregisters it. Calling it more than
// once is harmless.
func (e *ChannelEvent[T]) Listen(ch chan<- T) func() {
	if ch == nil {
		panic("events: channel cannot be nil")
	}
	remove, last, ok := e.add(ch)
	if ok {
		e.send(ch, last)
	}
	return remove
}

// Subscribe is Listen over a new channel with the given buffer size
func (e *ChannelEvent[T]) Subscribe(buffer int) (<-chan T, func()) {
	ch := make(chan T, max(buffer, 0))
	return ch, e.Listen(ch)
}

func (e *ChannelEvent[T]) Notify(value T) {
	for _, ch := range e.publish(value) {
		e.send(ch, value)
	}
}

func (e *ChannelEvent[T]) send(ch chan<- T, value T) {
	select {
	case ch <- value:
	default:
		e.dropped.Add(1)
	}
}

// Dropped returns how many deliveries were skipped because a listener was full
func (e *ChannelEvent[T]) Dropped() uint64 {
	return e.dropped.Load()
}
