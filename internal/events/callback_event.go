package events

// CallbackEvent calls listeners synchronously on the publishing goroutine, in no particular
// order. Listeners must not block; the capture recorder taps raw frames this way.
type CallbackEvent[T any] struct {
	registry[func(T), T]
}

func NewCallbackEvent[T any](replayLast bool) *CallbackEvent[T] {
	return &CallbackEvent[T]{registry: newRegistry[func(T), T](replayLast)}
}

// Listen registers fn and returns a function that deregisters it
func (e *CallbackEvent[T]) Listen(fn func(T)) func() {
	if fn == nil {
		panic("events: callback cannot be nil")
	}
	remove, last, ok := e.add(fn)
	if ok {
		fn(last)
	}
	return remove
}

func (e *CallbackEvent[T]) Notify(value T) {
	for _, fn := range e.publish(value) {
		fn(value)
	}
}
