// Package events provides synchronous, instance-scoped publish/subscribe channels.
//
// A Signal delivers every emitted value to its handlers in the order they
// connected, before Emit returns. There is no queue and no global bus: each
// emitting object owns its signals and each subscriber holds the
// Subscription it needs to disconnect.
package events

// Subscription identifies a connected handler.
type Subscription uint64

type handlerEntry[T any] struct {
	id      Subscription
	handler func(T)
}

// Signal is a typed event channel. The zero value is ready to use.
type Signal[T any] struct {
	handlers []handlerEntry[T]
	nextID   Subscription
}

// Connect registers handler and returns its subscription.
func (s *Signal[T]) Connect(handler func(T)) Subscription {
	s.nextID++
	s.handlers = append(s.handlers, handlerEntry[T]{id: s.nextID, handler: handler})
	return s.nextID
}

// Disconnect removes a handler. Unknown subscriptions are ignored.
func (s *Signal[T]) Disconnect(sub Subscription) {
	for i, h := range s.handlers {
		if h.id == sub {
			s.handlers = append(s.handlers[:i:i], s.handlers[i+1:]...)
			return
		}
	}
}

// Emit calls every handler with v. Handlers connected or disconnected while
// Emit runs take effect from the next Emit.
func (s *Signal[T]) Emit(v T) {
	handlers := s.handlers
	for _, h := range handlers {
		h.handler(v)
	}
}

// Len returns the number of connected handlers.
func (s *Signal[T]) Len() int {
	return len(s.handlers)
}
