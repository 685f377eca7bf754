// Package hub is a small publish/subscribe primitive keyed by event name.
// The isolated execution context client dispatches every incoming message
// through a Hub, once under the message type and once under its id.
package hub

import "sync"

// Handler is a registration returned by On. Its pointer identity is what Off
// compares against, since Go funcs are not comparable.
type Handler[T any] struct {
	fn func(T)
}

// Hub maps event names to insertion-ordered handler lists.
type Hub[T any] struct {
	mu       sync.Mutex
	handlers map[string][]*Handler[T]
}

func New[T any]() *Hub[T] {
	return &Hub[T]{handlers: make(map[string][]*Handler[T])}
}

// On appends fn to the handlers of event. Registering the same fn twice yields
// two independent registrations that both fire.
func (h *Hub[T]) On(event string, fn func(T)) *Handler[T] {
	reg := &Handler[T]{fn: fn}
	h.mu.Lock()
	h.handlers[event] = append(h.handlers[event], reg)
	h.mu.Unlock()
	return reg
}

// Off removes the first registration of handler under event. When the list
// becomes empty the event key is dropped.
func (h *Hub[T]) Off(event string, handler *Handler[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()

	list, ok := h.handlers[event]
	if !ok {
		return
	}
	for i, reg := range list {
		if reg == handler {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(h.handlers, event)
		return
	}
	h.handlers[event] = list
}

// Emit invokes every handler of event in registration order. Handlers run on
// the caller's goroutine against a snapshot, so they may call On or Off.
func (h *Hub[T]) Emit(event string, data T) {
	h.mu.Lock()
	list := append([]*Handler[T](nil), h.handlers[event]...)
	h.mu.Unlock()

	for _, reg := range list {
		reg.fn(data)
	}
}

// Has reports whether any handler is registered for event.
func (h *Hub[T]) Has(event string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.handlers[event]
	return ok
}
