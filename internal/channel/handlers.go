package channel

import "sync"

// handlers stores the callbacks shared by every Channel implementation.
type handlers struct {
	mu             sync.RWMutex
	onMessage      func(Message)
	onDisconnected func()
}

func (h *handlers) OnMessage(fn func(Message)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onMessage = fn
}

func (h *handlers) OnDisconnected(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onDisconnected = fn
}

func (h *handlers) message(msg Message) {
	h.mu.RLock()
	fn := h.onMessage
	h.mu.RUnlock()
	if fn != nil {
		fn(msg)
	}
}

func (h *handlers) disconnected() {
	h.mu.RLock()
	fn := h.onDisconnected
	h.mu.RUnlock()
	if fn != nil {
		fn()
	}
}
