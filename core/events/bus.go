package events

import (
	"log/slog"
	"sync"
)

// Handler receives published audit events. Handlers must be fast; Publish
// invokes them synchronously on the publisher's goroutine.
type Handler func(AuditEvent)

// Bus is a minimal in-process fan-out for audit events. Subscription order is
// delivery order.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for all subsequent events.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	b.handlers = append(b.handlers, h)
	b.mu.Unlock()
}

// Publish delivers the event to every subscriber. A nil bus is a valid no-op
// sink so callers never need to guard emission.
func (b *Bus) Publish(e AuditEvent) {
	if b == nil {
		return
	}
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
}

// LogHandler returns a handler that writes every event to logger at info
// level, failures at warn.
func LogHandler(logger *slog.Logger) Handler {
	return func(e AuditEvent) {
		if e.Type == TypeActionFailed {
			logger.Warn("audit", slog.Any("event", e))
			return
		}
		logger.Info("audit", slog.Any("event", e))
	}
}
