// Package event implements EventSystem: synchronous publish/subscribe with
// per-handler panic recovery.
package event

import (
	"sync"
	"sync/atomic"

	"github.com/kolosalai/kolosal-agentd/core"
)

// Handler receives an emitted event.
type Handler func(eventType, source string, data core.AgentData)

// subscription pairs a handler with an id used for identity-based removal,
// since Go func values are not comparable.
type subscription struct {
	id      uint64
	handler Handler
}

// Bus dispatches events to subscribed handlers synchronously. Stop() gates
// further emissions; handlers already running are not interrupted.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string][]subscription
	nextID  uint64
	logger  core.Logger
	running atomic.Bool
}

// New constructs a running event bus.
func New(logger core.Logger) *Bus {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	b := &Bus{subs: make(map[string][]subscription), logger: logger}
	b.running.Store(true)
	return b
}

// Subscribe appends handler for eventType and returns a subscription id
// usable with Unsubscribe.
func (b *Bus) Subscribe(eventType string, handler Handler) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[eventType] = append(b.subs[eventType], subscription{id: id, handler: handler})
	return id
}

// Unsubscribe removes the handler registered under id for eventType.
func (b *Bus) Unsubscribe(eventType string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[eventType]
	for i, s := range list {
		if s.id == id {
			b.subs[eventType] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Emit dispatches synchronously to every handler subscribed to eventType. A
// panicking handler is recovered and logged; other handlers still run.
// Emit is a no-op once Stop has been called.
func (b *Bus) Emit(eventType, source string, data core.AgentData) {
	if !b.running.Load() {
		return
	}
	b.mu.RLock()
	handlers := make([]subscription, len(b.subs[eventType]))
	copy(handlers, b.subs[eventType])
	b.mu.RUnlock()

	for _, s := range handlers {
		b.invoke(s.handler, eventType, source, data)
	}
}

func (b *Bus) invoke(h Handler, eventType, source string, data core.AgentData) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", map[string]interface{}{
				"event_type": eventType, "source": source, "panic": r,
			})
		}
	}()
	h(eventType, source, data)
}

// Start re-enables emission after Stop.
func (b *Bus) Start() { b.running.Store(true) }

// Stop gates further Emit calls until Start is called again.
func (b *Bus) Stop() { b.running.Store(false) }
