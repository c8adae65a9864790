// Package message implements MessageRouter: a single FIFO delivery queue
// fanned out to per-agent callbacks, with broadcast support.
package message

import (
	"sync"
	"time"

	"github.com/kolosalai/kolosal-agentd/core"
)

// Message is one routed message.
type Message struct {
	ID        string
	From      string
	To        string
	Type      string
	Payload   core.AgentData
	Timestamp time.Time
}

// DeliveryCallback receives one message. Callbacks execute on the router's
// single delivery goroutine and must not block indefinitely.
type DeliveryCallback func(msg Message)

// Transport abstracts message delivery across process boundaries. The
// in-process Router below is the only implementation wired by default;
// a NATS-backed Transport (github.com/nats-io/nats.go) is a drop-in for a
// future multi-node deployment — not constructed here since this runtime is
// single-node.
type Transport interface {
	Publish(msg Message) error
	Subscribe(agentID string, cb DeliveryCallback) error
	Unsubscribe(agentID string) error
}

// Router is the in-process Transport: one FIFO queue plus an
// agentId -> DeliveryCallback map, drained by a single goroutine.
type Router struct {
	mu        sync.Mutex
	callbacks map[string]DeliveryCallback

	queue    chan Message
	logger   core.Logger
	stopCh   chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// New constructs a router with the given queue depth and starts its
// delivery goroutine.
func New(queueDepth int, logger core.Logger) *Router {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if queueDepth <= 0 {
		queueDepth = 256
	}
	r := &Router{
		callbacks: make(map[string]DeliveryCallback),
		queue:     make(chan Message, queueDepth),
		logger:    logger,
		stopCh:    make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	go r.deliveryLoop()
	return r
}

// Subscribe registers a delivery callback for agentID, satisfying Transport.
func (r *Router) Subscribe(agentID string, cb DeliveryCallback) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks[agentID] = cb
	return nil
}

// Unsubscribe removes agentID's callback, satisfying Transport.
func (r *Router) Unsubscribe(agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.callbacks, agentID)
	return nil
}

// Publish enqueues msg for delivery, satisfying Transport.
func (r *Router) Publish(msg Message) error {
	return r.RouteMessage(msg)
}

// RouteMessage enqueues msg for delivery to msg.To.
func (r *Router) RouteMessage(msg Message) error {
	select {
	case r.queue <- msg:
		return nil
	case <-r.stopCh:
		return &core.FrameworkError{Op: "message.RouteMessage", Kind: core.KindInternal, Err: core.ErrNotInitialized}
	}
}

// BroadcastMessage fans out one copy of msg per registered recipient except
// the sender.
func (r *Router) BroadcastMessage(msg Message) {
	r.mu.Lock()
	recipients := make([]string, 0, len(r.callbacks))
	for agentID := range r.callbacks {
		if agentID != msg.From {
			recipients = append(recipients, agentID)
		}
	}
	r.mu.Unlock()

	for _, agentID := range recipients {
		copyMsg := msg
		copyMsg.To = agentID
		r.RouteMessage(copyMsg)
	}
}

// deliveryLoop dequeues messages and invokes the recipient's callback. A
// missing recipient logs a warning and drops the message — no DLQ.
func (r *Router) deliveryLoop() {
	defer close(r.stopped)
	for {
		select {
		case <-r.stopCh:
			return
		case msg := <-r.queue:
			r.deliver(msg)
		}
	}
}

func (r *Router) deliver(msg Message) {
	r.mu.Lock()
	cb, ok := r.callbacks[msg.To]
	r.mu.Unlock()
	if !ok {
		r.logger.Warn("message dropped: no recipient registered", map[string]interface{}{"to": msg.To, "from": msg.From})
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("message callback panicked", map[string]interface{}{"to": msg.To, "panic": rec})
		}
	}()
	cb(msg)
}

// Shutdown stops the delivery goroutine.
func (r *Router) Shutdown() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.stopped
}
