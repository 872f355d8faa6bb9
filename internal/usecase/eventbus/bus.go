package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"uiagent/internal/domain"
)

// DefaultQueueSize is the per-subscriber backlog before events are dropped.
const DefaultQueueSize = 256

type queued struct {
	ctx   context.Context
	event domain.Event
}

// subscription owns one delivery goroutine so a subscriber sees events in
// publish order while never blocking the publisher.
type subscription struct {
	id        uint64
	eventType domain.EventType // empty for all-event subscribers
	handler   domain.EventHandler
	queue     chan queued
	done      chan struct{}
}

// Bus is an in-process, goroutine-safe event bus.
type Bus struct {
	mu        sync.RWMutex
	subs      []*subscription
	nextID    atomic.Uint64
	logger    *slog.Logger
	queueSize int
	closed    bool
	dropped   atomic.Uint64
}

// Option configures a Bus.
type Option func(*Bus)

// WithQueueSize overrides the per-subscriber backlog.
func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// New creates an event bus.
func New(logger *slog.Logger, opts ...Option) *Bus {
	b := &Bus{logger: logger, queueSize: DefaultQueueSize}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish enqueues the event for every matching subscriber. A subscriber whose
// backlog is full loses the event; the drop is logged and counted.
// Handlers run detached from ctx cancellation but keep its values.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	ctx = context.WithoutCancel(ctx)

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		if sub.eventType != "" && sub.eventType != event.Type {
			continue
		}
		select {
		case sub.queue <- queued{ctx: ctx, event: event}:
		default:
			b.dropped.Add(1)
			b.logger.Warn("event dropped, subscriber backlog full",
				"event", string(event.Type),
				"session_id", event.SessionID,
			)
		}
	}
}

// Dropped returns how many deliveries were lost to full backlogs.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

func (b *Bus) run(sub *subscription) {
	defer close(sub.done)
	for q := range sub.queue {
		b.deliver(sub, q)
	}
}

func (b *Bus) deliver(sub *subscription, q queued) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", string(q.event.Type),
				"panic", r,
			)
		}
	}()
	sub.handler(q.ctx, q.event)
}

// Subscribe registers a handler for a specific event type.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	return b.add(eventType, handler)
}

// SubscribeAll registers a handler that receives every event.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	return b.add("", handler)
}

func (b *Bus) add(eventType domain.EventType, handler domain.EventHandler) func() {
	sub := &subscription{
		id:        b.nextID.Add(1),
		eventType: eventType,
		handler:   handler,
		queue:     make(chan queued, b.queueSize),
		done:      make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.done)
		return func() {}
	}
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	go b.run(sub)

	var once sync.Once
	return func() {
		once.Do(func() {
			if b.remove(sub.id) {
				close(sub.queue)
			}
			<-sub.done
		})
	}
}

func (b *Bus) remove(id uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Close stops accepting events, drains every backlog and waits for the
// handlers to finish. Close is idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, sub := range subs {
		close(sub.queue)
	}
	for _, sub := range subs {
		<-sub.done
	}
}
