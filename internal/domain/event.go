package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventSessionCreated    EventType = "session.created"
	EventSessionDeleted    EventType = "session.deleted"
	EventSessionExpired    EventType = "session.expired"
	EventAgentEvent        EventType = "agent.event"
	EventAgentCompleted    EventType = "agent.completed"
	EventAgentError        EventType = "agent.error"
	EventToolCallStarted   EventType = "tool.call.started"
	EventToolCallCompleted EventType = "tool.call.completed"
	EventStreamCancelled   EventType = "stream.cancelled"
)

// Event is the envelope published on the event bus.
type Event struct {
	ID        string          `json:"id,omitempty"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// EventHandler processes a published event.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides publish/subscribe for domain events.
type EventBus interface {
	Publish(ctx context.Context, event Event)
	Subscribe(eventType EventType, handler EventHandler) (unsubscribe func())
	SubscribeAll(handler EventHandler) (unsubscribe func())
	Close()
}
