package usecase

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"

	"uiagent/internal/domain"
)

// publishEvent publishes a domain event on the bus if it is configured.
func publishEvent(bus domain.EventBus, ctx context.Context, eventType domain.EventType, sessionID string, payload any) {
	if bus == nil {
		return
	}
	var raw json.RawMessage
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			raw = data
		}
	}
	bus.Publish(ctx, domain.Event{
		ID:        ulid.Make().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		SessionID: sessionID,
		Payload:   raw,
	})
}
