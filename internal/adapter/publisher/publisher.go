// Package publisher forwards finalized agent responses, and optionally every
// agent event, to an external pub/sub bus.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"uiagent/internal/domain"
	"uiagent/internal/infra/config"
)

// Backend names accepted in pubsub.backend.
const (
	BackendCentrifugo = "centrifugo"
	BackendRedis      = "redis"
)

// Publisher delivers one JSON message to a named channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, data json.RawMessage) error
	Close() error
}

// New builds the backend named in cfg.
func New(cfg config.PubSubConfig, logger *slog.Logger) (Publisher, error) {
	switch cfg.Backend {
	case BackendCentrifugo:
		return NewCentrifugo(cfg.URL, cfg.Key, logger), nil
	case BackendRedis:
		p, err := NewRedis(cfg.URL, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, domain.NewDomainError("publisher.New", domain.ErrInvalidInput,
			fmt.Sprintf("unknown pubsub backend %q", cfg.Backend))
	}
}
