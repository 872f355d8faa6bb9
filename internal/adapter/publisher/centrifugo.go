package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/centrifugal/gocent/v3"

	"uiagent/internal/domain"
)

const centrifugoTimeout = 10 * time.Second

// CentrifugoPublisher publishes through the Centrifugo server HTTP API.
type CentrifugoPublisher struct {
	client *gocent.Client
	http   *http.Client
	logger *slog.Logger
}

// NewCentrifugo creates a publisher for the API endpoint at apiURL
// (for example http://localhost:8000/api).
func NewCentrifugo(apiURL, apiKey string, logger *slog.Logger) *CentrifugoPublisher {
	hc := &http.Client{Timeout: centrifugoTimeout}
	return &CentrifugoPublisher{
		client: gocent.New(gocent.Config{
			Addr:       apiURL,
			Key:        apiKey,
			HTTPClient: hc,
		}),
		http:   hc,
		logger: logger,
	}
}

// Publish sends data to channel. Transport failures and API error replies
// both wrap domain.ErrPublish.
func (p *CentrifugoPublisher) Publish(ctx context.Context, channel string, data json.RawMessage) error {
	if _, err := p.client.Publish(ctx, channel, data); err != nil {
		return fmt.Errorf("%w: centrifugo: %v", domain.ErrPublish, err)
	}
	p.logger.Debug("centrifugo publish", "channel", channel, "bytes", len(data))
	return nil
}

// Close releases idle connections.
func (p *CentrifugoPublisher) Close() error {
	p.http.CloseIdleConnections()
	return nil
}
