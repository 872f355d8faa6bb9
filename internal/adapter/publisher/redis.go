package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"uiagent/internal/domain"
)

// redisClient is the slice of the go-redis client the publisher uses.
type redisClient interface {
	Publish(ctx context.Context, channel string, message any) *goredis.IntCmd
	Close() error
}

// RedisPublisher publishes with Redis PUBLISH.
type RedisPublisher struct {
	client redisClient
	logger *slog.Logger
}

// NewRedis connects lazily to the server at url (redis://[:password@]host:port/db).
func NewRedis(url string, logger *slog.Logger) (*RedisPublisher, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, domain.NewDomainError("publisher.NewRedis", domain.ErrInvalidInput, err.Error())
	}
	return &RedisPublisher{client: goredis.NewClient(opts), logger: logger}, nil
}

// Publish sends data to channel. Zero receivers is not an error.
func (p *RedisPublisher) Publish(ctx context.Context, channel string, data json.RawMessage) error {
	receivers, err := p.client.Publish(ctx, channel, string(data)).Result()
	if err != nil {
		return fmt.Errorf("%w: redis: %v", domain.ErrPublish, err)
	}
	p.logger.Debug("published to redis", "channel", channel, "receivers", receivers)
	return nil
}

// Close closes the client.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
