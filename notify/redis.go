package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/getpup/pupsourcing/es"
	goredis "github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis publisher.
type RedisConfig struct {
	// Channel is the pub/sub channel events are published to
	// (default: "migration-notifications").
	Channel string

	// Logger is an optional logger for observability.
	Logger es.Logger
}

// Redis publishes events as JSON on a Redis pub/sub channel. A mailer or
// chat bridge subscribed to the channel delivers them to the recipients.
type Redis struct {
	rdb    goredis.UniversalClient
	config RedisConfig
}

var _ Notifier = (*Redis)(nil)

// NewRedis creates a new Redis notifier with the given configuration.
func NewRedis(rdb goredis.UniversalClient, cfg RedisConfig) *Redis {
	if cfg.Channel == "" {
		cfg.Channel = "migration-notifications"
	}

	return &Redis{
		rdb:    rdb,
		config: cfg,
	}
}

// Notify implements Notifier.
func (r *Redis) Notify(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	receivers, err := r.rdb.Publish(ctx, r.config.Channel, payload).Result()
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	if r.config.Logger != nil {
		r.config.Logger.Debug(ctx, "notification published", "kind", event.Kind, "tenantID", event.TenantID, "receivers", receivers)
	}
	return nil
}
