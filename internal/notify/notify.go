// Package notify delivers owner notifications to the external dispatcher.
// Delivery is fire-and-forget: the scheduler logs failures and moves on.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Template identifiers understood by the downstream dispatcher.
const (
	TemplateSessionWarning    = "session_warning"
	TemplateSessionExpired    = "session_expired"
	TemplateExtensionApproved = "extension_approved"
	TemplateExtensionDenied   = "extension_denied"
)

// DefaultQueueKey is the redis list the delivery service consumes.
const DefaultQueueKey = "notifications:queue"

type message struct {
	OwnerID    string                 `json:"owner_id"`
	TemplateID string                 `json:"template_id"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	EnqueuedAt time.Time              `json:"enqueued_at"`
}

// RedisDispatcher hands messages to the delivery service via a redis list.
type RedisDispatcher struct {
	client   *redis.Client
	queueKey string
}

func NewRedisDispatcher(client *redis.Client, queueKey string) *RedisDispatcher {
	if queueKey == "" {
		queueKey = DefaultQueueKey
	}
	return &RedisDispatcher{client: client, queueKey: queueKey}
}

func (d *RedisDispatcher) Notify(ctx context.Context, ownerID, templateID string, payload map[string]interface{}) error {
	if d.client == nil {
		return fmt.Errorf("redis client is nil")
	}

	data, err := json.Marshal(message{
		OwnerID:    ownerID,
		TemplateID: templateID,
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	if err := d.client.LPush(ctx, d.queueKey, data).Err(); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// LogDispatcher writes notifications to the log. Used when redis is not
// configured and as the last-resort fallback.
type LogDispatcher struct {
	logger *zerolog.Logger
}

func NewLogDispatcher(logger *zerolog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Notify(ctx context.Context, ownerID, templateID string, payload map[string]interface{}) error {
	d.logger.Info().
		Str("owner_id", ownerID).
		Str("template_id", templateID).
		Interface("payload", payload).
		Msg("notification dispatched")
	return nil
}
