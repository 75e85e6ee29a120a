package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"lineup/internal/config"
	"lineup/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisHoldRepository stores checkout holds in redis keyed per resource, so
// a window check only scans that resource's holds. TTL does the cleanup.
type RedisHoldRepository struct {
	client *redis.Client
}

func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisHoldRepository(client *redis.Client) *RedisHoldRepository {
	return &RedisHoldRepository{client: client}
}

func holdKey(resourceID int64, token string) string {
	return fmt.Sprintf("hold:resource:%d:%s", resourceID, token)
}

func (r *RedisHoldRepository) PlaceHold(ctx context.Context, hold *models.Hold) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}

	data, err := json.Marshal(hold)
	if err != nil {
		return fmt.Errorf("marshal hold: %w", err)
	}

	ttl := time.Until(hold.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("hold already expired")
	}

	if err := r.client.Set(ctx, holdKey(hold.ResourceID, hold.Token), data, ttl).Err(); err != nil {
		return fmt.Errorf("set hold in redis: %w", err)
	}
	return nil
}

func (r *RedisHoldRepository) ReleaseHold(ctx context.Context, token string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}

	// Token alone does not carry the resource, so match across resources.
	iter := r.client.Scan(ctx, 0, "hold:resource:*:"+token, 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("delete hold from redis: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan holds: %w", err)
	}
	return nil
}

func (r *RedisHoldRepository) BlockingHold(ctx context.Context, resourceID int64, start, end time.Time, ownerID string) (*models.Hold, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}

	pattern := fmt.Sprintf("hold:resource:%d:*", resourceID)
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		val, err := r.client.Get(ctx, iter.Val()).Result()
		if err == redis.Nil {
			continue // expired between scan and get
		}
		if err != nil {
			return nil, fmt.Errorf("get hold from redis: %w", err)
		}

		var hold models.Hold
		if err := json.Unmarshal([]byte(val), &hold); err != nil {
			return nil, fmt.Errorf("unmarshal hold: %w", err)
		}
		if hold.OwnerID == ownerID {
			continue
		}
		if hold.Start.Before(end) && start.Before(hold.End) {
			return &hold, nil
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan holds: %w", err)
	}
	return nil, nil
}

// Ping verifies the redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}
