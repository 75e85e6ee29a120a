package notify

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisDispatcher(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	d := NewRedisDispatcher(client, "")
	err := d.Notify(context.Background(), "guest-1", TemplateSessionWarning, map[string]interface{}{
		"reservation_id": int64(42),
		"minutes_left":   10,
	})
	require.NoError(t, err)

	raw, err := client.RPop(context.Background(), DefaultQueueKey).Result()
	require.NoError(t, err)

	var msg message
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	assert.Equal(t, "guest-1", msg.OwnerID)
	assert.Equal(t, TemplateSessionWarning, msg.TemplateID)
	assert.EqualValues(t, 10, msg.Payload["minutes_left"])
	assert.False(t, msg.EnqueuedAt.IsZero())
}

func TestRedisDispatcher_NilClient(t *testing.T) {
	d := NewRedisDispatcher(nil, "")
	err := d.Notify(context.Background(), "guest-1", TemplateSessionExpired, nil)
	assert.Error(t, err)
}

func TestLogDispatcher(t *testing.T) {
	logger := zerolog.Nop()
	d := NewLogDispatcher(&logger)
	assert.NoError(t, d.Notify(context.Background(), "guest-1", TemplateExtensionApproved, nil))
}
