// Package worker pushes ledger changes out to the schedule mirror. The
// mirror is eventually consistent: days are enqueued on every mutation,
// deduplicated, and rewritten whole.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"lineup/internal/domain"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	mirrorQueueKey      = "mirror:queue"
	mirrorDeadLetterKey = "mirror:deadletter"
)

// mirrorTask is the redis queue payload; one task per venue day.
type mirrorTask struct {
	Day string `json:"day"` // YYYY-MM-DD
}

// MirrorWorker drains day-refresh requests and rewrites each day in the
// schedule mirror. A day queued twice before the worker gets to it is
// refreshed once.
type MirrorWorker struct {
	store        domain.Store
	mirror       domain.ScheduleMirror
	redis        *redis.Client
	retryPolicy  RetryPolicy
	pollInterval time.Duration
	logger       zerolog.Logger

	mu      sync.Mutex
	pending map[string]bool
	queue   chan string
}

func NewMirrorWorker(store domain.Store, mirror domain.ScheduleMirror, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *MirrorWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Minute
	}

	return &MirrorWorker{
		store:        store,
		mirror:       mirror,
		redis:        redisClient,
		retryPolicy:  retry,
		pollInterval: 2 * time.Second,
		logger:       logger.With().Str("component", "mirror_worker").Logger(),
		pending:      make(map[string]bool),
		queue:        make(chan string, 64),
	}
}

// EnqueueDay schedules a refresh of one day. Never blocks the caller: if
// the local queue is full the day stays in the pending set and the next
// drain pass picks it up.
func (w *MirrorWorker) EnqueueDay(day time.Time) {
	key := day.Format("2006-01-02")

	w.mu.Lock()
	if w.pending[key] {
		w.mu.Unlock()
		return
	}
	w.pending[key] = true
	w.mu.Unlock()

	select {
	case w.queue <- key:
	default:
	}

	if w.redis != nil {
		data, err := json.Marshal(mirrorTask{Day: key})
		if err == nil {
			if err := w.redis.LPush(context.Background(), mirrorQueueKey, data).Err(); err != nil {
				w.logger.Warn().Err(err).Str("day", key).Msg("redis enqueue failed")
			}
		}
	}
}

// Start runs the drain loop until the context is cancelled.
func (w *MirrorWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("mirror worker started")
	defer w.logger.Info().Msg("mirror worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if day, ok := w.tryLocalQueue(); ok {
			w.refreshDay(ctx, day)
			continue
		}

		if day, ok := w.tryRedis(ctx); ok {
			w.refreshDay(ctx, day)
			continue
		}

		if day, ok := w.tryPending(); ok {
			w.refreshDay(ctx, day)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.pollInterval):
		}
	}
}

func (w *MirrorWorker) tryLocalQueue() (string, bool) {
	select {
	case day := <-w.queue:
		return day, true
	default:
		return "", false
	}
}

func (w *MirrorWorker) tryRedis(ctx context.Context) (string, bool) {
	if w.redis == nil {
		return "", false
	}
	res, err := w.redis.BRPop(ctx, time.Second, mirrorQueueKey).Result()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
			return "", false
		}
		w.logger.Warn().Err(err).Msg("redis BRPOP error")
		return "", false
	}
	if len(res) != 2 {
		return "", false
	}
	var task mirrorTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Warn().Err(err).Msg("decode mirror task")
		return "", false
	}
	return task.Day, true
}

// tryPending recovers days whose local queue slot was dropped on overflow.
func (w *MirrorWorker) tryPending() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for day := range w.pending {
		return day, true
	}
	return "", false
}

func (w *MirrorWorker) refreshDay(ctx context.Context, day string) {
	defer func() {
		w.mu.Lock()
		delete(w.pending, day)
		w.mu.Unlock()
	}()

	date, err := time.Parse("2006-01-02", day)
	if err != nil {
		w.logger.Error().Err(err).Str("day", day).Msg("bad day key")
		return
	}

	var lastErr error
	for attempt := 1; attempt <= w.retryPolicy.MaxRetries; attempt++ {
		if lastErr = w.refreshOnce(ctx, date); lastErr == nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.retryPolicy.NextDelay(attempt)):
		}
	}

	w.logger.Error().Err(lastErr).Str("day", day).Msg("mirror refresh failed")
	w.pushDeadLetter(ctx, day)
}

func (w *MirrorWorker) refreshOnce(ctx context.Context, date time.Time) error {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	reservations, err := w.store.ListByDateRange(ctx, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return err
	}
	return w.mirror.ReplaceDaySchedule(ctx, date, reservations)
}

func (w *MirrorWorker) pushDeadLetter(ctx context.Context, day string) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(mirrorTask{Day: day})
	if err != nil {
		return
	}
	if err := w.redis.LPush(ctx, mirrorDeadLetterKey, data).Err(); err != nil {
		w.logger.Warn().Err(err).Str("day", day).Msg("deadletter push failed")
	}
}
