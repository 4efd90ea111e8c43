package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/mzeeshan-dev/position-indexer/internal/constants"
	"github.com/mzeeshan-dev/position-indexer/internal/models"
)

// RedisCache keeps the recent-activity feed and a TTL-bounded set of
// processed transaction hashes used as a fast-path duplicate check. The
// store's tx-hash key remains the authoritative guard.
type RedisCache struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRedisCache(addr string, logger *logrus.Logger) *RedisCache {
	return NewRedisCacheFromClient(redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   0,
	}), logger)
}

func NewRedisCacheFromClient(client *redis.Client, logger *logrus.Logger) *RedisCache {
	if logger == nil {
		logger = logrus.New()
	}
	return &RedisCache{client: client, logger: logger}
}

// AddRecentEvent pushes an event onto the recent-activity feed, trimming
// the list to its bounded length.
func (r *RedisCache) AddRecentEvent(ctx context.Context, ev *models.RawEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.LPush(ctx, constants.RedisKeyRecentActivity, data)
	pipe.LTrim(ctx, constants.RedisKeyRecentActivity, 0, constants.MaxRecentActivity-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push recent event: %w", err)
	}
	return nil
}

// GetRecentEvents returns up to limit most recent events, newest first.
func (r *RedisCache) GetRecentEvents(ctx context.Context, limit int64) ([]*models.RawEvent, error) {
	if limit <= 0 || limit > constants.MaxRecentActivity {
		limit = constants.MaxRecentActivity
	}

	vals, err := r.client.LRange(ctx, constants.RedisKeyRecentActivity, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read recent events: %w", err)
	}

	out := make([]*models.RawEvent, 0, len(vals))
	for _, v := range vals {
		var ev models.RawEvent
		if err := json.Unmarshal([]byte(v), &ev); err != nil {
			r.logger.WithError(err).Warn("skipping undecodable cached event")
			continue
		}
		out = append(out, &ev)
	}
	return out, nil
}

// MarkSeen records a processed transaction hash with a TTL.
func (r *RedisCache) MarkSeen(ctx context.Context, txHash string) error {
	return r.client.Set(ctx, constants.RedisKeySeenEvents+":"+txHash, 1, constants.SeenEventsTTL).Err()
}

// WasSeen reports whether a transaction hash is in the fast-path dedup set.
func (r *RedisCache) WasSeen(ctx context.Context, txHash string) (bool, error) {
	n, err := r.client.Exists(ctx, constants.RedisKeySeenEvents+":"+txHash).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
