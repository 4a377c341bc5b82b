package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const pendingMarker = "pending"

// RedisStore keeps idempotency records in Redis so replicas share them.
type RedisStore struct {
	rdb        *redis.Client
	ttl        time.Duration
	pendingTTL time.Duration
	prefix     string
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl, pendingTTL: pendingTTL(ttl), prefix: "bank:idempotency:"}
}

var _ Store = (*RedisStore)(nil)

func (s *RedisStore) Begin(ctx context.Context, key string) (*Record, error) {
	redisKey := s.prefix + key
	reserved, err := s.rdb.SetNX(ctx, redisKey, pendingMarker, s.pendingTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if reserved {
		return nil, nil
	}

	raw, err := s.rdb.Get(ctx, redisKey).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; try once more
		return s.Begin(ctx, key)
	}
	if err != nil {
		return nil, fmt.Errorf("load idempotency key: %w", err)
	}
	if raw == pendingMarker {
		return nil, ErrInProgress
	}

	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode idempotency record: %w", err)
	}
	return &rec, nil
}

func (s *RedisStore) Finish(ctx context.Context, key string, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode idempotency record: %w", err)
	}
	if err := s.rdb.Set(ctx, s.prefix+key, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("store idempotency record: %w", err)
	}
	return nil
}

func (s *RedisStore) Abort(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
