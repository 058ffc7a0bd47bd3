package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisStateKeyPrefix = "lineauth:state:"

// RedisStateStore keeps state tokens in Redis so any instance can complete a login.
type RedisStateStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStateStore wraps an existing go-redis client. An empty prefix uses "lineauth:state:".
func NewRedisStateStore(client redis.UniversalClient, prefix string) *RedisStateStore {
	if prefix == "" {
		prefix = redisStateKeyPrefix
	}
	return &RedisStateStore{client: client, prefix: prefix}
}

func (r *RedisStateStore) Save(ctx context.Context, state string, data StateData, ttl time.Duration) error {
	if state == "" {
		return ErrInvalidState
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	ok, err := r.client.SetNX(ctx, r.prefix+state, payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	if !ok {
		return errStateExists
	}
	return nil
}

func (r *RedisStateStore) Consume(ctx context.Context, state string) (StateData, error) {
	if state == "" {
		return StateData{}, ErrInvalidState
	}
	payload, err := r.client.GetDel(ctx, r.prefix+state).Bytes()
	if errors.Is(err, redis.Nil) {
		return StateData{}, ErrInvalidState
	}
	if err != nil {
		return StateData{}, fmt.Errorf("failed to consume state: %w", err)
	}

	var data StateData
	if err := json.Unmarshal(payload, &data); err != nil {
		return StateData{}, fmt.Errorf("failed to decode state: %w", err)
	}
	return data, nil
}
