// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldToken  = "token"
	fieldRole   = "role"
	fieldUserID = "userId"
	fieldUser   = "user"

	defaultRedisPrefix = "library:"
)

// RedisStore keeps the session in a single redis hash so several client
// processes can share one login.
type RedisStore struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

// NewRedisStore returns a store writing to "<prefix>session". A zero ttl
// keeps the session until it is cleared.
func NewRedisStore(rdb *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{
		rdb: rdb,
		key: prefix + "session",
		ttl: ttl,
	}
}

// Get reads every field of the session hash.
func (r *RedisStore) Get(ctx context.Context) (State, error) {
	values, err := r.rdb.HGetAll(ctx, r.key).Result()
	if err != nil {
		return State{}, fmt.Errorf("read session hash: %w", err)
	}
	return State{
		Token:  values[fieldToken],
		Role:   values[fieldRole],
		UserID: values[fieldUserID],
		User:   values[fieldUser],
	}, nil
}

// Set replaces the hash in one transaction and refreshes its TTL.
func (r *RedisStore) Set(ctx context.Context, s State) error {
	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, r.key)
	fields := make(map[string]any, 4)
	for name, value := range map[string]string{
		fieldToken:  s.Token,
		fieldRole:   s.Role,
		fieldUserID: s.UserID,
		fieldUser:   s.User,
	} {
		if value != "" {
			fields[name] = value
		}
	}
	if len(fields) > 0 {
		pipe.HSet(ctx, r.key, fields)
		if r.ttl > 0 {
			pipe.Expire(ctx, r.key, r.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write session hash: %w", err)
	}
	return nil
}

// Clear drops the whole hash in one command so no field can outlive the others.
func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.rdb.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("delete session hash: %w", err)
	}
	return nil
}

// Close releases the underlying redis connection pool.
func (r *RedisStore) Close() error {
	return r.rdb.Close()
}
