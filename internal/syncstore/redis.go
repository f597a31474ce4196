package syncstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// fnPut is the Lua function (redis_functions/chitbid.lua) that writes the
// value and publishes the change in one step.
const fnPut = "kv_put"

// RedisStore keeps values under prefix+key and announces changes on the
// prefix+"changes" channel.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	origin string
}

func NewRedisStore(rdb *redis.Client, prefix, origin string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix, origin: newOrigin(origin)}
}

func (s *RedisStore) Origin() string { return s.origin }

func (s *RedisStore) channel() string { return s.prefix + "changes" }

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.rdb.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	env, err := json.Marshal(envelope{Origin: s.origin, Key: key, Value: value})
	if err != nil {
		return err
	}
	return s.rdb.FCall(ctx, fnPut,
		[]string{s.prefix + key},
		value,
		s.channel(),
		env,
	).Err()
}

func (s *RedisStore) Watch(ctx context.Context, fn func(Change)) error {
	ps := s.rdb.Subscribe(ctx, s.channel())
	defer ps.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ps.Channel():
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
				zap.L().Warn("syncstore.bad_envelope", zap.Error(err))
				continue
			}
			if env.Origin == s.origin {
				continue
			}
			fn(Change{Key: env.Key, Value: env.Value, Origin: env.Origin})
		}
	}
}
