package guard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"integration-hub/internal/redis"
)

const redisKeyPrefix = "guard:"

// RedisStore shares guard entries across replicas. Each mutation runs as an
// optimistic WATCH transaction; on conflict it retries with a fresh read, so
// two nearly simultaneous requests cannot both pass a boundary check.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Mutate(ctx context.Context, key string, ttl time.Duration, fn func(*Entry)) (*Entry, error) {
	rdb := s.client.RDB()
	fullKey := redisKeyPrefix + key

	var result Entry
	txn := func(tx *goredis.Tx) error {
		var entry Entry
		raw, err := tx.Get(ctx, fullKey).Result()
		if err != nil && err != goredis.Nil {
			return err
		}
		if err == nil {
			if err := json.Unmarshal([]byte(raw), &entry); err != nil {
				// Corrupt entry: start over rather than fail every request
				// for this key.
				entry = Entry{}
			}
		}

		fn(&entry)
		encoded, err := json.Marshal(&entry)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, fullKey, encoded, ttl)
			return nil
		})
		if err != nil {
			return err
		}
		result = entry
		return nil
	}

	for attempt := 0; attempt < 5; attempt++ {
		err := rdb.Watch(ctx, txn, fullKey)
		if err == nil {
			return &result, nil
		}
		if err == goredis.TxFailedErr {
			continue
		}
		return nil, fmt.Errorf("failed to update guard entry: %w", err)
	}
	return nil, fmt.Errorf("failed to update guard entry: too many conflicts")
}

func (s *RedisStore) Close() error {
	return nil
}
