package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/redis/go-redis/v9"

	"github.com/kava-labs/kava-batch-service/logging"
)

type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
	// ConnectMaxElapsed bounds how long NewRedisStore waits for redis to answer a ping
	ConnectMaxElapsed time.Duration
}

// RedisStore is an implementation of Store that keeps every set in a redis hash
// keyed by entity key, with a counter per set for assigning keys
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	*logging.ServiceLogger
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(
	ctx context.Context,
	cfg *RedisConfig,
	logger *logging.ServiceLogger,
) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	store := &RedisStore{
		client:        client,
		keyPrefix:     cfg.KeyPrefix,
		ServiceLogger: logger,
	}

	retry := backoff.NewExponentialBackOff()
	retry.MaxElapsedTime = cfg.ConnectMaxElapsed

	if err := backoff.Retry(func() error { return store.Healthcheck(ctx) }, backoff.WithContext(retry, ctx)); err != nil {
		client.Close()
		return nil, err
	}

	return store, nil
}

func (rs *RedisStore) setKey(set string) string {
	return fmt.Sprintf("%s:resources:%s", rs.keyPrefix, set)
}

func (rs *RedisStore) sequenceKey(set string) string {
	return fmt.Sprintf("%s:sequences:%s", rs.keyPrefix, set)
}

// NextKey increments the counter of set
func (rs *RedisStore) NextKey(ctx context.Context, set string) (int64, error) {
	return rs.client.Incr(ctx, rs.sequenceKey(set)).Result()
}

// Put sets the value for the given key in the hash of set.
func (rs *RedisStore) Put(
	ctx context.Context,
	set string,
	key int64,
	data []byte,
) error {
	rs.Logger.Trace().
		Str("set", set).
		Int64("key", key).
		Str("value", string(data)).
		Msg("putting entity in redis")

	return rs.client.HSet(ctx, rs.setKey(set), strconv.FormatInt(key, 10), data).Err()
}

// Get gets the value for the given key from the hash of set.
func (rs *RedisStore) Get(
	ctx context.Context,
	set string,
	key int64,
) ([]byte, error) {
	val, err := rs.client.HGet(ctx, rs.setKey(set), strconv.FormatInt(key, 10)).Bytes()
	if err == redis.Nil {
		rs.Logger.Trace().
			Str("set", set).
			Int64("key", key).
			Msg("entity not found in redis")
		return nil, ErrNotFound
	}
	if err != nil {
		rs.Logger.Error().
			Str("set", set).
			Int64("key", key).
			Err(err).
			Msg("error during getting entity from redis")
		return nil, err
	}

	return val, nil
}

func (rs *RedisStore) List(ctx context.Context, set string) ([][]byte, error) {
	values, err := rs.client.HGetAll(ctx, rs.setKey(set)).Result()
	if err != nil {
		return nil, err
	}

	keys := make([]int64, 0, len(values))
	for field := range values {
		key, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid key %q in %s: %w", field, rs.setKey(set), err)
		}
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	list := make([][]byte, 0, len(keys))
	for _, key := range keys {
		list = append(list, []byte(values[strconv.FormatInt(key, 10)]))
	}

	return list, nil
}

// Delete deletes the value for the given key from the hash of set.
func (rs *RedisStore) Delete(ctx context.Context, set string, key int64) error {
	deleted, err := rs.client.HDel(ctx, rs.setKey(set), strconv.FormatInt(key, 10)).Result()
	if err != nil {
		return err
	}

	if deleted == 0 {
		return ErrNotFound
	}

	return nil
}

func (rs *RedisStore) Healthcheck(ctx context.Context) error {
	rs.Logger.Trace().Msg("redis healthcheck was called")

	// Check if we can connect to Redis
	_, err := rs.client.Ping(ctx).Result()
	if err != nil {
		rs.Logger.Error().
			Err(err).
			Msg("can't ping redis")
		return fmt.Errorf("error connecting to Redis: %v", err)
	}

	return nil
}

// Close closes the redis client
func (rs *RedisStore) Close() error {
	return rs.client.Close()
}
