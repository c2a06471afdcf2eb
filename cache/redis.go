package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/teranos/ldschema/errors"
)

// RedisStore keeps entries in Redis with native expiry. The version counter
// lives under <namespace>:version.
type RedisStore struct {
	client     *redis.Client
	versionKey string
}

// NewRedisStore wraps an existing client; its lifecycle is managed by the caller
func NewRedisStore(client *redis.Client, namespace string) *RedisStore {
	return &RedisStore{client: client, versionKey: namespace + ":version"}
}

// DialRedis parses url, connects and pings
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis URL")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "redis ping failed")
	}
	return client, nil
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisStore) Version(ctx context.Context) (int64, error) {
	v, err := r.client.Get(ctx, r.versionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

func (r *RedisStore) BumpVersion(ctx context.Context) (int64, error) {
	return r.client.Incr(ctx, r.versionKey).Result()
}
