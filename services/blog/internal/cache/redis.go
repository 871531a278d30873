package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type Redis struct {
	Client *redis.Client
	TTL    time.Duration
	// Prefix namespaces every key.
	Prefix string
}

func NewRedis(url string, ttl time.Duration) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Redis{Client: redis.NewClient(opt), TTL: ttl, Prefix: "blog:"}, nil
}

func (c *Redis) versionKey(postID string) string {
	return c.Prefix + "thread-version:" + postID
}

func (c *Redis) Version(ctx context.Context, postID string) (int64, error) {
	v, err := c.Client.Get(ctx, c.versionKey(postID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

func (c *Redis) Bump(ctx context.Context, postID string) error {
	return c.Client.Incr(ctx, c.versionKey(postID)).Err()
}

func (c *Redis) Get(ctx context.Context, key string, dest any) (bool, error) {
	val, err := c.Client.Get(ctx, c.Prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Redis) Set(ctx context.Context, key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, c.Prefix+key, b, c.TTL).Err()
}

func (c *Redis) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *Redis) Close() error {
	return c.Client.Close()
}
