package redis

import (
	"context"

	"github.com/go-redis/redis/v8"
)

// Wrapper exposes the redis client under the Ping interface used by the
// health checker.
type Wrapper struct {
	client *redis.Client
}

// Open opens a connection to redis and returns it
func Open(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := Status(ctx, rdb); err != nil {
		return nil, err
	}
	return rdb, nil
}

// Status returns nil if redis status is ok. Otherwise a redis status err
func Status(ctx context.Context, rdb *redis.Client) error {
	if pingCmd := rdb.Ping(ctx); pingCmd.Err() != nil {
		return pingCmd.Err()
	}
	return nil
}

// NewWrapper wraps an open redis client
func NewWrapper(client *redis.Client) Wrapper {
	return Wrapper{client: client}
}

// Ping checks the connection
func (w Wrapper) Ping(ctx context.Context) error {
	return Status(ctx, w.client)
}
