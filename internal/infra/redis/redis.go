// Package redis persists player settings in Redis.
package redis

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	redislib "github.com/redis/go-redis/v9"
	zlog "github.com/rs/zerolog/log"
)

// Config represents Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Connect creates a client and waits until the server answers a ping.
func Connect(ctx context.Context, cfg Config) (*redislib.Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	client := redislib.NewClient(&redislib.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	attempts := 5
	backoff := 200 * time.Millisecond

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err = client.Ping(pingCtx).Err()
		cancel()

		if err == nil {
			zlog.Info().Msgf("redis connected: %s", cfg.Addr)
			return client, nil
		}

		zlog.Debug().Msgf("redis ping failed (attempt %d/%d): %v", attempt, attempts, err)
		if attempt < attempts {
			select {
			case <-ctx.Done():
				_ = client.Close()
				return nil, errors.Wrap(ctx.Err(), "redis connect cancelled")
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}

	_ = client.Close()
	return nil, errors.Wrapf(err, "failed to connect to redis at %s", cfg.Addr)
}
