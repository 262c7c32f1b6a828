package pubsub

import (
	"context"
	"fmt"

	"github.com/fluxbase-eu/islet/internal/config"
	"github.com/rs/zerolog/log"
)

// NewPubSub creates a pub/sub based on configuration.
//
// Backend options:
// - "local": in-process delivery (default; islet watch and serve in one process)
// - "redis": Redis pub/sub, for builds running apart from the servers
func NewPubSub(ctx context.Context, cfg *config.PubSubConfig) (PubSub, error) {
	switch cfg.Backend {
	case "local", "":
		log.Debug().Msg("Using local pub/sub")
		return NewLocalPubSub(), nil

	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("redis_url is required for redis pub/sub backend")
		}
		ps, err := NewRedisPubSub(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis for pub/sub: %w", err)
		}
		return ps, nil

	default:
		return nil, fmt.Errorf("unknown pub/sub backend: %s (valid options: local, redis)", cfg.Backend)
	}
}
