package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Supported values of Config.Backend.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
	BackendNone  = "none"
)

// Config selects and configures the audit destination.
type Config struct {
	Backend       string `validate:"oneof=file redis none"`
	File          string `validate:"required_if=Backend file"`
	RedisAddr     string `validate:"required_if=Backend redis"`
	RedisPassword string
	RedisDB       int `validate:"gte=0"`
	RedisKey      string
}

// Open builds the sink described by cfg. The Redis backend is pinged so a
// misconfigured address fails at startup rather than on the first command.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case BackendFile:
		return OpenFile(cfg.File, logger)
	case BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		sink := NewRedisSink(rdb, WithRedisKey(cfg.RedisKey))

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := sink.Ping(pingCtx); err != nil {
			_ = sink.Close()
			return nil, err
		}
		logger.Info("audit redis sink ready", "addr", cfg.RedisAddr, "key", sink.Key())
		return sink, nil
	case BackendNone, "":
		logger.Info("audit logging disabled")
		return NopSink{}, nil
	default:
		return nil, fmt.Errorf("unknown audit backend %q", cfg.Backend)
	}
}
