package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisSink pushes audit lines onto a Redis list. RPUSH is atomic per call,
// which gives the same per-record guarantee as FileSink.
type RedisSink struct {
	rdb *redis.Client
	key string
}

// RedisOption configures a RedisSink.
type RedisOption func(*RedisSink)

// WithRedisKey overrides the list key.
func WithRedisKey(key string) RedisOption {
	return func(s *RedisSink) {
		if k := strings.TrimSpace(key); k != "" {
			s.key = k
		}
	}
}

// NewRedisSink wraps an existing client. The sink owns the client and closes it on Close.
func NewRedisSink(rdb *redis.Client, opts ...RedisOption) *RedisSink {
	s := &RedisSink{
		rdb: rdb,
		key: "relaychat:audit",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the list key records are pushed onto.
func (s *RedisSink) Key() string {
	return s.key
}

// Ping checks connectivity.
func (s *RedisSink) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis audit ping: %w", err)
	}
	return nil
}

// Append implements Sink.
func (s *RedisSink) Append(ctx context.Context, rec Record) error {
	if s == nil || s.rdb == nil {
		return ErrClosed
	}
	if err := s.rdb.RPush(ctx, s.key, rec.Line()).Err(); err != nil {
		return fmt.Errorf("push audit record to %s: %w", s.key, err)
	}
	return nil
}

// Close implements Sink.
func (s *RedisSink) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}
