// Package zicache implements the Context's shared cache module. It is
// deliberately small: a Backend interface with an in-process
// default and an optional Redis-backed implementation for sharing a cache
// across engine instances.
package zicache

import (
	"context"
	"time"
)

// Backend is the minimal get/set/delete surface the Context's cache needs.
// Values are opaque byte slices; callers (the pipeline result cache, in
// particular) own serialization.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Config mirrors ZiContextConfig's cache_* options.
type Config struct {
	Enabled    bool
	DefaultTTL time.Duration
	MaxMemoryMB int
	Backend    string // "memory" | "redis"
	RedisAddr  string
}

// New builds the configured backend. An unrecognized Backend value falls
// back to the in-process implementation rather than failing construction,
// since the cache is an optimization, not a correctness requirement.
func New(cfg Config) Backend {
	if !cfg.Enabled {
		return noopBackend{}
	}
	switch cfg.Backend {
	case "redis":
		return newRedisBackend(cfg.RedisAddr)
	default:
		return NewMemoryBackend(cfg.MaxMemoryMB)
	}
}

type noopBackend struct{}

func (noopBackend) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (noopBackend) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (noopBackend) Delete(context.Context, string) error { return nil }
