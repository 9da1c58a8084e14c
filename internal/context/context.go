// Package context assembles the ambient services bundle (spec.md §4.L)
// passed explicitly into operator and pipeline constructors that need it:
// logger, cache, metrics registry, tracer, and filesystem.
package context

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/dunimd/zi/internal/zicache"
	"github.com/dunimd/zi/internal/ziconfig"
	"github.com/dunimd/zi/internal/ziobserve"
	"github.com/dunimd/zi/internal/zifs"
	"github.com/dunimd/zi/internal/zilog"
)

// Config enumerates the options ZiContextConfig documents.
type Config struct {
	LogLevel       string
	ConsoleEnabled bool
	FileEnabled    bool
	LogFileName    string
	CacheEnabled   bool
	CacheTTLSecs   int
	CacheMaxMemoryMB int
}

// DefaultConfig matches the documented defaults: info level, console and
// file logging on, "zi.log", cache on with a 3600s TTL and 512MB cap.
func DefaultConfig() Config {
	return Config{
		LogLevel:         "info",
		ConsoleEnabled:   true,
		FileEnabled:      true,
		LogFileName:      "zi.log",
		CacheEnabled:     true,
		CacheTTLSecs:     3600,
		CacheMaxMemoryMB: 512,
	}
}

// Context bundles the services Zi's operators and pipeline collaborators
// share. Every field is cheaply cloneable/shareable across goroutines.
type Context struct {
	logger  zerolog.Logger
	cache   zicache.Backend
	metrics *ziobserve.Registry
	fs      zifs.Filesystem
}

// New builds a Context from a Config, wiring an in-process cache backend
// and a local filesystem by default.
func New(cfg Config) *Context {
	logger := zilog.Init(zilog.Config{
		Level:          cfg.LogLevel,
		ConsoleEnabled: cfg.ConsoleEnabled,
		FileEnabled:    cfg.FileEnabled,
		LogFileName:    cfg.LogFileName,
	})

	cache := zicache.New(zicache.Config{
		Enabled:     cfg.CacheEnabled,
		DefaultTTL:  time.Duration(cfg.CacheTTLSecs) * time.Second,
		MaxMemoryMB: cfg.CacheMaxMemoryMB,
		Backend:     "memory",
	})

	registry, _, err := ziobserve.New(context.Background(), ziobserve.Config{ServiceName: "zi"})
	if err != nil {
		registry = nil
	}

	return &Context{
		logger:  logger,
		cache:   cache,
		metrics: registry,
		fs:      zifs.NewLocalFilesystem("."),
	}
}

// NewFromEnv builds a Context from ziconfig.Load(), wiring Redis/S3/OTel
// backends when configured.
func NewFromEnv(ctx context.Context, envCfg ziconfig.Config) (*Context, error) {
	logger := zilog.Init(zilog.Config{
		Level:          envCfg.LogLevel,
		ConsoleEnabled: envCfg.LogConsole,
		FileEnabled:    envCfg.LogFile,
		LogFileName:    envCfg.LogFileName,
	})

	cache := zicache.New(zicache.Config{
		Enabled:     true,
		DefaultTTL:  envCfg.CacheTTL,
		MaxMemoryMB: envCfg.CacheMaxMB,
		Backend:     envCfg.CacheBackend,
		RedisAddr:   envCfg.RedisAddr,
	})

	var fs zifs.Filesystem
	if envCfg.S3Bucket != "" {
		s3fs, err := zifs.NewS3Filesystem(ctx, envCfg.S3Bucket, envCfg.S3Region, "")
		if err != nil {
			return nil, err
		}
		fs = s3fs
	} else {
		fs = zifs.NewLocalFilesystem(envCfg.FilesystemRoot)
	}

	registry, _, err := ziobserve.New(ctx, ziobserve.Config{OTLPEndpoint: envCfg.OTLPEndpoint, ServiceName: "zi"})
	if err != nil {
		return nil, err
	}

	return &Context{logger: logger, cache: cache, metrics: registry, fs: fs}, nil
}

func (c *Context) Logger() zerolog.Logger       { return c.logger }
func (c *Context) Cache() zicache.Backend       { return c.cache }
func (c *Context) Metrics() *ziobserve.Registry { return c.metrics }
func (c *Context) Filesystem() zifs.Filesystem  { return c.fs }
