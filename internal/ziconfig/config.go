// Package ziconfig loads Zi's runtime configuration from environment
// variables (with an optional .env overlay), following the same
// explicit-read-with-defaults idiom the reference engine's config loader
// uses rather than a reflection-based binder.
package ziconfig

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-tunable setting Zi's ambient and domain
// stacks consult.
type Config struct {
	LogLevel       string
	LogConsole     bool
	LogFile        bool
	LogFileName    string

	CacheBackend   string // "memory" | "redis"
	CacheTTL       time.Duration
	CacheMaxMB     int
	RedisAddr      string

	FilesystemRoot string
	S3Bucket       string
	S3Region       string

	EmbeddingProvider string // "openai" | "gemini" | ""
	EmbeddingAPIKey   string
	EmbeddingModel    string

	OTLPEndpoint         string
	ClickHouseMetricsDSN string
}

// Load overlays an optional .env file onto the process environment (silently
// ignoring a missing file) and reads Zi's configuration keys with typed
// defaults.
func Load() Config {
	_ = godotenv.Overload()

	return Config{
		LogLevel:    getenv("ZI_LOG_LEVEL", "info"),
		LogConsole:  getbool("ZI_LOG_CONSOLE", true),
		LogFile:     getbool("ZI_LOG_FILE", true),
		LogFileName: getenv("ZI_LOG_FILE_NAME", "zi.log"),

		CacheBackend: getenv("ZI_CACHE_BACKEND", "memory"),
		CacheTTL:     getduration("ZI_CACHE_TTL_SECS", 3600*time.Second),
		CacheMaxMB:   getint("ZI_CACHE_MAX_MEMORY_MB", 512),
		RedisAddr:    getenv("ZI_REDIS_ADDR", "localhost:6379"),

		FilesystemRoot: getenv("ZI_FS_ROOT", "."),
		S3Bucket:       getenv("ZI_S3_BUCKET", ""),
		S3Region:       getenv("ZI_S3_REGION", "us-east-1"),

		EmbeddingProvider: getenv("ZI_EMBEDDING_PROVIDER", ""),
		EmbeddingAPIKey:   getenv("ZI_EMBEDDING_API_KEY", ""),
		EmbeddingModel:    getenv("ZI_EMBEDDING_MODEL", "text-embedding-3-small"),

		OTLPEndpoint:         getenv("ZI_OTLP_ENDPOINT", ""),
		ClickHouseMetricsDSN: getenv("ZI_METRICS_CLICKHOUSE_DSN", ""),
	}
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func getbool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getint(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getduration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return time.Duration(secs) * time.Second
}
