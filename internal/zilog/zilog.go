// Package zilog wraps zerolog with the ambient logging configuration every
// Zi component shares, following the same console/file split and level
// parsing the original engine's observability package uses.
package zilog

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config controls where and how verbosely Zi logs.
type Config struct {
	Level          string
	ConsoleEnabled bool
	FileEnabled    bool
	LogFileName    string
}

// DefaultConfig matches the defaults ZiContextConfig documents: info level,
// console mirroring on, file logging on, file name "zi.log".
func DefaultConfig() Config {
	return Config{
		Level:          "info",
		ConsoleEnabled: true,
		FileEnabled:    true,
		LogFileName:    "zi.log",
	}
}

// Init builds a zerolog.Logger from cfg. When FileEnabled and the file can't
// be opened, it falls back to stdout and reports the failure on stderr
// rather than failing construction.
func Init(cfg Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	var writers []io.Writer
	if cfg.ConsoleEnabled || !cfg.FileEnabled {
		writers = append(writers, os.Stdout)
	}
	if cfg.FileEnabled {
		name := cfg.LogFileName
		if name == "" {
			name = "zi.log"
		}
		if f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			writers = append(writers, f)
		} else {
			_, _ = fmt.Fprintf(os.Stderr, "zilog: failed to open log file %q: %v\n", name, err)
			if !cfg.ConsoleEnabled {
				writers = append(writers, os.Stdout)
			}
		}
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	logger := zerolog.New(io.MultiWriter(writers...)).With().Timestamp().Logger()

	level := strings.ToLower(strings.TrimSpace(cfg.Level))
	if level == "warning" {
		level = "warn"
	}
	lvl := zerolog.InfoLevel
	if level != "" {
		if l, err := zerolog.ParseLevel(level); err == nil {
			lvl = l
		}
	}
	logger = logger.Level(lvl)

	stdlog.SetFlags(0)
	stdlog.SetOutput(logger)

	return logger
}
