package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/animus-labs/flowq/internal/platform/env"
)

type Config struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

func ConfigFromEnv(src env.Source) (Config, error) {
	maxSize, err := src.Int("log.max_size_mb", 100)
	if err != nil {
		return Config{}, err
	}
	maxBackups, err := src.Int("log.max_backups", 3)
	if err != nil {
		return Config{}, err
	}
	maxAge, err := src.Int("log.max_age_days", 7)
	if err != nil {
		return Config{}, err
	}
	compress, err := src.Bool("log.compress", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Level:      src.String("log.level", "info"),
		Format:     src.String("log.format", "json"),
		File:       src.String("log.file", ""),
		MaxSizeMB:  maxSize,
		MaxBackups: maxBackups,
		MaxAgeDays: maxAge,
		Compress:   compress,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if _, err := c.level(); err != nil {
		return err
	}
	switch strings.ToLower(c.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("FLOWQ_LOG_FORMAT must be json or text, got %q", c.Format)
	}
	if c.File != "" && c.MaxSizeMB < 1 {
		return fmt.Errorf("FLOWQ_LOG_MAX_SIZE_MB must be >= 1")
	}
	return nil
}

func (c Config) level() (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(c.Level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("FLOWQ_LOG_LEVEL is invalid: %q", c.Level)
	}
}

// New builds the process logger. Records go to fallback unless File is set,
// in which case they go to a size-rotated file. The returned closer releases
// the file.
func New(cfg Config, fallback io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := cfg.level()
	if err != nil {
		return nil, nil, err
	}
	out := fallback
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		out, closer = rotating, rotating
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	return slog.New(handler), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
