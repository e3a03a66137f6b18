package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation parameters, lumberjack semantics.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Config describes the service log destination. With Path set, records
// go to a rotated file; otherwise they go to stderr, optionally with
// colored level names.
type Config struct {
	Level      string `toml:"level" mapstructure:"level" json:"level"`
	Path       string `toml:"path" mapstructure:"path" json:"path"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups" json:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days" json:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress" json:"compress"`
	Color      bool   `toml:"color" mapstructure:"color" json:"color"`
}

// New builds the slog.Logger for this configuration.
func (c Config) New() (*slog.Logger, error) {
	level, err := ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch {
	case c.Path != "":
		h = slog.NewTextHandler(c.fileWriter(), opts)
	case c.Color:
		h = NewColorTextHandler(os.Stderr, opts)
	default:
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(h), nil
}

func (c Config) fileWriter() io.Writer {
	return &lj.Logger{
		Filename:   c.Path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

// ParseLevel maps a config string onto a slog level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
