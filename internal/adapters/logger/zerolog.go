// Package logger provides the zerolog-backed implementation of ports.Logger.
package logger

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls the adapter's outputs.
type Config struct {
	Level      string // debug, info, warn, error
	Console    bool   // human-readable console writer on stdout
	FilePath   string // rotated JSON log file; empty disables file output
	MaxSizeMB  int    // rotate after this many megabytes
	MaxBackups int    // rotated files to keep
	MaxAgeDays int    // days to keep rotated files
}

// Zerolog implements the ports.Logger interface using zerolog.
type Zerolog struct {
	log zerolog.Logger
}

// New builds the adapter. With no outputs configured it falls back to a
// plain stdout JSON logger.
func New(cfg Config) *Zerolog {
	var writers []io.Writer

	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	if cfg.FilePath != "" {
		// Rotation handled by lumberjack; a failed mkdir just skips file output.
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSizeMB,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAgeDays,
				Compress:   true,
			})
		}
	}

	var w io.Writer
	switch len(writers) {
	case 0:
		w = os.Stdout
	case 1:
		w = writers[0]
	default:
		w = zerolog.MultiLevelWriter(writers...)
	}

	zl := zerolog.New(w).Level(ParseLevel(cfg.Level)).With().Timestamp().Logger()
	return &Zerolog{log: zl}
}

// ParseLevel converts a string level to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	}
	return zerolog.InfoLevel
}

func emit(ev *zerolog.Event, msg string, fields []map[string]interface{}) {
	if len(fields) > 0 && fields[0] != nil {
		ev = ev.Fields(fields[0])
	}
	ev.Msg(msg)
}

// Debug logs a message at Debug level.
func (l *Zerolog) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	emit(l.log.Debug(), msg, fields)
}

// Info logs a message at Info level.
func (l *Zerolog) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	emit(l.log.Info(), msg, fields)
}

// Warn logs a message at Warning level.
func (l *Zerolog) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	emit(l.log.Warn(), msg, fields)
}

// Error logs an error message at Error level.
func (l *Zerolog) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	emit(l.log.Error().Err(err), msg, fields)
}
