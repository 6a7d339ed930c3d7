// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// FileConfig enables rotated file output when Path is set.
type FileConfig struct {
	// Path is the log file location; empty disables file output.
	Path string

	// MaxSizeMB rotates the file after it reaches this size.
	MaxSizeMB int

	// MaxBackups caps the number of rotated files kept.
	MaxBackups int

	// Compress gzips rotated files.
	Compress bool
}

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer

	// File configures optional rotated file output alongside Output.
	File FileConfig
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	var output io.Writer = cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	if cfg.File.Path != "" {
		if w, err := fileWriter(cfg.File); err == nil {
			output = zerolog.MultiLevelWriter(output, w)
		} else {
			log.Warn().Str("path", cfg.File.Path).Err(err).Msg("File logging disabled")
		}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// fileWriter builds a rotating writer for the configured log file.
func fileWriter(cfg FileConfig) (io.Writer, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 100
	}
	maxBackups := cfg.MaxBackups
	if maxBackups <= 0 {
		maxBackups = 10
	}

	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		Compress:   cfg.Compress,
		LocalTime:  true,
	}, nil
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Lookup flow (layer hit, promotion)
//   - Per-task download outcomes
//   - Scope replacements
//
// Info: Normal operation events
//   - Batch start/complete/cancel
//   - Eviction sweep summaries
//   - Daemon startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Per-task fetch failures (batch continues)
//   - Eviction failures on one product directory
//   - Corrupt meta sidecars
//
// Error: Error conditions requiring attention
//   - Batch-level aborts
//   - Cache root initialization failures
//
// Context Fields:
//   - batch_id: Batch correlation id
//   - product_id / folder / filename: Artifact identity
//   - available / total: Batch progress
//   - layer: Cache layer for hits (memory, disk)
