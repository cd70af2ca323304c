// Package logging provides the structured logger used across go-blur.
//
// Logger wraps zap. Console output is human readable in development mode and
// JSON otherwise; when a log file is configured, JSON entries are also teed
// to a rotating file. NewNop returns a logger that discards everything, which
// is what library code falls back to when no logger is injected.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the logger's outputs.
type Config struct {
	// Level is the minimum level written to every output.
	Level zapcore.Level
	// Development switches the console to the colored console encoder.
	Development bool
	// FilePath enables a rotating JSON log file when non-empty.
	FilePath string
	// File configures rotation for FilePath.
	File FileWriterConfig
	// Console receives console output. Nil uses os.Stderr.
	Console io.Writer
}

// Logger is the logging organism that wraps zap.Logger.
//
// This organism composes:
//   - FileWriter molecule (log file rotation via lumberjack)
//   - MultiCore molecule (tee output to console + file)
//
// Example:
//
//	logger, err := NewLogger(Config{Level: InfoLevel, FilePath: "blur.log"})
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	logger.Info("band submitted", BandFields(0, 0, 480, 0)...)
type Logger struct {
	zap   *zap.Logger
	sugar *zap.SugaredLogger
}

// NewLogger builds a Logger from cfg. The log file's directory is created
// if needed.
func NewLogger(cfg Config) (*Logger, error) {
	console := cfg.Console
	if console == nil {
		console = os.Stderr
	}

	var fileWriter zapcore.WriteSyncer
	if cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		fileWriter = NewFileWriterWithConfig(cfg.FilePath, cfg.File)
	}

	core := NewMultiCore(cfg.Level, zapcore.AddSync(console), fileWriter, cfg.Development)
	return FromZap(zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))), nil
}

// NewNop returns a Logger that discards all entries.
func NewNop() *Logger {
	return FromZap(zap.NewNop())
}

// FromZap wraps an existing zap logger. Tests use it with zaptest and
// zaptest/observer cores.
func FromZap(z *zap.Logger) *Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return &Logger{zap: z, sugar: z.Sugar()}
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error {
	if l == nil || l.zap == nil {
		return nil
	}
	return l.zap.Sync()
}

// Debug logs a message at DebugLevel with optional structured fields.
func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.zap.Debug(msg, fields...)
}

// Info logs a message at InfoLevel with optional structured fields.
func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.zap.Info(msg, fields...)
}

// Warn logs a message at WarnLevel with optional structured fields.
func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.zap.Warn(msg, fields...)
}

// Error logs a message at ErrorLevel with optional structured fields.
func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.zap.Error(msg, fields...)
}

// Infof logs a formatted message at InfoLevel.
func (l *Logger) Infof(template string, args ...interface{}) {
	l.sugar.Infof(template, args...)
}

// Debugf logs a formatted message at DebugLevel.
func (l *Logger) Debugf(template string, args ...interface{}) {
	l.sugar.Debugf(template, args...)
}

// With creates a child logger whose entries all carry fields.
//
// Example:
//
//	runLogger := logger.With(zap.String("run_id", id.String()))
func (l *Logger) With(fields ...zap.Field) *Logger {
	return FromZap(l.zap.With(fields...))
}

// Named adds a sub-logger name, e.g. "dispatch" or "device".
func (l *Logger) Named(name string) *Logger {
	return FromZap(l.zap.Named(name))
}

// Zap returns the underlying zap.Logger.
func (l *Logger) Zap() *zap.Logger {
	return l.zap
}
