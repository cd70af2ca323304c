package logging

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// Levels accepted by BLUR_LOG_LEVEL.
const (
	DebugLevel = zapcore.DebugLevel
	InfoLevel  = zapcore.InfoLevel
	WarnLevel  = zapcore.WarnLevel
	ErrorLevel = zapcore.ErrorLevel
)

// ParseLogLevelString maps a level name to a zap level, ignoring case and
// surrounding space. "warning" is accepted for warn. Empty or unknown names,
// and levels above error, return defaultLevel.
func ParseLogLevelString(levelStr string, defaultLevel zapcore.Level) zapcore.Level {
	name := strings.ToLower(strings.TrimSpace(levelStr))
	if name == "warning" {
		name = "warn"
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(name)); err != nil || name == "" || level > ErrorLevel {
		return defaultLevel
	}
	return level
}
