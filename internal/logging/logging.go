// Package logging builds the zap logger used by the orgdir binaries and adapts
// it to the small logger interface consumed by internal/core.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Supported output formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// ParseLevel maps a level name to a zap level. Unknown names fall back to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New creates a zap logger.
// level: debug, info, warn, error (default info).
// format: json or console (default json).
// service is attached to every entry as service_name when non-empty.
func New(level, format, service string) (*zap.Logger, error) {
	var cfg zap.Config
	if format == FormatConsole {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.OutputPaths = []string{"stderr"}
		cfg.ErrorOutputPaths = []string{"stderr"}
	}
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(level))

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	if service != "" {
		logger = logger.With(zap.String("service_name", service))
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		logger = logger.With(zap.String("hostname", hostname))
	}
	return logger, nil
}

// Sugared adapts a zap logger to the Debug/Info/Warn/Error(msg, keysAndValues...)
// shape used by the core service.
type Sugared struct {
	s *zap.SugaredLogger
}

// Adapt wraps l. A nil logger yields a no-op adapter.
func Adapt(l *zap.Logger) Sugared {
	if l == nil {
		l = zap.NewNop()
	}
	return Sugared{s: l.Sugar()}
}

// Debug logs at debug level.
func (a Sugared) Debug(msg string, args ...any) { a.s.Debugw(msg, args...) }

// Info logs at info level.
func (a Sugared) Info(msg string, args ...any) { a.s.Infow(msg, args...) }

// Warn logs at warn level.
func (a Sugared) Warn(msg string, args ...any) { a.s.Warnw(msg, args...) }

// Error logs at error level.
func (a Sugared) Error(msg string, args ...any) { a.s.Errorw(msg, args...) }
