package logger

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"propMonitor/internal/ports"
)

// ZapLogger implements the ports.Logger interface on top of a zap.Logger.
type ZapLogger struct {
	logger *zap.Logger
	level  LogLevel
}

// LogLevel defines the logging level.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string level to LogLevel.
func ParseLevel(levelStr string) LogLevel {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo // Default to Info
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// NewZapLogger builds a JSON production logger writing to stderr at the given level.
func NewZapLogger(level LogLevel) (*ZapLogger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level.zapLevel())
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &ZapLogger{logger: z, level: level}, nil
}

// NewFromZap wraps an existing zap logger, e.g. zap.NewNop() in tests.
func NewFromZap(z *zap.Logger) *ZapLogger {
	return &ZapLogger{logger: z, level: LevelDebug}
}

var _ ports.Logger = (*ZapLogger)(nil)

// Zap exposes the underlying zap logger.
func (l *ZapLogger) Zap() *zap.Logger {
	return l.logger
}

// Level returns the configured threshold.
func (l *ZapLogger) Level() LogLevel {
	return l.level
}

// Sync flushes buffered entries.
func (l *ZapLogger) Sync() error {
	return l.logger.Sync()
}

// toZapFields converts the first field map into zap fields with stable ordering.
func toZapFields(err error, fields ...ports.Fields) []zap.Field {
	out := make([]zap.Field, 0, 4)
	if err != nil {
		out = append(out, zap.Error(err))
	}
	if len(fields) == 0 || fields[0] == nil {
		return out
	}
	keys := make([]string, 0, len(fields[0]))
	for k := range fields[0] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, zap.Any(k, fields[0][k]))
	}
	return out
}

// Debug logs a message at Debug level.
func (l *ZapLogger) Debug(ctx context.Context, msg string, fields ...ports.Fields) {
	l.logger.Debug(msg, toZapFields(nil, fields...)...)
}

// Info logs a message at Info level.
func (l *ZapLogger) Info(ctx context.Context, msg string, fields ...ports.Fields) {
	l.logger.Info(msg, toZapFields(nil, fields...)...)
}

// Warn logs a message at Warning level.
func (l *ZapLogger) Warn(ctx context.Context, msg string, fields ...ports.Fields) {
	l.logger.Warn(msg, toZapFields(nil, fields...)...)
}

// Error logs an error message at Error level.
func (l *ZapLogger) Error(ctx context.Context, err error, msg string, fields ...ports.Fields) {
	l.logger.Error(msg, toZapFields(err, fields...)...)
}
