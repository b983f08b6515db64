// Package log provides structured logging with stream context.
//
// Two logger variants are available:
//   - Logger: Non-sugared zap.Logger for stream paths (structured fields)
//   - SugaredLogger: Printf-style logging for CLI surfaces
//
// Use Logger.Sugar() to obtain a SugaredLogger when needed.
package log

import (
	"io"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pithecene-io/downlink/types"
)

// EnvLogLevel selects the minimum level: debug, info, warn or error.
const EnvLogLevel = "DOWNLINK_LOG_LEVEL"

// Logger provides structured logging with run context.
// All log entries include run_id and satellite_id.
type Logger struct {
	zap   *zap.Logger
	level zapcore.Level
}

// SugaredLogger provides printf-style logging for CLI surfaces.
type SugaredLogger struct {
	sugar *zap.SugaredLogger
}

// NewLogger creates a new logger with run context.
// Output defaults to os.Stderr; the level comes from DOWNLINK_LOG_LEVEL.
func NewLogger(meta *types.StreamMeta) *Logger {
	return newLoggerWithWriter(meta, os.Stderr, LevelFromEnv())
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zap: zap.NewNop(), level: zapcore.InfoLevel}
}

// LevelFromEnv parses DOWNLINK_LOG_LEVEL, defaulting to info.
func LevelFromEnv() zapcore.Level {
	lvl, ok := parseLevel(os.Getenv(EnvLogLevel))
	if !ok {
		return zapcore.InfoLevel
	}
	return lvl
}

func parseLevel(raw string) (zapcore.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug", "trace":
		return zapcore.DebugLevel, true
	case "info":
		return zapcore.InfoLevel, true
	case "warn", "warning":
		return zapcore.WarnLevel, true
	case "error":
		return zapcore.ErrorLevel, true
	default:
		return zapcore.InfoLevel, false
	}
}

func newCore(w io.Writer, level zapcore.Level) zapcore.Core {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
	return zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(w),
		level,
	)
}

// WithOutput returns a new logger with a different output writer.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	core := newCore(w, l.level)
	return &Logger{
		zap:   l.zap.WithOptions(zap.WrapCore(func(zapcore.Core) zapcore.Core { return core })),
		level: l.level,
	}
}

// newLoggerWithWriter creates a logger writing to the specified writer.
func newLoggerWithWriter(meta *types.StreamMeta, w io.Writer, level zapcore.Level) *Logger {
	contextFields := []zap.Field{
		zap.String("run_id", meta.RunID),
		zap.String("satellite_id", meta.SatelliteID),
	}
	if meta.PlanID != "" {
		contextFields = append(contextFields, zap.String("plan_id", meta.PlanID))
	}

	zapLogger := zap.New(newCore(w, level)).With(contextFields...)
	return &Logger{zap: zapLogger, level: level}
}

// With returns a logger carrying additional context fields, such as
// stream_index or attempt.
func (l *Logger) With(fields map[string]any) *Logger {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	zapFields := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		zapFields = append(zapFields, zap.Any(k, fields[k]))
	}
	return &Logger{zap: l.zap.With(zapFields...), level: l.level}
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, fields map[string]any) {
	l.zap.Debug(message, zap.Any("fields", fields))
}

// Info logs an info message.
func (l *Logger) Info(message string, fields map[string]any) {
	l.zap.Info(message, zap.Any("fields", fields))
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, fields map[string]any) {
	l.zap.Warn(message, zap.Any("fields", fields))
}

// Error logs an error message.
func (l *Logger) Error(message string, fields map[string]any) {
	l.zap.Error(message, zap.Any("fields", fields))
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

// Sugar returns a SugaredLogger for printf-style logging.
func (l *Logger) Sugar() *SugaredLogger {
	return &SugaredLogger{sugar: l.zap.Sugar()}
}

// Infof logs an info message with printf-style formatting.
func (s *SugaredLogger) Infof(template string, args ...any) {
	s.sugar.Infof(template, args...)
}

// Warnf logs a warning message with printf-style formatting.
func (s *SugaredLogger) Warnf(template string, args ...any) {
	s.sugar.Warnf(template, args...)
}

// With returns a SugaredLogger with additional context fields.
func (s *SugaredLogger) With(args ...any) *SugaredLogger {
	return &SugaredLogger{sugar: s.sugar.With(args...)}
}
