// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package logging wraps a zap SugaredLogger with the key/value methods the
// rest of claimgraph uses.
package logging

import (
	"errors"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a structured key/value logger.
type Logger struct {
	SugaredLogger *zap.SugaredLogger
}

// New builds a logger for mode: "prod"/"production" writes JSON at info
// level, anything else writes console output at debug level.
func New(mode string) (*Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(mode) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	zl, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{SugaredLogger: zl.Sugar()}, nil
}

// NewWithCore builds a logger on an existing core, e.g. a test observer.
func NewWithCore(core zapcore.Core) *Logger {
	return &Logger{SugaredLogger: zap.New(core).Sugar()}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// Sync flushes buffered entries, ignoring errors from unsyncable outputs.
func (l *Logger) Sync() {
	_ = l.SugaredLogger.Sync()
}

// Debug logs msg with key/value pairs at debug level.
func (l *Logger) Debug(msg string, keysAndValues ...any) {
	l.SugaredLogger.Debugw(msg, keysAndValues...)
}

// Info logs msg with key/value pairs at info level.
func (l *Logger) Info(msg string, keysAndValues ...any) {
	l.SugaredLogger.Infow(msg, keysAndValues...)
}

// Warn logs msg with key/value pairs at warn level.
func (l *Logger) Warn(msg string, keysAndValues ...any) {
	l.SugaredLogger.Warnw(msg, keysAndValues...)
}

// Error logs msg with key/value pairs at error level.
func (l *Logger) Error(msg string, keysAndValues ...any) {
	l.SugaredLogger.Errorw(msg, keysAndValues...)
}

// Err logs err at error level. Context values attached with goerr.V are
// logged under "values".
func (l *Logger) Err(msg string, err error, keysAndValues ...any) {
	l.SugaredLogger.Errorw(msg, append(keysAndValues, ErrorFields(err)...)...)
}

// With returns a child logger that adds keysAndValues to every entry.
func (l *Logger) With(keysAndValues ...any) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(keysAndValues...)}
}

// ErrorFields returns the key/value pairs describing err.
func ErrorFields(err error) []any {
	if err == nil {
		return nil
	}
	fields := []any{"error", err.Error()}
	var ge *goerr.Error
	if errors.As(err, &ge) {
		if values := ge.Values(); len(values) > 0 {
			fields = append(fields, "values", values)
		}
	}
	return fields
}
