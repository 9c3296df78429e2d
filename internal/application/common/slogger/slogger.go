// Package slogger is the process-wide logging facade. It lazily initializes
// a default JSON logger and exposes level helpers so call sites stay terse.
package slogger

import (
	"context"
	"sync"
	"time"

	"docmender/internal/application/common/logging"
)

// Fields is an alias for logging.Fields for convenience.
type Fields = logging.Fields

var (
	defaultLogger logging.ApplicationLogger //nolint:gochecknoglobals // singleton logging infrastructure
	defaultOnce   sync.Once                 //nolint:gochecknoglobals // thread-safe singleton initialization
	overrideMu    sync.RWMutex              //nolint:gochecknoglobals // guards test overrides
)

func getLogger() logging.ApplicationLogger {
	overrideMu.RLock()
	logger := defaultLogger
	overrideMu.RUnlock()
	if logger != nil {
		return logger
	}

	defaultOnce.Do(func() {
		initialized, err := logging.NewApplicationLogger(logging.Config{
			Level:  "INFO",
			Format: "json",
			Output: "stdout",
		})
		if err != nil {
			panic("failed to initialize logger: " + err.Error())
		}
		overrideMu.Lock()
		if defaultLogger == nil {
			defaultLogger = initialized
		}
		overrideMu.Unlock()
	})

	overrideMu.RLock()
	defer overrideMu.RUnlock()
	return defaultLogger
}

// SetGlobalLogger replaces the process logger, used at startup once the
// configured level/format are known, and by tests.
func SetGlobalLogger(logger logging.ApplicationLogger) {
	overrideMu.Lock()
	defer overrideMu.Unlock()
	defaultLogger = logger
}

// Debug logs a debug message with context.
func Debug(ctx context.Context, msg string, fields Fields) {
	getLogger().Debug(ctx, msg, fields)
}

// Info logs an info message with context.
func Info(ctx context.Context, msg string, fields Fields) {
	getLogger().Info(ctx, msg, fields)
}

// Warn logs a warning message with context.
func Warn(ctx context.Context, msg string, fields Fields) {
	getLogger().Warn(ctx, msg, fields)
}

// Error logs an error message with context.
func Error(ctx context.Context, msg string, fields Fields) {
	getLogger().Error(ctx, msg, fields)
}

// ErrorWithError logs an error message with an error object and context.
func ErrorWithError(ctx context.Context, err error, msg string, fields Fields) {
	getLogger().ErrorWithError(ctx, err, msg, fields)
}

// Performance logs the duration of a completed operation.
func Performance(ctx context.Context, operation string, duration time.Duration, fields Fields) {
	getLogger().LogPerformance(ctx, operation, duration, fields)
}

// InfoNoCtx logs an info message without context.
func InfoNoCtx(msg string, fields Fields) {
	getLogger().Info(context.Background(), msg, fields)
}

// WarnNoCtx logs a warning message without context.
func WarnNoCtx(msg string, fields Fields) {
	getLogger().Warn(context.Background(), msg, fields)
}

// ErrorNoCtx logs an error message without context.
func ErrorNoCtx(msg string, fields Fields) {
	getLogger().Error(context.Background(), msg, fields)
}

// Field creates a single-field Fields map.
func Field(key string, value interface{}) Fields {
	return Fields{key: value}
}

// Fields2 creates a Fields map with two key-value pairs.
func Fields2(k1 string, v1 interface{}, k2 string, v2 interface{}) Fields {
	return Fields{k1: v1, k2: v2}
}

// Fields3 creates a Fields map with three key-value pairs.
func Fields3(k1 string, v1 interface{}, k2 string, v2 interface{}, k3 string, v3 interface{}) Fields {
	return Fields{k1: v1, k2: v2, k3: v3}
}

// WithComponent returns a logger scoped to a component name.
func WithComponent(component string) logging.ApplicationLogger {
	return getLogger().WithComponent(component)
}
