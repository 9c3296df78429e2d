// Package logging provides structured JSON application logging with
// correlation-ID propagation through context.
package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// ApplicationLogger defines the interface for structured application logging.
type ApplicationLogger interface {
	Debug(ctx context.Context, message string, fields Fields)
	Info(ctx context.Context, message string, fields Fields)
	Warn(ctx context.Context, message string, fields Fields)
	Error(ctx context.Context, message string, fields Fields)
	ErrorWithError(ctx context.Context, err error, message string, fields Fields)
	LogPerformance(ctx context.Context, operation string, duration time.Duration, fields Fields)
	WithComponent(component string) ApplicationLogger
}

// Fields represents structured logging fields.
type Fields map[string]interface{}

// Config represents logger configuration.
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // json, text
	Output string // stdout, stderr, buffer (for testing)
}

// LogEntry is the wire structure of a single log line.
type LogEntry struct {
	Timestamp     string                 `json:"timestamp"`
	Level         string                 `json:"level"`
	Message       string                 `json:"message"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Component     string                 `json:"component,omitempty"`
	Operation     string                 `json:"operation,omitempty"`
	Duration      string                 `json:"duration,omitempty"`
	Error         string                 `json:"error,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

type logLevel int

const (
	levelDebug logLevel = iota
	levelInfo
	levelWarn
	levelError
)

func parseLevel(level string) (logLevel, error) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return levelDebug, nil
	case "INFO", "":
		return levelInfo, nil
	case "WARN", "WARNING":
		return levelWarn, nil
	case "ERROR":
		return levelError, nil
	default:
		return levelInfo, fmt.Errorf("unknown log level: %s", level)
	}
}

func (l logLevel) String() string {
	switch l {
	case levelDebug:
		return "DEBUG"
	case levelWarn:
		return "WARN"
	case levelError:
		return "ERROR"
	case levelInfo:
		return "INFO"
	default:
		return "INFO"
	}
}

type applicationLoggerImpl struct {
	config    Config
	level     logLevel
	component string
	logger    *log.Logger
	buffer    *bytes.Buffer // testing only
	mu        *sync.Mutex
}

// NewApplicationLogger creates a new application logger.
func NewApplicationLogger(config Config) (ApplicationLogger, error) {
	level, err := parseLevel(config.Level)
	if err != nil {
		return nil, err
	}
	if config.Format != "" && config.Format != "json" && config.Format != "text" {
		return nil, fmt.Errorf("unknown log format: %s", config.Format)
	}

	impl := &applicationLoggerImpl{
		config: config,
		level:  level,
		mu:     &sync.Mutex{},
	}

	switch config.Output {
	case "buffer":
		impl.buffer = &bytes.Buffer{}
		impl.logger = log.New(impl.buffer, "", 0)
	case "stderr":
		impl.logger = log.New(os.Stderr, "", 0)
	default:
		impl.logger = log.New(os.Stdout, "", 0)
	}

	return impl, nil
}

// Debug logs a debug message.
func (l *applicationLoggerImpl) Debug(ctx context.Context, message string, fields Fields) {
	l.write(ctx, levelDebug, message, "", 0, nil, fields)
}

// Info logs an info message.
func (l *applicationLoggerImpl) Info(ctx context.Context, message string, fields Fields) {
	l.write(ctx, levelInfo, message, "", 0, nil, fields)
}

// Warn logs a warning message.
func (l *applicationLoggerImpl) Warn(ctx context.Context, message string, fields Fields) {
	l.write(ctx, levelWarn, message, "", 0, nil, fields)
}

// Error logs an error message.
func (l *applicationLoggerImpl) Error(ctx context.Context, message string, fields Fields) {
	l.write(ctx, levelError, message, "", 0, nil, fields)
}

// ErrorWithError logs an error message with the causing error attached.
func (l *applicationLoggerImpl) ErrorWithError(ctx context.Context, err error, message string, fields Fields) {
	l.write(ctx, levelError, message, "", 0, err, fields)
}

// LogPerformance logs the duration of an operation at info level.
func (l *applicationLoggerImpl) LogPerformance(
	ctx context.Context,
	operation string,
	duration time.Duration,
	fields Fields,
) {
	l.write(ctx, levelInfo, "operation completed", operation, duration, nil, fields)
}

// WithComponent returns a logger whose entries carry the component name.
func (l *applicationLoggerImpl) WithComponent(component string) ApplicationLogger {
	clone := *l
	clone.component = component
	return &clone
}

func (l *applicationLoggerImpl) write(
	ctx context.Context,
	level logLevel,
	message, operation string,
	duration time.Duration,
	err error,
	fields Fields,
) {
	if level < l.level {
		return
	}

	entry := LogEntry{
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		Level:         level.String(),
		Message:       message,
		CorrelationID: CorrelationIDFromContext(ctx),
		Component:     l.component,
		Operation:     operation,
	}
	if duration > 0 {
		entry.Duration = duration.String()
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if len(fields) > 0 {
		entry.Metadata = fields
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.config.Format == "text" {
		l.logger.Print(formatText(entry))
		return
	}

	data, marshalErr := json.Marshal(entry)
	if marshalErr != nil {
		l.logger.Printf(`{"level":"ERROR","message":"failed to marshal log entry: %v"}`, marshalErr)
		return
	}
	l.logger.Print(string(data))
}

func formatText(entry LogEntry) string {
	var b strings.Builder
	b.WriteString(entry.Timestamp)
	b.WriteString(" [")
	b.WriteString(entry.Level)
	b.WriteString("] ")
	if entry.Component != "" {
		b.WriteString(entry.Component)
		b.WriteString(": ")
	}
	b.WriteString(entry.Message)
	if entry.Error != "" {
		b.WriteString(" error=")
		b.WriteString(entry.Error)
	}
	for k, v := range entry.Metadata {
		fmt.Fprintf(&b, " %s=%v", k, v)
	}
	return b.String()
}

// Buffer returns the captured output of a buffer-backed logger, used by
// tests to assert on emitted entries.
func Buffer(logger ApplicationLogger) string {
	impl, ok := logger.(*applicationLoggerImpl)
	if !ok || impl.buffer == nil {
		return ""
	}
	impl.mu.Lock()
	defer impl.mu.Unlock()
	return impl.buffer.String()
}
