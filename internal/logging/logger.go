package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

// LogLevel represents the severity level of a log message
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
	LevelFatal LogLevel = "fatal"
)

// Logger provides structured JSON logging. Output defaults to stderr so
// command output on stdout stays machine-readable.
type Logger struct {
	mu      sync.Mutex
	output  io.Writer
	level   LogLevel
	service string
}

// LoggerOption is a function that configures a Logger
type LoggerOption func(*Logger)

// WithOutput sets the output writer for the logger
func WithOutput(w io.Writer) LoggerOption {
	return func(l *Logger) {
		l.output = w
	}
}

// WithLevel sets the minimum log level
func WithLevel(level LogLevel) LoggerOption {
	return func(l *Logger) {
		l.level = level
	}
}

// WithService sets the service name for logs
func WithService(service string) LoggerOption {
	return func(l *Logger) {
		l.service = service
	}
}

// NewLogger creates a new Logger with the specified options
func NewLogger(opts ...LoggerOption) *Logger {
	logger := &Logger{
		output:  os.Stderr,
		level:   LevelInfo,
		service: "sheetvault",
	}

	for _, opt := range opts {
		opt(logger)
	}

	return logger
}

// SetLevel changes the minimum log level at runtime.
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// ParseLevel maps a config string to a LogLevel, defaulting to info.
func ParseLevel(s string) LogLevel {
	switch LogLevel(s) {
	case LevelDebug, LevelInfo, LevelWarn, LevelError, LevelFatal:
		return LogLevel(s)
	default:
		return LevelInfo
	}
}

// logEntry represents a structured log entry
type logEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     LogLevel               `json:"level"`
	Service   string                 `json:"service"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// outputLog writes a log entry to the output
func (l *Logger) outputLog(entry logEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	entry.Service = l.service

	data, err := json.Marshal(entry)
	if err != nil {
		log.Printf("failed to marshal log entry: %v", err)
		return
	}

	fmt.Fprintln(l.output, string(data))
}

// shouldLog checks if a log level should be logged
func (l *Logger) shouldLog(level LogLevel) bool {
	levels := map[LogLevel]int{
		LevelDebug: 0,
		LevelInfo:  1,
		LevelWarn:  2,
		LevelError: 3,
		LevelFatal: 4,
	}

	l.mu.Lock()
	min := l.level
	l.mu.Unlock()

	return levels[level] >= levels[min]
}

// log outputs a log message with the specified level and fields
func (l *Logger) log(level LogLevel, message string, fields map[string]interface{}) {
	if !l.shouldLog(level) {
		return
	}

	l.outputLog(logEntry{
		Level:   level,
		Message: message,
		Fields:  fields,
	})

	if level == LevelFatal {
		os.Exit(1)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(message string, fields ...interface{}) {
	l.log(LevelDebug, message, parseFields(fields))
}

// Info logs an info message
func (l *Logger) Info(message string, fields ...interface{}) {
	l.log(LevelInfo, message, parseFields(fields))
}

// Warn logs a warning message
func (l *Logger) Warn(message string, fields ...interface{}) {
	l.log(LevelWarn, message, parseFields(fields))
}

// Error logs an error message
func (l *Logger) Error(message string, fields ...interface{}) {
	l.log(LevelError, message, parseFields(fields))
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(message string, fields ...interface{}) {
	l.log(LevelFatal, message, parseFields(fields))
}

// parseFields parses a variable number of key-value pairs into a map.
// Expected format: key1, value1, key2, value2, ...
func parseFields(fields []interface{}) map[string]interface{} {
	if len(fields) == 0 {
		return nil
	}

	fieldMap := make(map[string]interface{})
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		fieldMap[key] = fields[i+1]
	}

	return fieldMap
}
