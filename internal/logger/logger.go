package logger

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"strings"
	"time"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func ParseLevel(s string) Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return DEBUG
	case "WARN":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

type Logger struct {
	level Level
	out   io.Writer
}

type entry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

var defaultLogger = &Logger{level: INFO, out: os.Stderr}

func New(level Level, out io.Writer) *Logger {
	return &Logger{level: level, out: out}
}

func SetLevel(level Level) {
	defaultLogger.level = level
}

func (l *Logger) write(level Level, message string, fields map[string]interface{}) {
	if level < l.level {
		return
	}

	e := entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level.String(),
		Message:   message,
		Fields:    redact(fields),
	}

	line, err := json.Marshal(e)
	if err != nil {
		log.Printf("failed to marshal log entry: %v", err)
		return
	}
	if _, err := l.out.Write(append(line, '\n')); err != nil {
		log.Printf("failed to write log entry: %v", err)
	}
}

func (l *Logger) Debug(message string, fields ...map[string]interface{}) {
	l.write(DEBUG, message, merge(fields...))
}

func (l *Logger) Info(message string, fields ...map[string]interface{}) {
	l.write(INFO, message, merge(fields...))
}

func (l *Logger) Warn(message string, fields ...map[string]interface{}) {
	l.write(WARN, message, merge(fields...))
}

func (l *Logger) Error(message string, fields ...map[string]interface{}) {
	l.write(ERROR, message, merge(fields...))
}

// Package-level convenience functions on the default logger.
func Debug(message string, fields ...map[string]interface{}) {
	defaultLogger.Debug(message, fields...)
}

func Info(message string, fields ...map[string]interface{}) {
	defaultLogger.Info(message, fields...)
}

func Warn(message string, fields ...map[string]interface{}) {
	defaultLogger.Warn(message, fields...)
}

func Error(message string, fields ...map[string]interface{}) {
	defaultLogger.Error(message, fields...)
}

func merge(fieldMaps ...map[string]interface{}) map[string]interface{} {
	if len(fieldMaps) == 0 {
		return nil
	}
	result := make(map[string]interface{})
	for _, fields := range fieldMaps {
		for k, v := range fields {
			result[k] = v
		}
	}
	return result
}

var sensitiveKeys = []string{
	"license_key", "key", "secret", "signature", "token", "password", "authorization",
}

// redact masks values whose keys look like credentials so license keys and
// webhook secrets never land in logs verbatim.
func redact(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if !sensitive(k) {
			out[k] = v
			continue
		}
		if str, ok := v.(string); ok && len(str) > 8 {
			out[k] = str[:3] + "..." + str[len(str)-3:]
		} else {
			out[k] = "[REDACTED]"
		}
	}
	return out
}

func sensitive(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

func init() {
	// Keep test output readable.
	if os.Getenv("GO_ENV") == "test" || strings.Contains(os.Args[0], ".test") {
		SetLevel(WARN)
		return
	}
	SetLevel(ParseLevel(os.Getenv("LOG_LEVEL")))
}
