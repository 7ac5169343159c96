/**
 * Structured logging for the extraction review worker
 *
 * Thin prefix + level + key/value wrapper over the standard logger. The
 * minimum level comes from LOG_LEVEL so noisy per-span debug output can be
 * silenced in production without touching call sites.
 */

package logging

import (
	"fmt"
	"log"
	"os"
	"strings"
)

type level int

const (
	levelDebug level = iota
	levelInfo
	levelWarn
	levelError
)

var levelNames = map[level]string{
	levelDebug: "DEBUG",
	levelInfo:  "INFO",
	levelWarn:  "WARN",
	levelError: "ERROR",
}

// Logger provides leveled key/value logging with a component prefix.
type Logger struct {
	prefix   string
	minLevel level
	logger   *log.Logger
}

// NewLogger creates a logger for one component. The minimum level is read
// from LOG_LEVEL (debug, info, warn, error); unset means debug.
func NewLogger(prefix string) *Logger {
	return &Logger{
		prefix:   prefix,
		minLevel: levelFromEnv(),
		logger:   log.New(os.Stdout, fmt.Sprintf("[%s] ", prefix), log.LstdFlags),
	}
}

func levelFromEnv() level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "info":
		return levelInfo
	case "warn", "warning":
		return levelWarn
	case "error":
		return levelError
	}
	return levelDebug
}

// Debug logs a debug message with key-value pairs.
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.logWithKV(levelDebug, msg, keysAndValues...)
}

// Info logs an informational message with key-value pairs.
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.logWithKV(levelInfo, msg, keysAndValues...)
}

// Warn logs a warning message with key-value pairs.
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.logWithKV(levelWarn, msg, keysAndValues...)
}

// Error logs an error message with key-value pairs.
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.logWithKV(levelError, msg, keysAndValues...)
}

func (l *Logger) logWithKV(lv level, msg string, keysAndValues ...interface{}) {
	if lv < l.minLevel {
		return
	}

	var kv strings.Builder
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fmt.Fprintf(&kv, " %v=%v", keysAndValues[i], keysAndValues[i+1])
	}
	l.logger.Printf("[%s] %s%s", levelNames[lv], msg, kv.String())
}
