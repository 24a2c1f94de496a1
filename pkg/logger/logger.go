// Package logger provides leveled logging for the client binaries.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// Level represents the log level.
type Level int

const (
	LevelQuiet Level = iota
	LevelError
	LevelInfo
	LevelDebug
)

// Logger writes leveled, printf-style messages to a single output.
type Logger struct {
	mu     sync.Mutex
	level  Level
	out    *log.Logger
	prefix string
}

var defaultLogger = &Logger{
	level: LevelInfo,
	out:   log.New(os.Stderr, "", log.Ltime),
}

// SetLevel sets the global log level.
func SetLevel(level Level) {
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	defaultLogger.level = level
}

// SetOutput sets the output writer.
func SetOutput(w io.Writer) {
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	defaultLogger.out = log.New(w, "", log.Ltime)
}

// SetPrefix sets a prefix written before every message.
func SetPrefix(prefix string) {
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	defaultLogger.prefix = prefix
}

// FromVerbosity maps a -v count to a level: 0 errors only, 1 info, 2+ debug.
func FromVerbosity(n int) Level {
	switch {
	case n <= 0:
		return LevelError
	case n == 1:
		return LevelInfo
	default:
		return LevelDebug
	}
}

// ParseLevel parses a level string.
func ParseLevel(s string) Level {
	switch s {
	case "quiet", "q":
		return LevelQuiet
	case "error", "e":
		return LevelError
	case "info", "i":
		return LevelInfo
	case "debug", "d", "verbose", "v":
		return LevelDebug
	default:
		return LevelInfo
	}
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level > l.level {
		return
	}

	tag := ""
	switch level {
	case LevelError:
		tag = "[ERROR] "
	case LevelInfo:
		tag = "[INFO]  "
	case LevelDebug:
		tag = "[DEBUG] "
	}

	l.out.Printf("%s%s%s", l.prefix, tag, fmt.Sprintf(format, args...))
}

// Error logs an error message.
func Error(format string, args ...interface{}) {
	defaultLogger.log(LevelError, format, args...)
}

// Info logs an info message.
func Info(format string, args ...interface{}) {
	defaultLogger.log(LevelInfo, format, args...)
}

// Debug logs a debug message.
func Debug(format string, args ...interface{}) {
	defaultLogger.log(LevelDebug, format, args...)
}
