// Package axonlog provides the leveled logger used throughout axon: the
// Reactor (NewReactor) and the socket package (WithLogger) accept one
// (nil-safe: with none, nothing is logged) rather than writing to the
// standard logger directly.
//
// Unlike a single-subsystem driver's logger, axon is several independent
// goroutines — the Reactor's run loop, however many Executor workers are
// running, a ConsistentSocket's coroutines — all potentially logging at
// once, so Named tags each line with the subsystem that emitted it
// instead of leaving every line to look the same regardless of source.
package axonlog

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// Level is a logging severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Config holds logging configuration.
type Config struct {
	Level  Level
	Output io.Writer
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Output: os.Stderr,
	}
}

// Logger wraps stdlib log with level filtering and an optional component
// tag identifying which axon subsystem is logging.
type Logger struct {
	logger    *log.Logger
	level     Level
	component string
	mu        *sync.Mutex
}

// New creates a Logger from config. A nil config uses DefaultConfig.
func New(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	output := config.Output
	if output == nil {
		output = os.Stderr
	}
	return &Logger{
		logger: log.New(output, "", log.LstdFlags),
		level:  config.Level,
		mu:     &sync.Mutex{},
	}
}

// Discard returns a Logger that drops everything, for callers that pass
// no logger of their own.
func Discard() *Logger {
	return New(&Config{Level: LevelError + 1, Output: io.Discard})
}

// Named returns a Logger that shares l's destination and level but tags
// every line with component, e.g. Default().Named("reactor"). Safe to
// call on a nil Logger; returns nil, so callers can chain
// `logger.Named("x")` through a possibly-absent logger without a nil
// check at every call site.
func (l *Logger) Named(component string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{
		logger:    l.logger,
		level:     l.level,
		component: component,
		mu:        l.mu,
	}
}

var (
	defaultLogger *Logger
	defaultMu     sync.RWMutex
)

// Default returns the package-wide default logger, creating it on first use.
func Default() *Logger {
	defaultMu.RLock()
	if defaultLogger != nil {
		defer defaultMu.RUnlock()
		return defaultLogger
	}
	defaultMu.RUnlock()

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = New(nil)
	}
	return defaultLogger
}

// SetDefault replaces the package-wide default logger.
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}

func (l *Logger) log(level Level, prefix, msg string) {
	if l == nil || level < l.level {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.component != "" {
		l.logger.Printf("[%s] %s %s", l.component, prefix, msg)
		return
	}
	l.logger.Printf("%s %s", prefix, msg)
}

func (l *Logger) Debugf(format string, args ...any) {
	l.log(LevelDebug, "[DEBUG]", fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...any) {
	l.log(LevelInfo, "[INFO]", fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...any) {
	l.log(LevelWarn, "[WARN]", fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) {
	l.log(LevelError, "[ERROR]", fmt.Sprintf(format, args...))
}
