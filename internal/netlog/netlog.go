// Package netlog provides the ambient logging facility shared by every
// subsystem. It wraps the standard library logger with level gating driven
// by the agent's log_level configuration key, matching the plain log.Printf
// style the rest of the codebase uses at lifecycle boundaries.
package netlog

import (
	"log"
	"os"
	"sync/atomic"
)

// Level is an ordered verbosity level.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a config string to a Level, defaulting to LevelInfo for
// anything unrecognized.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger gates *log.Logger output by level. Create one with New; the zero
// value has no underlying *log.Logger and cannot log.
type Logger struct {
	level atomic.Int32
	std   *log.Logger
}

// New creates a Logger writing to the given file (os.Stderr if nil) at the
// given level.
func New(level Level, file *os.File) *Logger {
	if file == nil {
		file = os.Stderr
	}
	l := &Logger{std: log.New(file, "", log.LstdFlags)}
	l.level.Store(int32(level))
	return l
}

// SetLevel changes the minimum level that will be logged.
func (l *Logger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

func (l *Logger) enabled(level Level) bool {
	return int32(level) >= l.level.Load()
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	if l.enabled(LevelDebug) {
		l.std.Printf("DEBUG "+format, args...)
	}
}

func (l *Logger) Infof(format string, args ...interface{}) {
	if l.enabled(LevelInfo) {
		l.std.Printf("INFO "+format, args...)
	}
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	if l.enabled(LevelWarn) {
		l.std.Printf("WARN "+format, args...)
	}
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	if l.enabled(LevelError) {
		l.std.Printf("ERROR "+format, args...)
	}
}

// Default is the package-level logger used by subsystems that are not
// given an explicit Logger at construction.
var Default = New(LevelInfo, nil)
