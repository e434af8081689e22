package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
)

type LogLevel int

const (
	TRACE LogLevel = iota
	DEBUG
	INFO
	WARN
	ERROR
)

var (
	mu   sync.RWMutex
	base hclog.Logger

	currentLevel LogLevel
)

func init() {
	currentLevel = levelFromEnv()
	base = newLogger(os.Stdout, currentLevel)
}

func levelFromEnv() LogLevel {
	lvl := os.Getenv("DNWS_LOG_LEVEL")
	if lvl == "" {
		return DEBUG
	}
	return ParseLevel(lvl)
}

// ParseLevel converts a level name into a LogLevel, defaulting to DEBUG.
func ParseLevel(lvl string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(lvl)) {
	case "TRACE":
		return TRACE
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return DEBUG
	}
}

func (l LogLevel) hclogLevel() hclog.Level {
	switch l {
	case TRACE:
		return hclog.Trace
	case DEBUG:
		return hclog.Debug
	case INFO:
		return hclog.Info
	case WARN:
		return hclog.Warn
	default:
		return hclog.Error
	}
}

func newLogger(out io.Writer, level LogLevel) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   "dnws",
		Level:  level.hclogLevel(),
		Output: out,
	})
}

// SetOutput redirects all log output, keeping the current level.
func SetOutput(out io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	base = newLogger(out, currentLevel)
}

// SetLevel changes the minimum level that is emitted.
func SetLevel(level LogLevel) {
	mu.Lock()
	defer mu.Unlock()
	currentLevel = level
	base.SetLevel(level.hclogLevel())
}

func current() hclog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Level check functions
func IsTraceEnabled() bool {
	return GetCurrentLevel() <= TRACE
}

func IsDebugEnabled() bool {
	return GetCurrentLevel() <= DEBUG
}

func IsInfoEnabled() bool {
	return GetCurrentLevel() <= INFO
}

func IsWarnEnabled() bool {
	return GetCurrentLevel() <= WARN
}

func IsErrorEnabled() bool {
	return GetCurrentLevel() <= ERROR
}

// Trace level logging
func Tracef(format string, v ...interface{}) {
	if IsTraceEnabled() {
		current().Trace(fmt.Sprintf(format, v...))
	}
}

func Traceln(msg string) {
	if IsTraceEnabled() {
		current().Trace(msg)
	}
}

// Debug level logging
func Debugf(format string, v ...interface{}) {
	if IsDebugEnabled() {
		current().Debug(fmt.Sprintf(format, v...))
	}
}

func Debugln(msg string) {
	if IsDebugEnabled() {
		current().Debug(msg)
	}
}

// Info level logging
func Infof(format string, v ...interface{}) {
	if IsInfoEnabled() {
		current().Info(fmt.Sprintf(format, v...))
	}
}

func Infoln(msg string) {
	if IsInfoEnabled() {
		current().Info(msg)
	}
}

// Warn level logging
func Warnf(format string, v ...interface{}) {
	if IsWarnEnabled() {
		current().Warn(fmt.Sprintf(format, v...))
	}
}

func Warnln(msg string) {
	if IsWarnEnabled() {
		current().Warn(msg)
	}
}

// Error level logging
func Errorf(format string, v ...interface{}) {
	if IsErrorEnabled() {
		current().Error(fmt.Sprintf(format, v...))
	}
}

func Errorln(msg string) {
	if IsErrorEnabled() {
		current().Error(msg)
	}
}

// GetCurrentLevel returns the current log level
func GetCurrentLevel() LogLevel {
	mu.RLock()
	defer mu.RUnlock()
	return currentLevel
}
