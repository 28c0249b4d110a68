// Package log is the reactor's logging front: plain calls, one minimum level
// chosen at startup, zerolog underneath.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type Level int8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	mu     sync.RWMutex
	level  = LevelInfo
	logger = newLogger(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339Nano})
)

func newLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger().Level(level.zerolog())
}

func (this Level) zerolog() zerolog.Level {
	switch this {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

func (this Level) String() string {
	switch this {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	}
	return fmt.Sprintf("level(%d)", int8(this))
}

// ParseLevel accepts debug, info, warn/warning and error, case-insensitive.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, errors.Errorf("unknown log level[%s]", s)
}

func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
	logger = logger.Level(l.zerolog())
}

func GetLevel() Level {
	mu.RLock()
	defer mu.RUnlock()
	return level
}

// SetOutput replaces the sink; the current level is kept.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger = newLogger(w)
}

func current() *zerolog.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	return &l
}

// With returns a child logger carrying one structured field.
func With(key string, value interface{}) zerolog.Logger {
	return current().With().Interface(key, value).Logger()
}

func Debug(v ...interface{}) {
	current().Debug().Msg(fmt.Sprint(v...))
}

func Debugf(format string, v ...interface{}) {
	current().Debug().Msgf(format, v...)
}

func Info(v ...interface{}) {
	current().Info().Msg(fmt.Sprint(v...))
}

func Infof(format string, v ...interface{}) {
	current().Info().Msgf(format, v...)
}

func Warn(v ...interface{}) {
	current().Warn().Msg(fmt.Sprint(v...))
}

func Warnf(format string, v ...interface{}) {
	current().Warn().Msgf(format, v...)
}

func Error(v ...interface{}) {
	current().Error().Msg(fmt.Sprint(v...))
}

func Errorf(format string, v ...interface{}) {
	current().Error().Msgf(format, v...)
}
