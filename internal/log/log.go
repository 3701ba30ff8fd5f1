package log

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var (
	mu         sync.RWMutex
	logger     zerolog.Logger
	loggerOnce sync.Once
)

// initLogger initializes the global logger to write to stderr with timestamps.
func initLogger() {
	loggerOnce.Do(func() {
		logger = newLogger(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		}, zerolog.InfoLevel)
	})
}

func newLogger(w io.Writer, lvl zerolog.Level) zerolog.Logger {
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// SetLevel changes the minimum level. Unknown values are treated as INFO.
func SetLevel(l Level) {
	initLogger()
	mu.Lock()
	logger = logger.Level(toZerolog(l))
	mu.Unlock()
}

// SetOutput redirects log output, keeping the current level. Mostly for tests.
func SetOutput(w io.Writer) {
	initLogger()
	mu.Lock()
	logger = newLogger(w, logger.GetLevel())
	mu.Unlock()
}

// ParseLevel maps a config string (case-insensitive) to a Level.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

func Debug(msg string, kv ...any) {
	logWithLevel(zerolog.DebugLevel, msg, nil, kv...)
}

func Info(msg string, kv ...any) {
	logWithLevel(zerolog.InfoLevel, msg, nil, kv...)
}

func Warn(msg string, kv ...any) {
	logWithLevel(zerolog.WarnLevel, msg, nil, kv...)
}

func Error(msg string, err error, kv ...any) {
	logWithLevel(zerolog.ErrorLevel, msg, err, kv...)
}

func logWithLevel(level zerolog.Level, msg string, err error, kv ...any) {
	initLogger()
	mu.RLock()
	l := logger
	mu.RUnlock()

	ev := l.WithLevel(level)
	if ev == nil {
		return
	}
	if err != nil {
		ev = ev.Err(err)
	}
	// Expect kv as pairs: key, value, key, value, ...
	// If odd number of args, last one is ignored.
	if len(kv) > 1 {
		ev = ev.Fields(kv[:len(kv)&^1])
	}
	ev.Msg(msg)
}

func toZerolog(l Level) zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Since is a small helper for "took" fields.
func Since(t time.Time) time.Duration {
	return time.Since(t).Round(time.Millisecond)
}
