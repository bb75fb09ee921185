// Package logger holds the process-wide structured logger used by hbrest.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/exp/slog"
)

var (
	once    sync.Once
	current atomic.Pointer[slog.Logger]

	fallbackOnce sync.Once
	fallback     *slog.Logger
)

// Config holds logger configuration
type Config struct {
	Level     string `mapstructure:"level"`  // DEBUG, INFO, WARN, ERROR
	Format    string `mapstructure:"format"` // json, text
	AddSource bool   `mapstructure:"addsource"`
}

// ParseLevel maps a level name to a slog.Level. Unknown names fall back to INFO.
func ParseLevel(name string) slog.Level {
	switch strings.ToUpper(name) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a logger writing to w without touching the global one.
func New(cfg Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Init initializes the global logger and makes it the slog default. Only
// the first call has an effect. Output goes to stderr so scan results can
// own stdout.
func Init(cfg Config) {
	once.Do(func() {
		l := New(cfg, os.Stderr)
		current.Store(l)
		slog.SetDefault(l)
	})
}

// Get returns the global logger. Before Init it returns an INFO text logger
// on stderr and leaves the slog and log package defaults alone.
func Get() *slog.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	fallbackOnce.Do(func() {
		fallback = New(Config{Level: "INFO", Format: "text"}, os.Stderr)
	})
	return fallback
}

// With returns the global logger annotated with args.
func With(args ...any) *slog.Logger {
	return Get().With(args...)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Helper functions for quick logging
func Info(msg string, args ...any) {
	Get().Info(msg, args...)
}

func Error(msg string, args ...any) {
	Get().Error(msg, args...)
}

func Debug(msg string, args ...any) {
	Get().Debug(msg, args...)
}

func Warn(msg string, args ...any) {
	Get().Warn(msg, args...)
}
