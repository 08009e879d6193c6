// Package logging provides the structured logger used across veld.
package logging

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config configures the global logger.
type Config struct {
	Level   string    // zerolog level name, defaults to "info"
	Output  io.Writer // defaults to os.Stderr
	Pretty  bool      // human-readable console output instead of JSON
	Version string    // attached to every log entry
}

var (
	mu          sync.RWMutex
	base        zerolog.Logger
	initialized bool
)

// Configure initializes the global logger. Safe to call once at startup;
// later calls replace the global logger entirely.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()

	level := zerolog.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var writer io.Writer = os.Stderr
	if cfg.Output != nil {
		writer = cfg.Output
	}
	if cfg.Pretty {
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: time.Kitchen}
	}

	builder := zerolog.New(writer).With().Timestamp()
	if cfg.Version != "" {
		builder = builder.Str("version", cfg.Version)
	}
	base = builder.Logger()
	initialized = true
}

func ensureInitialized() {
	mu.RLock()
	if initialized {
		mu.RUnlock()
		return
	}
	mu.RUnlock()
	Configure(Config{})
}

func logger() zerolog.Logger {
	ensureInitialized()
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Base returns the global logger by value.
func Base() zerolog.Logger {
	return logger()
}

// WithComponent returns a child logger tagged with the given component name
// (e.g. "scheduler", "mux", "cenc").
func WithComponent(component string) zerolog.Logger {
	return logger().With().Str("component", component).Logger()
}

// WithStream returns a child logger tagged with the stream/track being
// processed, for correlating scheduler/merger/mux log lines across a run.
func WithStream(streamID string) zerolog.Logger {
	return logger().With().Str("stream_id", streamID).Logger()
}

type ctxKey int

const loggerCtxKey ctxKey = 0

// ContextWithLogger attaches a logger to a context for propagation through
// call chains that don't otherwise have a natural place to thread one
// (scheduler worker goroutines, mux subprocess invocation).
func ContextWithLogger(ctx context.Context, l zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey, l)
}

// FromContext returns the logger attached to ctx, or the global logger if
// none was attached.
func FromContext(ctx context.Context) zerolog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerCtxKey).(zerolog.Logger); ok {
			return l
		}
	}
	return logger()
}
