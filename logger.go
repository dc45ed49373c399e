package pqflash

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with pqflash-specific context.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithIndex adds the index prefix to the logger.
func (l *Logger) WithIndex(prefix string) *Logger {
	return &Logger{
		Logger: l.Logger.With("index", prefix),
	}
}

// LogOpen logs loading an index.
func (l *Logger) LogOpen(ctx context.Context, prefix string, points uint64, dim int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "open failed",
			"index", prefix,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "index opened",
			"index", prefix,
			"points", points,
			"dimension", dim,
		)
	}
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(ctx context.Context, k, resultsFound int, stats QueryStats, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"k", k,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "search completed",
			"k", k,
			"results", resultsFound,
			"ios", stats.NumIOs,
			"cache_hits", stats.CacheHits,
			"hops", stats.NumHops,
			"brute_force", stats.BruteForce,
		)
	}
}

// LogRangeSearch logs a range search operation.
func (l *Logger) LogRangeSearch(ctx context.Context, radius float32, resultsFound int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "range search failed",
			"radius", radius,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "range search completed",
			"radius", radius,
			"results", resultsFound,
		)
	}
}

// LogCacheBuild logs replacing the node cache.
func (l *Logger) LogCacheBuild(ctx context.Context, source string, nodes int, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "cache build failed",
			"source", source,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "cache built",
			"source", source,
			"nodes", nodes,
			"duration", duration,
		)
	}
}
