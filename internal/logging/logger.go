package logging

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
)

var logger atomic.Pointer[slog.Logger]

func init() {
	logger.Store(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
}

// Logger returns the process-wide JSON logger.
func Logger() *slog.Logger {
	return logger.Load()
}

// SetLogger replaces the process-wide logger and returns the previous one.
func SetLogger(l *slog.Logger) *slog.Logger {
	return logger.Swap(l)
}

// FromContext returns the process logger annotated with the request ID, if any.
func FromContext(ctx context.Context) *slog.Logger {
	l := Logger()
	if ctx == nil {
		return l
	}
	if id := GetRequestID(ctx); id != "" {
		return l.With("request_id", id)
	}
	return l
}
