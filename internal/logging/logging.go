// Package logging builds the slog loggers shared by the marketplace binaries.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// New creates an slog.Logger for env writing to stdout.
// In production it returns a JSON handler at info level.
// Otherwise, it returns a text handler at debug level.
func New(env string) *slog.Logger {
	return NewWithWriter(env, os.Stdout)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(env string, w io.Writer) *slog.Logger {
	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}
	return slog.New(handler)
}
