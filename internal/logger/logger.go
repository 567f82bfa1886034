// Package logger configures the process-wide structured logger.
package logger

import (
	"io"
	"log/slog"
	"os"
)

// Setup returns a JSON logger writing records at level or above to w.
func Setup(w io.Writer, level slog.Level) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// SetupDefault installs a JSON logger on stdout as the slog default and
// returns it.
func SetupDefault(level slog.Level) *slog.Logger {
	l := Setup(os.Stdout, level)
	slog.SetDefault(l)
	return l
}
