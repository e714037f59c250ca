// Package obs is the index's one touchpoint with structured logging. It
// exists so the facade never imports log/slog directly, keeping a future
// backend swap to a single file.
package obs

import "log/slog"

// Default returns the standard library's default logger.
func Default() *slog.Logger {
	return slog.Default()
}

// Discard returns a logger that drops everything, for tests that don't
// want state-transition noise.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
