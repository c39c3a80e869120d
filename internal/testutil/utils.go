package testutil

import (
	"io"
	"log/slog"
	"os"
	"testing"
)

func TestLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// DiscardLogger drops every record; for tests that only need a non-nil logger.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
