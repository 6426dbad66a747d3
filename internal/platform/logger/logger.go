package logger

import (
	"log/slog"
	"os"
	"strings"
)

// New returns the process-wide structured logger. Components receive it via
// injection; nothing in the runtime logs through a package-level global.
func New() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("MARQUEE_LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
