package logging

import (
	"log/slog"
	"os"
)

func Init() {
	level := slog.LevelError // default: production only shows errors

	if l, ok := os.LookupEnv("LOG_LEVEL"); ok {
		switch l {
		case "dev", "development", "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn", "warning":
			level = slog.LevelWarn
		case "error", "production", "prod":
			level = slog.LevelError
		}
	}

	logger := slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}),
	)
	slog.SetDefault(logger)
}

// Component returns a logger tagged with the subsystem name, so session,
// signaling and roster lines can be told apart when debugging a call.
func Component(name string) *slog.Logger {
	return slog.Default().With("component", name)
}
