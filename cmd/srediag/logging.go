package main

import (
	"log/slog"
	"os"
	"strings"
)

// initLogging configures the default slog logger from the SRE_LOG_LEVEL
// env var, defaulting to info.
func initLogging() {
	levelStr := os.Getenv("SRE_LOG_LEVEL")
	if levelStr == "" {
		levelStr = "info"
	}

	var level slog.Level
	switch strings.ToLower(levelStr) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
