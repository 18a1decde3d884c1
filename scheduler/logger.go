// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package scheduler

import (
	"log/slog"
	"os"
)

// Name for environment variable for setting default logger severity level.
const ENV_LOG_LEVEL = "TRENDS_LOG_LEVEL"

func defaultLogger() *slog.Logger {
	opts := slog.HandlerOptions{Level: ParseLogLevel(os.Getenv(ENV_LOG_LEVEL))}
	return slog.New(slog.NewTextHandler(os.Stdout, &opts))
}

// ParseLogLevel parses severity level name. INFO is returned for unknown
// names.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "DEBUG", "debug":
		return slog.LevelDebug
	case "INFO", "info":
		return slog.LevelInfo
	case "WARN", "warn":
		return slog.LevelWarn
	case "ERROR", "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
