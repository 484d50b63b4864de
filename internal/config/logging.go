package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// ParseLogLevel maps the configured level name onto a slog level.
func ParseLogLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("telemetry.log_level %q is not one of debug|info|warn|error", name)
	}
}
