package configs

import (
	"log/slog"
	"strings"
)

// Logger defines options for the structured logger. Level is one of
// "debug", "info", "warn", "error"; Format is "text" (default) or "json".
type Logger struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"text"`
}

// SlogLevel converts the textual level into a slog.Level. Unknown levels
// default to slog.LevelInfo.
func (c Logger) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "err":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SlogFormat normalises the requested format; anything but "json" falls
// back to "text".
func (c Logger) SlogFormat() string {
	if strings.ToLower(c.Format) == "json" {
		return "json"
	}
	return "text"
}
