// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// LevelCritical sits above slog.LevelError.
const LevelCritical = slog.LevelError + 4

// Config controls handler format and destination.
type Config struct {
	// Level is shared with the handler so it can change at runtime.
	Level  *slog.LevelVar
	Format string // "json" or "text"
	Output io.Writer
}

// DefaultConfig logs INFO and above as text on stderr.
func DefaultConfig() Config {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)
	return Config{Level: level, Format: "text", Output: os.Stderr}
}

// New builds a logger and installs it as the default.
func New(cfg Config) *slog.Logger {
	if cfg.Level == nil {
		cfg.Level = new(slog.LevelVar)
	}
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:       cfg.Level,
		ReplaceAttr: replaceLevel,
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(cfg.Output, opts)
	default:
		handler = slog.NewTextHandler(cfg.Output, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps a settings level name to a slog level. Unknown names
// yield INFO and false.
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return slog.LevelDebug, true
	case "INFO":
		return slog.LevelInfo, true
	case "WARNING", "WARN":
		return slog.LevelWarn, true
	case "ERROR":
		return slog.LevelError, true
	case "CRITICAL":
		return LevelCritical, true
	}
	return slog.LevelInfo, false
}

// LevelName is the inverse of ParseLevel.
func LevelName(level slog.Level) string {
	switch {
	case level >= LevelCritical:
		return "CRITICAL"
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARNING"
	case level >= slog.LevelInfo:
		return "INFO"
	}
	return "DEBUG"
}

func replaceLevel(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.LevelKey {
		if level, ok := a.Value.Any().(slog.Level); ok {
			a.Value = slog.StringValue(LevelName(level))
		}
	}
	return a
}
