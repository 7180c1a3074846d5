// Package logging configures the process-wide logger. Call sites keep using
// the standard log package with bracketed level tags.
package logging

import (
	"log"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

var debugEnabled atomic.Bool

// Setup applies the level and output format. With jsonOutput set, every
// log.Printf line is emitted as a JSON record through slog.
func Setup(level string, jsonOutput bool) {
	level = strings.ToLower(strings.TrimSpace(level))
	debugEnabled.Store(level == "debug")

	if jsonOutput {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: parseLevel(level),
		})))
		return
	}

	log.SetFlags(log.LstdFlags)
	log.SetOutput(os.Stderr)
}

// DebugEnabled reports whether [DEBUG] lines are printed.
func DebugEnabled() bool {
	return debugEnabled.Load()
}

// Debugf prints a [DEBUG] line when debug logging is enabled.
func Debugf(format string, args ...any) {
	if debugEnabled.Load() {
		log.Printf("[DEBUG] "+format, args...)
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
