// Package logging builds the process-wide slog logger. Both binaries emit a
// single JSON stream to stdout tagged with the service name, so api and
// worker lines can be told apart after aggregation.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// NewJSONLogger returns a JSON logger at the given level writing to stdout.
// Unknown level strings fall back to info rather than failing startup.
func NewJSONLogger(service, level string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: levelFor(level),
	})
	return slog.New(handler).With("service", service)
}

func levelFor(raw string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
