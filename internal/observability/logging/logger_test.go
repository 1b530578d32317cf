package logging

import (
	"log/slog"
	"testing"
)

func TestLevelFor(t *testing.T) {
	cases := []struct {
		raw  string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"shouting", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := levelFor(tc.raw); got != tc.want {
			t.Errorf("levelFor(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}
