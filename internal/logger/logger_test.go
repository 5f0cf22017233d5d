package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", DebugLevel},
		{" WARN ", WarnLevel},
		{"error", ErrorLevel},
		{"info", InfoLevel},
		{"", InfoLevel},
		{"verbose", InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("filters below level", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogger(&Config{Level: WarnLevel, Output: &buf})
		log.Info("hidden")
		log.Warn("shown", "shop", "auchan")

		out := buf.String()
		if strings.Contains(out, "hidden") {
			t.Errorf("info line written at warn level: %q", out)
		}
		if !strings.Contains(out, "shown") || !strings.Contains(out, "auchan") {
			t.Errorf("warn line missing: %q", out)
		}
	})

	t.Run("json formatter carries With fields", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogger(&Config{Level: DebugLevel, Output: &buf, JSON: true}).With("component", "pipeline")
		log.Debug("batch normalized", "records", 3)

		out := buf.String()
		if !strings.HasPrefix(strings.TrimSpace(out), "{") {
			t.Errorf("output is not JSON: %q", out)
		}
		if !strings.Contains(out, `"component":"pipeline"`) {
			t.Errorf("With field missing: %q", out)
		}
	})
}
