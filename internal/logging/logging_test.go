package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewSplitsByLevel(t *testing.T) {
	var out, errOut bytes.Buffer
	logger := New(&out, &errOut, Options{Level: "debug"})

	logger.Info("tool line", Stage("cutadapt"))
	logger.Warn("tool complaint")
	logger.Error("stage failed")

	if !strings.Contains(out.String(), "tool line") {
		t.Fatalf("expected info on out, got %q", out.String())
	}
	if strings.Contains(out.String(), "tool complaint") {
		t.Fatalf("warn leaked to out: %q", out.String())
	}
	if !strings.Contains(errOut.String(), "tool complaint") || !strings.Contains(errOut.String(), "stage failed") {
		t.Fatalf("expected warn and error on err, got %q", errOut.String())
	}
	if !strings.Contains(out.String(), "stage=cutadapt") {
		t.Fatalf("expected stage attr, got %q", out.String())
	}
}

func TestNewRespectsLevel(t *testing.T) {
	var out, errOut bytes.Buffer
	logger := New(&out, &errOut, Options{Level: "warn"})
	logger.Info("hidden")
	if out.Len() != 0 {
		t.Fatalf("expected info suppressed, got %q", out.String())
	}
}

func TestWithComponentJSON(t *testing.T) {
	var out bytes.Buffer
	logger := WithComponent(New(&out, nil, Options{Format: "json"}), "runner")
	logger.Info("hello")
	if !strings.Contains(out.String(), `"component":"runner"`) {
		t.Fatalf("expected component attr in json, got %q", out.String())
	}
}
