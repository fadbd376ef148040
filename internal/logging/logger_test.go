package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  slog.Level
	}{
		{"info", "info", slog.LevelInfo},
		{"debug", "debug", slog.LevelDebug},
		{"trace", "trace", LevelTrace},
		{"uppercase DEBUG", "DEBUG", slog.LevelDebug},
		{"mixed case Trace", "Trace", LevelTrace},
		{"unknown defaults to info", "verbose", slog.LevelInfo},
		{"empty defaults to info", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		name       string
		level      string
		logAtTrace bool
		logAtDebug bool
	}{
		{"info filters debug", "info", false, false},
		{"debug passes debug", "debug", false, true},
		{"trace passes trace", "trace", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(tt.level, &buf)

			logger.Log(t.Context(), LevelTrace, "step progress")
			if got := strings.Contains(buf.String(), "step progress"); got != tt.logAtTrace {
				t.Errorf("trace message visible = %v, want %v (buf: %q)", got, tt.logAtTrace, buf.String())
			}

			buf.Reset()
			logger.Debug("snapshot recorded")
			if got := strings.Contains(buf.String(), "snapshot recorded"); got != tt.logAtDebug {
				t.Errorf("debug message visible = %v, want %v (buf: %q)", got, tt.logAtDebug, buf.String())
			}
		})
	}
}

func TestNewLogger_TraceLabel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("trace", &buf)
	logger.Log(t.Context(), LevelTrace, "progress", "step", 100)

	if !strings.Contains(buf.String(), "level=TRACE") {
		t.Errorf("expected TRACE level label, got %q", buf.String())
	}
}

func TestDiscard(t *testing.T) {
	Discard().Info("nothing")
}

func TestNewTraceLogger_InfoLevel(t *testing.T) {
	dir := t.TempDir()
	tl := NewTraceLogger(dir, "info")
	if tl != nil {
		t.Error("expected nil TraceLogger at info level")
	}

	tl.Log(map[string]any{"event": "snapshot"})

	if _, err := os.Stat(filepath.Join(dir, TraceFile)); err == nil {
		t.Errorf("%s should not exist at info level", TraceFile)
	}
}

func TestNewTraceLogger_DebugLevel(t *testing.T) {
	dir := t.TempDir()
	tl := NewTraceLogger(dir, "debug")
	defer tl.Close()

	tl.Log(map[string]any{"event": "snapshot", "mass": 10.0, "step": 100})

	data, err := os.ReadFile(filepath.Join(dir, TraceFile))
	if err != nil {
		t.Fatalf("failed to read trace: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("failed to parse JSONL entry: %v", err)
	}
	if entry["event"] != "snapshot" {
		t.Errorf("event = %v, want snapshot", entry["event"])
	}
	if entry["mass"] != 10.0 {
		t.Errorf("mass = %v, want 10", entry["mass"])
	}
	if _, ok := entry["logged_at"]; !ok {
		t.Error("expected 'logged_at' field in trace entry")
	}
}

func TestTraceLogger_MultipleWrites(t *testing.T) {
	dir := t.TempDir()
	tl := NewTraceLogger(dir, "trace")
	defer tl.Close()

	tl.Log(map[string]any{"event": "first"})
	tl.Log(map[string]any{"event": "second"})

	data, err := os.ReadFile(filepath.Join(dir, TraceFile))
	if err != nil {
		t.Fatalf("failed to read trace: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), string(data))
	}
}

func TestTraceLogger_NilSafety(t *testing.T) {
	var tl *TraceLogger
	tl.Log(map[string]any{"event": "should_not_panic"})
	tl.Close()
}

func TestTraceLogger_DoesNotMutateCallerMap(t *testing.T) {
	tl := NewTraceLogger(t.TempDir(), "debug")
	defer tl.Close()

	event := map[string]any{"event": "test"}
	tl.Log(event)

	if _, ok := event["logged_at"]; ok {
		t.Error("Log() should not mutate caller's map")
	}
}

func TestTraceLogger_LogAfterClose(t *testing.T) {
	tl := NewTraceLogger(t.TempDir(), "debug")
	tl.Log(map[string]any{"event": "before_close"})
	tl.Close()
	tl.Log(map[string]any{"event": "after_close"})
}

func TestNewTraceLogger_CreatesDir(t *testing.T) {
	nested := filepath.Join(t.TempDir(), "runs", "trace")
	tl := NewTraceLogger(nested, "debug")
	if tl == nil {
		t.Fatal("expected non-nil TraceLogger when dir needs creation")
	}
	defer tl.Close()

	tl.Log(map[string]any{"event": "created"})
	info, err := os.Stat(filepath.Join(nested, TraceFile))
	if err != nil {
		t.Fatalf("%s should exist: %v", TraceFile, err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permissions = %o, want 0600", perm)
	}
}
