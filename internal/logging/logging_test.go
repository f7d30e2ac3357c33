package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewFileLoggerDisabled(t *testing.T) {
	setup, err := NewFileLogger(t.TempDir(), false, slog.LevelDebug)
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	if setup.Enabled || setup.Logger == nil {
		t.Fatalf("expected disabled nop logger")
	}
}

func TestNewFileLoggerWritesJSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	setup, err := NewFileLogger(dir, true, slog.LevelDebug)
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	setup.Logger.Info("engine.test", "command", "scan_text_nodes")
	if err := setup.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(setup.Path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"engine.test"`) || !strings.Contains(string(data), `"pid":`) {
		t.Fatalf("expected json record with pid, got %s", data)
	}
}

func TestNewFileLoggerHonorsLevel(t *testing.T) {
	setup, err := NewFileLogger(t.TempDir(), true, ParseLevel("warn"))
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	setup.Logger.Info("engine.quiet")
	setup.Logger.Warn("engine.loud")
	if err := setup.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(setup.Path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.Contains(string(data), "engine.quiet") || !strings.Contains(string(data), "engine.loud") {
		t.Fatalf("expected only warn records, got %s", data)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelDebug,
	}
	for name, want := range cases {
		if got := ParseLevel(name); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestRedactAny(t *testing.T) {
	in := map[string]any{
		"nodeId": "1:2",
		"token":  "abcdefgh",
		"nested": map[string]any{"api_key": "sk-123456"},
	}
	out := RedactAny(in).(map[string]any)
	if out["nodeId"] != "1:2" {
		t.Fatalf("expected nodeId untouched")
	}
	if out["token"] != "****efgh" {
		t.Fatalf("expected masked token, got %v", out["token"])
	}
	nested := out["nested"].(map[string]any)
	if nested["api_key"] != "****3456" {
		t.Fatalf("expected masked api key, got %v", nested["api_key"])
	}
}

func TestRedactJSONTruncatesLongText(t *testing.T) {
	long := strings.Repeat("x", maxLoggedString+10)
	out := RedactJSON([]byte(`{"text":"` + long + `"}`)).(map[string]any)
	text := out["text"].(string)
	if len(text) >= len(long) {
		t.Fatalf("expected truncated text")
	}
}
