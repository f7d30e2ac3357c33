package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Transport != TransportStdio {
		t.Fatalf("expected stdio transport, got %q", cfg.Transport)
	}
	if cfg.Scan.ChunkSize != 10 || cfg.Scan.Delay != 50*time.Millisecond {
		t.Fatalf("unexpected scan chunking %+v", cfg.Scan)
	}
	if cfg.Text.ChunkSize != 5 || cfg.Delete.Delay != time.Second {
		t.Fatalf("unexpected rewrite chunking %+v %+v", cfg.Text, cfg.Delete)
	}
	if font := cfg.FallbackFont(); font.Family != "Inter" || font.Style != "Regular" {
		t.Fatalf("unexpected fallback font %+v", font)
	}
}

func TestLoadYAMLThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `transport: websocket
bridge_url: ws://localhost:3055
channel: design-a
scan:
  chunk_size: 25
  delay: 10ms
delete:
  chunk_size: 2
fallback_family: Roboto
font_cache_size: 32
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("CANVASBRIDGE_CHANNEL", "design-b")
	t.Setenv("CANVASBRIDGE_TEXT_DELAY", "250ms")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Transport != TransportWebsocket || cfg.BridgeURL != "ws://localhost:3055" {
		t.Fatalf("unexpected transport %q %q", cfg.Transport, cfg.BridgeURL)
	}
	if cfg.Channel != "design-b" {
		t.Fatalf("expected env to override channel, got %q", cfg.Channel)
	}
	if cfg.Scan.ChunkSize != 25 || cfg.Scan.Delay != 10*time.Millisecond {
		t.Fatalf("unexpected scan chunking %+v", cfg.Scan)
	}
	if cfg.Text.ChunkSize != 5 || cfg.Text.Delay != 250*time.Millisecond {
		t.Fatalf("unexpected text chunking %+v", cfg.Text)
	}
	if cfg.Delete.ChunkSize != 2 || cfg.Delete.Delay != time.Second {
		t.Fatalf("unexpected delete chunking %+v", cfg.Delete)
	}
	if cfg.FallbackFamily != "Roboto" || cfg.FallbackStyle != "Regular" {
		t.Fatalf("unexpected fallback %q %q", cfg.FallbackFamily, cfg.FallbackStyle)
	}
	if cfg.FontCacheSize != 32 {
		t.Fatalf("expected cache size 32, got %d", cfg.FontCacheSize)
	}
}

func TestLoadBackfillsNonPositiveChunkSize(t *testing.T) {
	t.Setenv("CANVASBRIDGE_SCAN_CHUNK_SIZE", "0")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Scan.ChunkSize != 10 {
		t.Fatalf("expected default chunk size, got %d", cfg.Scan.ChunkSize)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"unknown transport":  "transport: carrier-pigeon\n",
		"websocket no url":   "transport: websocket\nchannel: c\n",
		"websocket no chan":  "transport: websocket\nbridge_url: ws://x\n",
		"malformed document": "scan: [\n",
	}
	for name, body := range cases {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := Load(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadRejectsBadEnvironment(t *testing.T) {
	t.Setenv("CANVASBRIDGE_FONT_CACHE_SIZE", "lots")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadBridgeHostsFromEnvironment(t *testing.T) {
	t.Setenv("CANVASBRIDGE_BRIDGE_HOSTS", "relay.example.com,relay2.example.com")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.BridgeHosts) != 2 || cfg.BridgeHosts[1] != "relay2.example.com" {
		t.Fatalf("unexpected bridge hosts %v", cfg.BridgeHosts)
	}
}
