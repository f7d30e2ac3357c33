// Package config assembles engine settings from defaults, an optional YAML
// file and CANVASBRIDGE_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"canvasbridge/engine/internal/doctree"
)

const EnvPrefix = "CANVASBRIDGE_"

const (
	TransportStdio     = "stdio"
	TransportWebsocket = "websocket"
)

// Chunking controls how a batch command splits its items.
type Chunking struct {
	ChunkSize int           `yaml:"chunk_size" env:"CHUNK_SIZE"`
	Delay     time.Duration `yaml:"delay" env:"DELAY"`
}

type Config struct {
	Transport      string `yaml:"transport" env:"TRANSPORT"`
	BridgeURL      string `yaml:"bridge_url" env:"BRIDGE_URL"`
	Channel        string `yaml:"channel" env:"CHANNEL"`
	HostWorkerPath string `yaml:"host_worker_path" env:"HOST_WORKER_PATH"`
	FakeHost       bool   `yaml:"fake_host" env:"FAKE_HOST"`
	Debug          bool   `yaml:"debug" env:"DEBUG"`
	LogLevel       string `yaml:"log_level" env:"LOG_LEVEL"`

	// BridgeHosts lists remote relay hosts the engine may dial. Loopback
	// relays are always allowed.
	BridgeHosts []string `yaml:"bridge_hosts" env:"BRIDGE_HOSTS" envSeparator:","`

	Scan   Chunking `yaml:"scan" envPrefix:"SCAN_"`
	Text   Chunking `yaml:"text" envPrefix:"TEXT_"`
	Delete Chunking `yaml:"delete" envPrefix:"DELETE_"`

	FallbackFamily string `yaml:"fallback_family" env:"FALLBACK_FAMILY"`
	FallbackStyle  string `yaml:"fallback_style" env:"FALLBACK_STYLE"`
	FontCacheSize  int    `yaml:"font_cache_size" env:"FONT_CACHE_SIZE"`
}

func Default() Config {
	return Config{
		Transport:      TransportStdio,
		Scan:           Chunking{ChunkSize: 10, Delay: 50 * time.Millisecond},
		Text:           Chunking{ChunkSize: 5, Delay: time.Second},
		Delete:         Chunking{ChunkSize: 5, Delay: time.Second},
		FallbackFamily: "Inter",
		FallbackStyle:  "Regular",
		FontCacheSize:  256,
	}
}

// Load reads path when it exists and then applies the environment. A missing
// file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return Config{}, err
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("environment: %w", err)
	}
	cfg.backfill()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) backfill() {
	defaults := Default()
	c.Transport = strings.ToLower(strings.TrimSpace(c.Transport))
	if c.Transport == "" {
		c.Transport = defaults.Transport
	}
	backfillChunking(&c.Scan, defaults.Scan)
	backfillChunking(&c.Text, defaults.Text)
	backfillChunking(&c.Delete, defaults.Delete)
	if c.FallbackFamily == "" {
		c.FallbackFamily = defaults.FallbackFamily
	}
	if c.FallbackStyle == "" {
		c.FallbackStyle = defaults.FallbackStyle
	}
	if c.FontCacheSize <= 0 {
		c.FontCacheSize = defaults.FontCacheSize
	}
}

func backfillChunking(c *Chunking, defaults Chunking) {
	if c.ChunkSize <= 0 {
		c.ChunkSize = defaults.ChunkSize
	}
	if c.Delay < 0 {
		c.Delay = 0
	}
}

func (c Config) Validate() error {
	switch c.Transport {
	case TransportStdio:
	case TransportWebsocket:
		if c.BridgeURL == "" {
			return errors.New("websocket transport requires bridge_url")
		}
		if c.Channel == "" {
			return errors.New("websocket transport requires channel")
		}
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	return nil
}

func (c Config) FallbackFont() doctree.FontName {
	return doctree.FontName{Family: c.FallbackFamily, Style: c.FallbackStyle}
}
