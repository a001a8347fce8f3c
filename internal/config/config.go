// Package config loads and exposes application configuration (TOML).
package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath     = "dumbchat.toml"
	DefaultAPIBaseURL     = "http://127.0.0.1:3000"
	DefaultChannel        = "general"
	DefaultHistoryLimit   = 100
	DefaultRequestTimeout = "30s"
	DefaultLogFile        = "dumbchat.log"
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log    LogConfig    `toml:"log"`
	Server ServerConfig `toml:"server"`
	Client ClientConfig `toml:"client"`
}

// LogConfig holds logging level, format, and the log file used in TUI mode.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// ServerConfig holds the chat server addresses.
type ServerConfig struct {
	APIBaseURL string `toml:"api_base_url"`
	WSURL      string `toml:"ws_url"`
}

// ClientConfig holds client behavior knobs.
type ClientConfig struct {
	Username       string `toml:"username"`
	DefaultChannel string `toml:"default_channel"`
	HistoryLimit   int    `toml:"history_limit"`
	RequestTimeout string `toml:"request_timeout"`
}

// WebSocketURL returns the configured websocket URL, or one derived from the
// API base URL (http -> ws, path /ws) when unset.
func (c ServerConfig) WebSocketURL() string {
	if strings.TrimSpace(c.WSURL) != "" {
		return strings.TrimRight(strings.TrimSpace(c.WSURL), "/")
	}
	base := strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws"
}

// Timeout parses the request timeout, falling back to the default on a bad value.
func (c ClientConfig) Timeout() time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(c.RequestTimeout))
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(DefaultRequestTimeout)
	}
	return d
}

// Load reads and parses the TOML config file at path and applies default
// values for missing fields. A missing file is not an error; defaults apply.
func Load(path string) (Config, error) {
	cfg := Config{}
	if strings.TrimSpace(path) == "" {
		path = DefaultConfigPath
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if !errors.Is(err, fs.ErrNotExist) && !os.IsNotExist(err) {
			return Config{}, err
		}
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Log.Level) == "" {
		cfg.Log.Level = "info"
	}
	if strings.TrimSpace(cfg.Log.Format) == "" {
		cfg.Log.Format = "text"
	}
	if strings.TrimSpace(cfg.Log.File) == "" {
		cfg.Log.File = DefaultLogFile
	}
	if strings.TrimSpace(cfg.Server.APIBaseURL) == "" {
		cfg.Server.APIBaseURL = DefaultAPIBaseURL
	}
	cfg.Server.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.Server.APIBaseURL), "/")
	if strings.TrimSpace(cfg.Client.DefaultChannel) == "" {
		cfg.Client.DefaultChannel = DefaultChannel
	}
	if cfg.Client.HistoryLimit <= 0 {
		cfg.Client.HistoryLimit = DefaultHistoryLimit
	}
	if strings.TrimSpace(cfg.Client.RequestTimeout) == "" {
		cfg.Client.RequestTimeout = DefaultRequestTimeout
	}
}
