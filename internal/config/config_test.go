package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, DefaultAPIBaseURL, cfg.Server.APIBaseURL)
	assert.Equal(t, DefaultChannel, cfg.Client.DefaultChannel)
	assert.Equal(t, DefaultHistoryLimit, cfg.Client.HistoryLimit)
	assert.Equal(t, 30*time.Second, cfg.Client.Timeout())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dumbchat.toml")
	data := `
[log]
level = "debug"

[server]
api_base_url = "https://chat.example.org/"
ws_url = "wss://chat.example.org/ws"

[client]
default_channel = "random"
history_limit = 50
request_timeout = "5s"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "https://chat.example.org", cfg.Server.APIBaseURL)
	assert.Equal(t, "wss://chat.example.org/ws", cfg.Server.WebSocketURL())
	assert.Equal(t, "random", cfg.Client.DefaultChannel)
	assert.Equal(t, 50, cfg.Client.HistoryLimit)
	assert.Equal(t, 5*time.Second, cfg.Client.Timeout())
}

func TestLoadBadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestDerivedWebSocketURL(t *testing.T) {
	cases := map[string]string{
		"http://127.0.0.1:3000":    "ws://127.0.0.1:3000/ws",
		"https://chat.example.org": "wss://chat.example.org/ws",
	}
	for base, want := range cases {
		cfg := ServerConfig{APIBaseURL: base}
		assert.Equal(t, want, cfg.WebSocketURL())
	}
}

func TestTimeoutFallback(t *testing.T) {
	assert.Equal(t, 30*time.Second, ClientConfig{RequestTimeout: "garbage"}.Timeout())
	assert.Equal(t, 30*time.Second, ClientConfig{RequestTimeout: "-2s"}.Timeout())
}
