package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "synk-backend", cfg.Service.Name)
	assert.Equal(t, ":8080", cfg.Service.Addr)
	assert.Equal(t, 60*time.Second, cfg.WebSocket.IdleTimeout)
	assert.Equal(t, 256, cfg.WebSocket.SendBuffer)
	assert.Equal(t, "synk:bridge", cfg.Bridge.Channel)
	assert.Empty(t, cfg.Redis.URL)
	assert.ErrorIs(t, cfg.Validate(), ErrMissingSecret)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SYNK_WS_IDLE_TIMEOUT", "90s")
	t.Setenv("SYNK_SERVICE_ADDR", ":9000")
	t.Setenv("REDIS_URL", "redis://cache:6379/0")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.WebSocket.IdleTimeout)
	assert.Equal(t, ":9000", cfg.Service.Addr)
	assert.Equal(t, "redis://cache:6379/0", cfg.Redis.URL)
	assert.Equal(t, "s3cret", cfg.SecretToken)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synk.yaml")
	body := []byte("service:\n  name: synk-eu\nbridge:\n  channel: eu:bridge\njwt_secret: from-file\n")
	require.NoError(t, os.WriteFile(path, body, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "synk-eu", cfg.Service.Name)
	assert.Equal(t, "eu:bridge", cfg.Bridge.Channel)
	assert.Equal(t, "from-file", cfg.SecretToken)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate_PingInterval(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.SecretToken = "x"
	cfg.WebSocket.PingInterval = cfg.WebSocket.IdleTimeout

	assert.Error(t, cfg.Validate())
}
