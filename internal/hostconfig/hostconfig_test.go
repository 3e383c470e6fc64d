package hostconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithoutPathReturnsDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadParsesYAMLAndFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plugifyd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
platform: darwin
events:
  url: nats://localhost:4222
cache:
  enabled: true
  host: localhost
  port: "6379"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "darwin", cfg.Platform)
	assert.Equal(t, time.Second, cfg.TickInterval)
	assert.Equal(t, "127.0.0.1:8090", cfg.AdminAPI.Addr)
	assert.Equal(t, "nats://localhost:4222", cfg.Events.URL)
	assert.True(t, cfg.Cache.Enabled)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	assert.Error(t, err)
}
