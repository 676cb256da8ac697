package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 50051, cfg.GRPCPort)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 168*time.Hour, cfg.Token.MaxLifetime)
	assert.Equal(t, 24*time.Hour, cfg.Token.IdleTimeout)
	assert.Equal(t, "/media", cfg.Media.URLPrefix)
	assert.Equal(t, int64(10<<20), cfg.Media.MaxUploadBytes)
	assert.Empty(t, cfg.Redis.Addr)
	assert.True(t, cfg.UsesInsecureSecret())
}

func TestUsesInsecureSecretWithConfiguredSecret(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("RECIPE_TOKEN_SECRET", "a-real-secret-from-the-environment")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.UsesInsecureSecret())
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	path := filepath.Join(dir, "custom.yaml")
	content := []byte("http_port: 9000\ndatabase:\n  driver: postgres\n  url: postgres://localhost/recipes\ntoken:\n  idle_timeout: 30m\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	t.Setenv("RECIPE_HTTP_PORT", "9100")
	t.Setenv("RECIPE_REDIS_ADDR", "localhost:6379")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.HTTPPort, "env must win over the file")
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost/recipes", cfg.Database.URL)
	assert.Equal(t, 30*time.Minute, cfg.Token.IdleTimeout)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("RECIPE_DATABASE_DRIVER", "oracle")

	_, err := Load("")
	assert.ErrorContains(t, err, "unsupported database driver")
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
