package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
crawler:
  base_url: https://letters.example.com
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Crawler.MaxConcurrentArticles)
	assert.Equal(t, 10, cfg.Crawler.BatchSize)
	assert.True(t, cfg.Crawler.EnableResume)
	assert.Equal(t, "file", cfg.Checkpoint.Backend)
	assert.Equal(t, filepath.Join("./output", "progress.json"), cfg.Checkpoint.Path)
	assert.Equal(t, 12, cfg.Listing.PageSize)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
crawler:
  base_url: https://letters.example.com
  output_dir: /tmp/out
  batch_size: 5
  retry_delay_ms: 500
browser:
  handles: 2
  evasive: true
checkpoint:
  backend: postgres
  dsn: postgres://localhost/crawl
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Crawler.BatchSize)
	assert.True(t, cfg.Browser.Evasive)
	assert.Equal(t, "postgres", cfg.Checkpoint.Backend)

	engine := cfg.Engine()
	assert.Equal(t, "https://letters.example.com", engine.BaseURL)
	assert.Equal(t, 500*time.Millisecond, engine.RetryDelay)
	assert.Equal(t, 5, engine.BatchSize)
}

func TestLoadValidation(t *testing.T) {
	t.Run("MissingBaseURL", func(t *testing.T) {
		_, err := Load(writeConfig(t, "server:\n  port: 9000\n"))
		assert.ErrorContains(t, err, "base_url")
	})

	t.Run("PostgresWithoutDSN", func(t *testing.T) {
		_, err := Load(writeConfig(t, `
crawler:
  base_url: https://letters.example.com
checkpoint:
  backend: postgres
`))
		assert.ErrorContains(t, err, "checkpoint.dsn")
	})

	t.Run("UnknownBackend", func(t *testing.T) {
		_, err := Load(writeConfig(t, `
crawler:
  base_url: https://letters.example.com
checkpoint:
  backend: redis
`))
		assert.ErrorContains(t, err, "checkpoint.backend")
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}
