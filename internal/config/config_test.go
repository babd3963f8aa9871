package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  host: "127.0.0.1"

database:
  host: "testdb"
  user: "testuser"
  dbname: "testdb"

render:
  defaultFPS: 25
  videoBitrate: "4M"
  timeout: 10m

webhook:
  secret: "s3cret"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "testdb", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 25, cfg.Render.DefaultFPS)
	assert.Equal(t, "4M", cfg.Render.VideoBitrate)
	assert.Equal(t, 10*time.Minute, cfg.Render.Timeout)
	assert.Equal(t, "s3cret", cfg.Webhook.Secret)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 8080\n"))
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.Render.DefaultFPS)
	assert.Equal(t, 48000, cfg.Render.SampleRate)
	assert.Equal(t, 2, cfg.Render.Channels)
	assert.Equal(t, "ffmpeg", cfg.Render.FFmpegPath)
	assert.Equal(t, 64*1024, cfg.Render.ChunkSize)
	assert.Equal(t, "renders", cfg.Storage.BucketName)
	assert.Equal(t, time.Hour, cfg.Storage.URLExpiry)
	assert.Equal(t, 24*time.Hour, cfg.Redis.JobTTL)
	assert.Equal(t, 30*time.Second, cfg.Webhook.Timeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Tracing.Enabled)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("VEDIT_RENDER_FFMPEGPATH", "/opt/ffmpeg/bin/ffmpeg")

	cfg, err := Load(writeConfig(t, "server:\n  port: 8080\n"))
	require.NoError(t, err)
	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", cfg.Render.FFmpegPath)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"fps too high", "render:\n  defaultFPS: 500\n"},
		{"channels", "render:\n  channels: 6\n"},
		{"sample rate", "render:\n  sampleRate: -1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadNonExistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30, cfg.Render.DefaultFPS)
}
