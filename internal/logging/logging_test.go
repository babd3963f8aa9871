package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:   "JSON format to stdout",
			config: Config{Level: "info", Format: "json", Output: "stdout"},
		},
		{
			name:   "Console format to stderr",
			config: Config{Level: "debug", Format: "console", Output: "stderr"},
		},
		{
			name:   "Invalid log level defaults to info",
			config: Config{Level: "invalid", Format: "json", Output: "stdout"},
		},
		{
			name:    "Unwritable file",
			config:  Config{Level: "info", Output: filepath.Join("/nonexistent", "dir", "log.txt")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "render.log")
	logger, err := NewLogger(Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	logger.Info("written to file")
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Config{Level: "warn", Format: "json"})

	logger.Info("hidden")
	logger.Warn("shown")
	logger.ErrorWithErr("failed", errors.New("boom"))

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "shown", entries[0]["message"])
	assert.Equal(t, "boom", entries[1]["error"])
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Config{Level: "debug", Format: "json"})

	logger.WithSessionID("sess-1").WithJobID("job-2").Info("tagged")
	logger.WithRequestID("req-3").Info("more")
	logger.WithWorkerID("w-1").WithError(errors.New("x")).Info("worker")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 3)
	assert.Equal(t, "sess-1", entries[0]["session_id"])
	assert.Equal(t, "job-2", entries[0]["job_id"])
	assert.Equal(t, "req-3", entries[1]["request_id"])
	assert.Equal(t, "w-1", entries[2]["worker_id"])
}

func TestLogger_RenderHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Config{Level: "debug", Format: "json"})

	logger.LogRenderEvent("job-1", "render.completed", "completed", map[string]interface{}{"frames": 150})
	logger.LogRenderProgress("job-1", 42.5, 2.1, 63)
	logger.LogHTTPRequest("POST", "/api/v1/renders", "127.0.0.1", 202, 3*time.Millisecond)
	logger.LogStorageOperation("upload", "renders", "a.webm", 1024, time.Millisecond, nil)
	logger.LogDatabaseOperation("create_render_job", time.Millisecond, errors.New("conn refused"))
	logger.LogDatabaseOperation("get_render_job", time.Millisecond, nil)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 6)
	assert.Equal(t, "render.completed", entries[0]["event"])
	assert.Equal(t, float64(150), entries[0]["frames"])
	assert.Equal(t, 42.5, entries[1]["progress"])
	assert.Equal(t, float64(202), entries[2]["status_code"])
	assert.Equal(t, "info", entries[3]["level"])
	assert.Equal(t, "error", entries[4]["level"])
	assert.Equal(t, "debug", entries[5]["level"])
	assert.Equal(t, "get_render_job", entries[5]["operation"])
}

func TestLogger_Component(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Config{Level: "info", Format: "json"})

	zl := logger.Component("compositor")
	zl.Info().Msg("hello")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "compositor", entries[0]["component"])
}

func TestLogger_WithContext(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Config{Level: "info", Format: "json"})

	ctx := logger.WithJobID("job-7").WithContext(context.Background())
	zerolog.Ctx(ctx).Info().Msg("from context")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "job-7", entries[0]["job_id"])
}
