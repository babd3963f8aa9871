package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sai034/css-video-editor/internal/middleware"
	"github.com/sai034/css-video-editor/internal/render"
	"github.com/sai034/css-video-editor/internal/service"
	"github.com/sai034/css-video-editor/pkg/models"
)

const testProject = `source: clips/beach.mp4
range:
  start: 1
  end: 6
format: mp4
overlays:
  cover_photo:
    id: cover
    url: images/cover.png
    duration: 2
  images:
    - id: logo
      url: https://cdn.example.com/logo.png
      start_time: 0
      end_time: 5
  subtitles:
    - id: s1
      text: Hello
      font_family: Arial
      font_size: 24
      start_time: 0.5
      end_time: 2.25
    - id: s2
      text: "Second line"
      font_family: Arial
      font_size: 24
      start_time: 3
      end_time: 4.5
tracks:
  - id: music
    url: /abs/music.mp3
    track_start_time: 0
    track_end_time: 10
    volume: 0.4
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func writeTestProject(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "project.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testProject), 0644))
	return path
}

func TestLoadProject(t *testing.T) {
	path := writeTestProject(t)
	dir := filepath.Dir(path)

	req, err := loadProject(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "clips/beach.mp4"), req.Source)
	assert.Equal(t, models.TimeRange{Start: 1, End: 6}, req.Range)
	assert.Equal(t, "mp4", req.Format)
	require.NotNil(t, req.Overlays.CoverPhoto)
	assert.Equal(t, filepath.Join(dir, "images/cover.png"), req.Overlays.CoverPhoto.URL)
	assert.Equal(t, "https://cdn.example.com/logo.png", req.Overlays.Images[0].URL)
	assert.Equal(t, "/abs/music.mp3", req.Tracks[0].URL)
	require.Len(t, req.Overlays.Subtitles, 2)
	assert.Equal(t, 2.25, req.Overlays.Subtitles[0].EndTime)
}

func TestLoadProject_Invalid(t *testing.T) {
	_, err := loadProject(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("range: [1, 2"), 0644))
	_, err = loadProject(path)
	assert.Error(t, err)
}

func TestResolveRef(t *testing.T) {
	tests := []struct {
		ref  string
		want string
	}{
		{"", ""},
		{"a.mp4", filepath.Join("/proj", "a.mp4")},
		{"/tmp/a.mp4", "/tmp/a.mp4"},
		{"s3://bucket/a.mp4", "s3://bucket/a.mp4"},
		{"data:image/png;base64,AAAA", "data:image/png;base64,AAAA"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, resolveRef(tt.ref, "/proj"), tt.ref)
	}
}

func TestFormatsCommand(t *testing.T) {
	out, err := execute(t, "formats")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, len(models.Formats)+1)
	assert.Contains(t, lines[0], "RENDERABLE")
	assert.Contains(t, out, "webm")
	for _, line := range lines[1:] {
		if strings.HasPrefix(line, "avi") {
			assert.True(t, strings.HasSuffix(line, "no"), line)
		}
		if strings.HasPrefix(line, "mp4") {
			assert.True(t, strings.HasSuffix(line, "yes"), line)
		}
	}
}

func TestFormatsCommand_JSON(t *testing.T) {
	out, err := execute(t, "formats", "--json")
	require.NoError(t, err)

	var formats []models.Format
	require.NoError(t, json.Unmarshal([]byte(out), &formats))
	require.Len(t, formats, len(models.Formats))
	assert.Equal(t, models.FormatWebM, formats[0].Name)
	assert.True(t, formats[0].Editable)
}

func TestSRTExport(t *testing.T) {
	project := writeTestProject(t)

	out, err := execute(t, "srt", "export", "--project", project)
	require.NoError(t, err)
	assert.Equal(t, "1\n00:00:00,500 --> 00:00:02,250\nHello\n\n2\n00:00:03,000 --> 00:00:04,500\nSecond line\n\n", out)
}

func TestSRTExportImportRoundTrip(t *testing.T) {
	project := writeTestProject(t)
	dir := t.TempDir()
	srtFile := filepath.Join(dir, "subs.srt")

	out, err := execute(t, "srt", "export", "--project", project, "--out", srtFile)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote 2 subtitles")

	out, err = execute(t, "srt", "import", srtFile, "--json")
	require.NoError(t, err)

	var decoded struct {
		Subtitles []models.Subtitle `json:"subtitles"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Len(t, decoded.Subtitles, 2)
	assert.Equal(t, "Hello", decoded.Subtitles[0].Text)
	assert.Equal(t, 0.5, decoded.Subtitles[0].StartTime)
	assert.Equal(t, 4.5, decoded.Subtitles[1].EndTime)
}

func TestSRTImport_YAMLToFile(t *testing.T) {
	dir := t.TempDir()
	srtFile := filepath.Join(dir, "in.srt")
	require.NoError(t, os.WriteFile(srtFile, []byte("1\n00:00:01,000 --> 00:00:02,000\nHi there\n"), 0644))
	outFile := filepath.Join(dir, "subs.yaml")

	_, err := execute(t, "srt", "import", srtFile, "--out", outFile)
	require.NoError(t, err)

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "subtitles:")
	assert.Contains(t, string(data), "text: Hi there")
	assert.Contains(t, string(data), "start_time: 1")
}

func TestSRTImport_Merge(t *testing.T) {
	project := writeTestProject(t)
	srtFile := filepath.Join(t.TempDir(), "in.srt")
	require.NoError(t, os.WriteFile(srtFile, []byte("1\n00:00:01,000 --> 00:00:02,000\nReplaced\n"), 0644))

	out, err := execute(t, "srt", "import", srtFile, "--project", project, "--merge")
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 1 subtitles")

	req, err := loadProject(project)
	require.NoError(t, err)
	require.Len(t, req.Overlays.Subtitles, 1)
	assert.Equal(t, "Replaced", req.Overlays.Subtitles[0].Text)
	// Merge keeps relative paths as written
	assert.Equal(t, filepath.Join(filepath.Dir(project), "clips/beach.mp4"), req.Source)
	assert.Equal(t, "mp4", req.Format)

	_, err = execute(t, "srt", "import", srtFile, "--merge")
	assert.Error(t, err)
}

func TestRender_RejectsInvalidRequests(t *testing.T) {
	project := writeTestProject(t)

	_, err := execute(t, "render", "--project", project, "--format", "avi")
	require.Error(t, err)
	assert.ErrorIs(t, err, service.ErrInvalidRequest)
	assert.ErrorIs(t, err, render.ErrUnsupportedFormat)

	_, err = execute(t, "render", "--project", project, "--start", "7")
	assert.ErrorIs(t, err, render.ErrInvalidRange)

	_, err = execute(t, "render", "--start", "0", "--end", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no input video")
}

func TestBuildRequest_FlagsOverrideProject(t *testing.T) {
	project := writeTestProject(t)
	cmd := newRenderCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--project", project, "--input", "/videos/other.webm", "--format", "WEBM", "--end", "3", "--fps", "24"}))

	req, err := buildRequest()
	require.NoError(t, err)
	assert.Equal(t, "/videos/other.webm", req.Source)
	assert.Equal(t, models.FormatWebM, req.Format)
	assert.Equal(t, models.TimeRange{Start: 1, End: 3}, req.Range)
	assert.Equal(t, 24, req.FPS)
	assert.Equal(t, "other-edit.webm", outputPath(req))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KiB", formatBytes(1536))
	assert.Equal(t, "2.0 MiB", formatBytes(2*1024*1024))
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("VEDIT_SERVER_AUTHSECRET", "cli-secret")

	out, err := execute(t, "token", "--client", "mobile-app", "--ttl", "1h")
	require.NoError(t, err)

	claims, err := middleware.NewTokenAuth("cli-secret").Parse(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "mobile-app", claims.Subject)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)

	_, err = middleware.NewTokenAuth("other-secret").Parse(strings.TrimSpace(out))
	assert.Error(t, err)
}

func TestTokenCommand_JSON(t *testing.T) {
	t.Setenv("VEDIT_SERVER_AUTHSECRET", "cli-secret")

	out, err := execute(t, "token", "--client", "dashboard", "--json")
	require.NoError(t, err)

	var got tokenOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "dashboard", got.ClientID)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), got.ExpiresAt, time.Minute)

	claims, err := middleware.NewTokenAuth("cli-secret").Parse(got.Token)
	require.NoError(t, err)
	assert.Equal(t, "dashboard", claims.Subject)
}

func TestTokenCommand_Errors(t *testing.T) {
	t.Run("no secret", func(t *testing.T) {
		t.Setenv("VEDIT_SERVER_AUTHSECRET", "")
		_, err := execute(t, "token", "--client", "c")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "auth secret")
	})

	t.Run("missing client", func(t *testing.T) {
		t.Setenv("VEDIT_SERVER_AUTHSECRET", "cli-secret")
		_, err := execute(t, "token")
		assert.Error(t, err)
	})

	t.Run("non-positive ttl", func(t *testing.T) {
		t.Setenv("VEDIT_SERVER_AUTHSECRET", "cli-secret")
		_, err := execute(t, "token", "--client", "c", "--ttl", "0s")
		assert.Error(t, err)
	})
}
