package media

import (
	"context"
	"encoding/json"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sai034/css-video-editor/internal/clock"
	"github.com/sai034/css-video-editor/pkg/models"
)

func TestProbeResult_Info(t *testing.T) {
	raw := `{
		"format": {"filename": "in.mp4", "format_name": "mov,mp4", "duration": "12.480000"},
		"streams": [
			{"codec_type": "video", "codec_name": "h264", "width": 1280, "height": 720, "avg_frame_rate": "30000/1001"},
			{"codec_type": "audio", "codec_name": "aac", "sample_rate": "44100", "channels": 2}
		]
	}`

	var result ProbeResult
	require.NoError(t, json.Unmarshal([]byte(raw), &result))

	info := result.Info()
	assert.InDelta(t, 12.48, info.Duration, 1e-9)
	assert.Equal(t, 1280, info.Width)
	assert.Equal(t, 720, info.Height)
	assert.Equal(t, "h264", info.VideoCodec)
	assert.InDelta(t, 29.97, info.FrameRate, 0.01)
	assert.True(t, info.HasVideo)
	assert.True(t, info.HasAudio)
}

func TestProbeResult_InfoStreamDuration(t *testing.T) {
	result := ProbeResult{
		Streams: []StreamInfo{{CodecType: "video", Width: 2, Height: 2, Duration: "3.5"}},
	}

	info := result.Info()
	assert.Equal(t, 3.5, info.Duration)
	assert.False(t, info.HasAudio)
}

func TestParseRate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"30/1", 30},
		{"25", 25},
		{"0/0", 0},
		{"", 0},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.InDelta(t, tt.want, parseRate(tt.in), 1e-9)
		})
	}
}

func TestNewFFmpeg_Defaults(t *testing.T) {
	f := NewFFmpeg("", "")
	assert.Equal(t, "ffmpeg", f.ffmpegPath)
	assert.Equal(t, "ffprobe", f.ffprobePath)
}

func TestAudioDecoder_EmptyInput(t *testing.T) {
	d := NewAudioDecoder(NewFFmpeg("", ""), nil, t.TempDir(), zerolog.Nop())

	_, err := d.DecodeBytes(context.Background(), nil)
	assert.Error(t, err)
}

// makeTestVideo renders a short synthetic clip with ffmpeg's lavfi sources
func makeTestVideo(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping ffmpeg test in short mode")
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("Skipping test: ffmpeg not available")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("Skipping test: ffprobe not available")
	}

	path := filepath.Join(t.TempDir(), "clip.mp4")
	cmd := exec.Command("ffmpeg", "-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", "testsrc=size=64x48:rate=10",
		"-f", "lavfi", "-i", "sine=frequency=440:sample_rate=48000",
		"-t", "2", "-pix_fmt", "yuv420p", "-c:v", "libx264", "-c:a", "aac", "-shortest",
		"-y", path)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Skipf("Skipping test: cannot create test video: %v: %s", err, out)
	}
	return path
}

func TestFFmpeg_Integration(t *testing.T) {
	path := makeTestVideo(t)
	ctx := context.Background()
	f := NewFFmpeg("ffmpeg", "ffprobe")

	t.Run("inspect", func(t *testing.T) {
		info, err := f.Inspect(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, 64, info.Width)
		assert.Equal(t, 48, info.Height)
		assert.InDelta(t, 2.0, info.Duration, 0.1)
		assert.True(t, info.HasAudio)
	})

	t.Run("extract audio", func(t *testing.T) {
		buf, err := f.ExtractAudio(ctx, path, models.TimeRange{Start: 0.5, End: 1.5})
		require.NoError(t, err)
		require.NotNil(t, buf)
		assert.Equal(t, SampleRate, buf.SampleRate)
		assert.Equal(t, Channels, buf.Channels)
		assert.InDelta(t, 1.0, buf.Duration(), 0.05)
	})

	t.Run("video source", func(t *testing.T) {
		clk := clock.NewFake(time.Unix(0, 0))
		src, err := f.OpenVideo(ctx, path, 10, clk, zerolog.Nop())
		require.NoError(t, err)
		defer src.Close()

		require.NoError(t, src.Seek(ctx, 0.5))
		assert.InDelta(t, 0.5, src.CurrentTime(), 1e-9)
		require.NotNil(t, src.Frame())
		assert.Equal(t, 64, src.Frame().Bounds().Dx())

		// Paused: the clock moving does not move the position.
		clk.Advance(time.Second)
		assert.InDelta(t, 0.5, src.CurrentTime(), 1e-9)

		src.Play()
		clk.Advance(500 * time.Millisecond)
		assert.InDelta(t, 1.0, src.CurrentTime(), 1e-9)
		assert.False(t, src.Ended())

		clk.Advance(5 * time.Second)
		assert.True(t, src.Ended())
		assert.NoError(t, src.Err())
	})
}
