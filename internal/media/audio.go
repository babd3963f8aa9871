package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/sai034/css-video-editor/internal/audiograph"
	"github.com/sai034/css-video-editor/pkg/models"
)

// Fetcher resolves a reference (object key, URL or path) to its bytes
type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// DecodePCM decodes any audio ffmpeg understands at path to 48 kHz stereo
// float32. start and duration select a part of the input; duration <= 0
// reads to the end.
func (f *FFmpeg) DecodePCM(ctx context.Context, path string, start, duration float64) (*audiograph.Buffer, error) {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if start > 0 {
		args = append(args, "-ss", seconds(start))
	}
	args = append(args, "-i", path)
	if duration > 0 {
		args = append(args, "-t", seconds(duration))
	}
	args = append(args,
		"-vn",
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"-ar", strconv.Itoa(SampleRate),
		"-ac", strconv.Itoa(Channels),
		"pipe:1",
	)

	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &audiograph.DecodeError{
			Reason: fmt.Sprintf("ffmpeg: %s", stderr.String()),
			Err:    err,
		}
	}

	// ffmpeg always writes whole frames, but a killed process may not.
	data := stdout.Bytes()
	data = data[:len(data)-len(data)%(4*Channels)]
	return audiograph.FromFloat32LE(data, SampleRate, Channels)
}

// ExtractAudio decodes the soundtrack of the source between r.Start and
// r.End. Sources without an audio stream return a nil buffer.
func (f *FFmpeg) ExtractAudio(ctx context.Context, path string, r models.TimeRange) (*audiograph.Buffer, error) {
	info, err := f.Inspect(ctx, path)
	if err != nil {
		return nil, err
	}
	if !info.HasAudio {
		return nil, nil
	}
	return f.DecodePCM(ctx, path, r.Start, r.Duration())
}

// AudioDecoder decodes music tracks for the audio graph
type AudioDecoder struct {
	ffmpeg  *FFmpeg
	fetcher Fetcher
	tempDir string
	logger  zerolog.Logger
}

// NewAudioDecoder creates a decoder fetching track bytes through fetcher and
// staging them in tempDir
func NewAudioDecoder(ffmpeg *FFmpeg, fetcher Fetcher, tempDir string, logger zerolog.Logger) *AudioDecoder {
	return &AudioDecoder{
		ffmpeg:  ffmpeg,
		fetcher: fetcher,
		tempDir: tempDir,
		logger:  logger.With().Str("component", "audio_decoder").Logger(),
	}
}

// Decode fetches and decodes one track
func (d *AudioDecoder) Decode(ctx context.Context, track models.AudioTrack) (*audiograph.Buffer, error) {
	data, err := d.fetcher.Fetch(ctx, track.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch track: %w", err)
	}
	return d.DecodeBytes(ctx, data)
}

// DecodeBytes decodes an encoded audio file held in memory
func (d *AudioDecoder) DecodeBytes(ctx context.Context, data []byte) (*audiograph.Buffer, error) {
	if len(data) == 0 {
		return nil, &audiograph.DecodeError{Reason: "empty input"}
	}

	// Containers like mp4 need a seekable input, so stage to disk.
	tmp, err := os.CreateTemp(d.tempDir, "track-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	buf, err := d.ffmpeg.DecodePCM(ctx, tmp.Name(), 0, 0)
	if err != nil {
		return nil, err
	}

	d.logger.Debug().
		Int("bytes", len(data)).
		Float64("duration", buf.Duration()).
		Msg("Decoded music track")

	return buf, nil
}
