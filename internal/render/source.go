package render

import (
	"context"
	"image"

	"github.com/rs/zerolog"

	"github.com/sai034/css-video-editor/internal/audiograph"
	"github.com/sai034/css-video-editor/internal/clock"
	"github.com/sai034/css-video-editor/internal/media"
	"github.com/sai034/css-video-editor/pkg/models"
)

// Source is a playable video: a playback position that moves with the
// clock and the frame presented at that position
type Source interface {
	Width() int
	Height() int
	Duration() float64
	// Seek moves to t and blocks until a frame is ready. Playback is paused.
	Seek(ctx context.Context, t float64) error
	Play()
	Pause()
	CurrentTime() float64
	Frame() image.Image
	Ended() bool
	Err() error
	Close() error
}

// Media opens sources and extracts their soundtrack
type Media interface {
	Open(ctx context.Context, ref string, fps int) (Source, error)
	ExtractAudio(ctx context.Context, ref string, r models.TimeRange) (*audiograph.Buffer, error)
}

type ffmpegMedia struct {
	ffmpeg *media.FFmpeg
	clock  clock.Clock
	logger zerolog.Logger
}

// NewFFmpegMedia plays local files through ffmpeg
func NewFFmpegMedia(f *media.FFmpeg, clk clock.Clock, logger zerolog.Logger) Media {
	return &ffmpegMedia{ffmpeg: f, clock: clk, logger: logger}
}

func (m *ffmpegMedia) Open(ctx context.Context, ref string, fps int) (Source, error) {
	src, err := m.ffmpeg.OpenVideo(ctx, ref, fps, m.clock, m.logger)
	if err != nil {
		return nil, err
	}
	return src, nil
}

func (m *ffmpegMedia) ExtractAudio(ctx context.Context, ref string, r models.TimeRange) (*audiograph.Buffer, error) {
	return m.ffmpeg.ExtractAudio(ctx, ref, r)
}
