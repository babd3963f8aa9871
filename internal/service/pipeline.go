package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sai034/css-video-editor/internal/clock"
	"github.com/sai034/css-video-editor/internal/compositor"
	"github.com/sai034/css-video-editor/internal/config"
	"github.com/sai034/css-video-editor/internal/encoder"
	"github.com/sai034/css-video-editor/internal/media"
	"github.com/sai034/css-video-editor/internal/render"
)

// Fetcher loads overlay images and music tracks
type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Pipeline is the ffmpeg-backed renderer shared by the worker and the CLI
type Pipeline struct {
	EditorRenderer
	fonts *compositor.FontBook
}

// NewPipeline wires ffmpeg decoding, the compositor and the ffmpeg encoder.
// Close releases the loaded fonts.
func NewPipeline(cfg config.RenderConfig, fetcher Fetcher, logger zerolog.Logger) (*Pipeline, error) {
	fonts, err := compositor.NewFontBook()
	if err != nil {
		return nil, fmt.Errorf("failed to load fonts: %w", err)
	}

	ffmpeg := media.NewFFmpeg(cfg.FFmpegPath, cfg.FFprobePath)
	clk := clock.Real{}

	return &Pipeline{
		EditorRenderer: EditorRenderer{
			Config: render.Config{
				FPS:               cfg.DefaultFPS,
				SampleRate:        cfg.SampleRate,
				Channels:          cfg.Channels,
				VideoBitrate:      cfg.VideoBitrate,
				AudioBitrate:      cfg.AudioBitrate,
				DecodeConcurrency: cfg.DecodeConcurrency,
			},
			Deps: render.Deps{
				Media:   render.NewFFmpegMedia(ffmpeg, clk, logger),
				Decoder: media.NewAudioDecoder(ffmpeg, fetcher, cfg.TempDir, logger),
				Encoder: encoder.NewAdapter(encoder.NewFFmpegFactory(ffmpeg.Path(), cfg.ChunkSize, logger), logger),
				Images:  fetcher,
				Fonts:   fonts,
				Clock:   clk,
				Logger:  logger,
			},
		},
		fonts: fonts,
	}, nil
}

// Close releases the pipeline's fonts
func (p *Pipeline) Close() error {
	return p.fonts.Close()
}
