package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sai034/css-video-editor/internal/clock"
)

// ErrNoVideo is returned when a source has no decodable video stream
var ErrNoVideo = errors.New("source has no video stream")

type decodedFrame struct {
	pts float64
	img *image.RGBA
}

// VideoSource plays a video file against a clock. Frames are decoded ahead
// by ffmpeg and presented when the playback position reaches them, so a
// reader always sees the latest frame whose timestamp has passed.
type VideoSource struct {
	ffmpeg *FFmpeg
	path   string
	info   Info
	fps    int
	clock  clock.Clock
	logger zerolog.Logger

	mu       sync.Mutex
	decoder  *frameDecoder
	base     float64
	playedAt time.Time
	playing  bool
	current  *decodedFrame
	next     *decodedFrame
	drained  bool
	closed   bool
}

// OpenVideo probes path and prepares it for playback at fps decoded frames
// per second. Nothing is decoded until Seek.
func (f *FFmpeg) OpenVideo(ctx context.Context, path string, fps int, clk clock.Clock, logger zerolog.Logger) (*VideoSource, error) {
	info, err := f.Inspect(ctx, path)
	if err != nil {
		return nil, err
	}
	if !info.HasVideo || info.Width <= 0 || info.Height <= 0 {
		return nil, ErrNoVideo
	}
	if fps <= 0 {
		fps = 30
	}
	if clk == nil {
		clk = clock.Real{}
	}

	return &VideoSource{
		ffmpeg: f,
		path:   path,
		info:   *info,
		fps:    fps,
		clock:  clk,
		logger: logger.With().Str("component", "video_source").Str("path", path).Logger(),
	}, nil
}

func (v *VideoSource) Width() int        { return v.info.Width }
func (v *VideoSource) Height() int       { return v.info.Height }
func (v *VideoSource) Duration() float64 { return v.info.Duration }
func (v *VideoSource) HasAudio() bool    { return v.info.HasAudio }
func (v *VideoSource) Path() string      { return v.path }

// Seek restarts decoding at t and blocks until the first frame is ready.
// Playback is paused afterwards.
func (v *VideoSource) Seek(ctx context.Context, t float64) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return errors.New("video source is closed")
	}
	if v.decoder != nil {
		v.decoder.stop()
	}
	dec, err := v.startDecoder(t)
	if err != nil {
		v.mu.Unlock()
		return err
	}
	v.decoder = dec
	v.base = t
	v.playing = false
	v.current, v.next = nil, nil
	v.drained = false
	v.mu.Unlock()

	select {
	case fr, ok := <-dec.frames:
		if !ok {
			if err := dec.error(); err != nil {
				return err
			}
			return fmt.Errorf("no frames at %.3fs", t)
		}
		v.mu.Lock()
		v.current = fr
		v.mu.Unlock()
		v.logger.Debug().Float64("time", t).Msg("Seek ready")
		return nil
	case <-ctx.Done():
		dec.stop()
		return ctx.Err()
	}
}

// Play starts or resumes the playback clock
func (v *VideoSource) Play() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.playing {
		return
	}
	v.playing = true
	v.playedAt = v.clock.Now()
}

// Pause freezes the playback position
func (v *VideoSource) Pause() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.playing {
		return
	}
	v.base = v.positionLocked()
	v.playing = false
}

// CurrentTime returns the playback position in source seconds
func (v *VideoSource) CurrentTime() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.positionLocked()
}

func (v *VideoSource) positionLocked() float64 {
	pos := v.base
	if v.playing {
		pos += v.clock.Now().Sub(v.playedAt).Seconds()
	}
	if v.info.Duration > 0 && pos > v.info.Duration {
		pos = v.info.Duration
	}
	return pos
}

// Frame returns the latest decoded frame at or before the playback position.
// It is nil before the first Seek completes.
func (v *VideoSource) Frame() image.Image {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.decoder == nil {
		return nil
	}
	pos := v.positionLocked()
	for {
		if v.next == nil && !v.drained {
			select {
			case fr, ok := <-v.decoder.frames:
				if !ok {
					v.drained = true
				} else {
					v.next = fr
				}
			default:
			}
		}
		if v.next == nil || v.next.pts > pos {
			break
		}
		v.current, v.next = v.next, nil
	}

	if v.current == nil {
		return nil
	}
	return v.current.img
}

// Ended reports whether playback reached the end of the source
func (v *VideoSource) Ended() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	pos := v.positionLocked()
	if v.info.Duration > 0 && pos >= v.info.Duration {
		return true
	}
	if !v.drained || v.next != nil {
		return false
	}
	if v.current == nil {
		return true
	}
	return pos >= v.current.pts+1/float64(v.fps)
}

// Err returns the decode failure, if any
func (v *VideoSource) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.decoder == nil {
		return nil
	}
	return v.decoder.error()
}

// Close stops decoding. Calling it again is a no-op.
func (v *VideoSource) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	v.closed = true
	v.playing = false
	if v.decoder != nil {
		v.decoder.stop()
	}
	return nil
}

func (v *VideoSource) startDecoder(at float64) (*frameDecoder, error) {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-ss", seconds(at),
		"-i", v.path,
		"-an",
		"-r", strconv.Itoa(v.fps),
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, v.ffmpeg.ffmpegPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	dec := &frameDecoder{
		frames: make(chan *decodedFrame, 4),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	cmd.Stderr = &dec.stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	go dec.run(ctx, cmd, stdout, at, v.fps, v.info.Width, v.info.Height)
	return dec, nil
}

type frameDecoder struct {
	frames chan *decodedFrame
	done   chan struct{}
	cancel context.CancelFunc
	stderr bytes.Buffer

	mu  sync.Mutex
	err error
}

func (d *frameDecoder) run(ctx context.Context, cmd *exec.Cmd, stdout io.Reader, start float64, fps, width, height int) {
	defer close(d.done)
	defer close(d.frames)

	size := width * height * 4
	for n := 0; ; n++ {
		img := image.NewRGBA(image.Rect(0, 0, width, height))
		if _, err := io.ReadFull(stdout, img.Pix[:size]); err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				d.setError(fmt.Errorf("failed to read frame %d: %w", n, err))
			}
			break
		}
		fr := &decodedFrame{pts: start + float64(n)/float64(fps), img: img}
		select {
		case d.frames <- fr:
		case <-ctx.Done():
			_ = cmd.Wait()
			return
		}
	}

	if err := cmd.Wait(); err != nil && ctx.Err() == nil {
		d.setError(fmt.Errorf("ffmpeg failed: %w, stderr: %s", err, d.stderr.String()))
	}
}

func (d *frameDecoder) setError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err == nil {
		d.err = err
	}
}

func (d *frameDecoder) error() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

func (d *frameDecoder) stop() {
	d.cancel()
	<-d.done
}
