package encoder

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sai034/css-video-editor/pkg/models"
)

// DefaultChunkSize is how much encoded output is read per chunk
const DefaultChunkSize = 64 * 1024

// FFmpegPrimitive encodes with an ffmpeg child process. Raw RGBA frames go to
// stdin, float32 PCM to an inherited pipe (fd 3) and the container is read
// back from stdout.
type FFmpegPrimitive struct {
	path      string
	chunkSize int
	logger    zerolog.Logger

	cmd     *exec.Cmd
	cancel  context.CancelFunc
	video   *pipeWriter
	audio   *pipeWriter
	outDone chan struct{}
	stderr  bytes.Buffer

	abortOnce sync.Once
}

// NewFFmpegFactory returns a Factory producing ffmpeg primitives
func NewFFmpegFactory(ffmpegPath string, chunkSize int, logger zerolog.Logger) Factory {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return func() Primitive {
		return &FFmpegPrimitive{path: ffmpegPath, chunkSize: chunkSize, logger: logger}
	}
}

// Args builds the ffmpeg command line for format and spec
func Args(format models.Format, spec Spec) []string {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", spec.Width, spec.Height),
		"-r", strconv.Itoa(spec.FPS),
		"-i", "pipe:0",
		"-f", "f32le",
		"-ar", strconv.Itoa(spec.SampleRate),
		"-ac", strconv.Itoa(spec.Channels),
		"-i", "pipe:3",
		"-map", "0:v:0",
		"-map", "1:a:0",
		// 4:2:0 codecs need even dimensions.
		"-vf", "scale=trunc(iw/2)*2:trunc(ih/2)*2",
		"-c:v", format.VideoCodec,
	}
	if spec.VideoBitrate != "" {
		args = append(args, "-b:v", spec.VideoBitrate)
	}
	args = append(args, "-c:a", format.AudioCodec)
	if spec.AudioBitrate != "" {
		args = append(args, "-b:a", spec.AudioBitrate)
	}
	args = append(args, format.MuxerArgs...)
	args = append(args, "-f", format.Muxer, "pipe:1")
	return args
}

// Begin starts ffmpeg. A missing binary or bad arguments fail here.
func (p *FFmpegPrimitive) Begin(ctx context.Context, format models.Format, spec Spec, onChunk func([]byte)) error {
	audioR, audioW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("failed to create audio pipe: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, p.path, Args(format, spec)...)
	cmd.ExtraFiles = []*os.File{audioR}
	cmd.Stderr = &p.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		audioR.Close()
		audioW.Close()
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		audioR.Close()
		audioW.Close()
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		audioR.Close()
		audioW.Close()
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	// The child holds its own copy of the read end.
	audioR.Close()

	p.cmd = cmd
	p.cancel = cancel
	p.video = newPipeWriter(stdin, 16)
	p.audio = newPipeWriter(audioW, 64)
	p.outDone = make(chan struct{})

	go p.readChunks(stdout, onChunk)

	p.logger.Debug().Str("format", format.Name).Int("pid", cmd.Process.Pid).Msg("ffmpeg encoder started")
	return nil
}

func (p *FFmpegPrimitive) readChunks(r io.Reader, onChunk func([]byte)) {
	defer close(p.outDone)
	buf := make([]byte, p.chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			onChunk(chunk)
		}
		if err != nil {
			return
		}
	}
}

func (p *FFmpegPrimitive) WriteVideo(frame []byte) error {
	return p.video.Write(frame)
}

func (p *FFmpegPrimitive) WriteAudio(pcm []byte) error {
	return p.audio.Write(pcm)
}

// Finalize closes both inputs and waits for ffmpeg to flush the container
func (p *FFmpegPrimitive) Finalize() error {
	videoErr := p.video.Close()
	audioErr := p.audio.Close()
	<-p.outDone

	err := p.cmd.Wait()
	p.cancel()
	if err != nil {
		return fmt.Errorf("ffmpeg failed: %w, stderr: %s", err, p.stderr.String())
	}
	if videoErr != nil {
		return fmt.Errorf("failed to write video: %w", videoErr)
	}
	if audioErr != nil {
		return fmt.Errorf("failed to write audio: %w", audioErr)
	}
	return nil
}

// Abort kills ffmpeg
func (p *FFmpegPrimitive) Abort() {
	p.abortOnce.Do(func() {
		if p.cmd == nil {
			return
		}
		p.cancel()
		_ = p.video.Close()
		_ = p.audio.Close()
		<-p.outDone
		_ = p.cmd.Wait()
		p.logger.Debug().Msg("ffmpeg encoder aborted")
	})
}

// pipeWriter feeds a pipe from its own goroutine so a stalled input never
// blocks the other one
type pipeWriter struct {
	w     io.WriteCloser
	queue chan []byte
	done  chan struct{}

	mu     sync.RWMutex
	closed bool

	errMu sync.Mutex
	err   error
}

func newPipeWriter(w io.WriteCloser, depth int) *pipeWriter {
	p := &pipeWriter{
		w:     w,
		queue: make(chan []byte, depth),
		done:  make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *pipeWriter) run() {
	defer close(p.done)
	for b := range p.queue {
		if p.error() != nil {
			continue
		}
		if _, err := p.w.Write(b); err != nil {
			p.setError(err)
		}
	}
	if err := p.w.Close(); err != nil && p.error() == nil {
		p.setError(err)
	}
}

func (p *pipeWriter) Write(b []byte) error {
	if err := p.error(); err != nil {
		return err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	p.queue <- b
	return nil
}

// Close drains the queue and closes the pipe. Calling it again returns the
// first write error, if any.
func (p *pipeWriter) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	<-p.done
	return p.error()
}

func (p *pipeWriter) setError(err error) {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	if p.err == nil {
		p.err = err
	}
}

func (p *pipeWriter) error() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.err
}
