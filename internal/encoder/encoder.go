// Package encoder turns a stream of composed frames and mixed PCM into an
// encoded container held in memory.
package encoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/image/draw"

	"github.com/sai034/css-video-editor/internal/audiograph"
	"github.com/sai034/css-video-editor/pkg/models"
)

var (
	// ErrNotEditable is wrapped by InitError for formats that cannot be encoded
	ErrNotEditable = errors.New("format cannot be encoded")
	// ErrClosed is returned by writes after Stop or Abort
	ErrClosed = errors.New("encoder is closed")
)

// InitError is returned when the encoder cannot be started
type InitError struct {
	Format string
	Err    error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("failed to start %s encoder: %v", e.Format, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// Spec describes the raw streams handed to the encoder
type Spec struct {
	Width        int
	Height       int
	FPS          int
	SampleRate   int
	Channels     int
	VideoBitrate string
	AudioBitrate string
}

// Validate checks the stream layout
func (s Spec) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", s.Width, s.Height)
	}
	if s.FPS <= 0 {
		return fmt.Errorf("invalid frame rate %d", s.FPS)
	}
	if s.SampleRate <= 0 || s.Channels <= 0 {
		return fmt.Errorf("invalid audio layout %d Hz x %d channels", s.SampleRate, s.Channels)
	}
	return nil
}

// Primitive is a chunked media encoder. Begin fails synchronously when the
// encoder cannot run; encoded output is handed to onChunk as it appears.
type Primitive interface {
	Begin(ctx context.Context, format models.Format, spec Spec, onChunk func([]byte)) error
	WriteVideo(frame []byte) error
	WriteAudio(pcm []byte) error
	Finalize() error
	Abort()
}

// Factory creates a fresh primitive for each render
type Factory func() Primitive

// Blob is a finished recording
type Blob struct {
	Data      []byte
	MediaType string
	Format    string
}

// Stats counts what happened to the frames handed to a Handle
type Stats struct {
	Frames     int
	Duplicated int
	Dropped    int
	Bytes      int64
}

// Adapter starts encoders
type Adapter struct {
	factory Factory
	logger  zerolog.Logger
}

// NewAdapter creates an adapter building primitives with factory
func NewAdapter(factory Factory, logger zerolog.Logger) *Adapter {
	return &Adapter{
		factory: factory,
		logger:  logger.With().Str("component", "encoder").Logger(),
	}
}

// Start opens an encoder for format. Any error is an *InitError.
func (a *Adapter) Start(ctx context.Context, format models.Format, spec Spec) (*Handle, error) {
	if !format.Editable {
		return nil, &InitError{Format: format.Name, Err: ErrNotEditable}
	}
	if err := spec.Validate(); err != nil {
		return nil, &InitError{Format: format.Name, Err: err}
	}

	h := &Handle{
		format: format,
		spec:   spec,
		logger: a.logger.With().Str("format", format.Name).Logger(),
	}
	prim := a.factory()
	if err := prim.Begin(ctx, format, spec, h.addChunk); err != nil {
		return nil, &InitError{Format: format.Name, Err: err}
	}
	h.prim = prim

	h.logger.Debug().
		Int("width", spec.Width).
		Int("height", spec.Height).
		Int("fps", spec.FPS).
		Msg("Encoder started")

	return h, nil
}

// Handle is one running encoder. Frames are captured at a constant rate:
// WriteFrame places each frame at index floor(t*fps), repeating the previous
// frame over gaps and dropping frames whose slot is already filled.
type Handle struct {
	prim   Primitive
	format models.Format
	spec   Spec
	logger zerolog.Logger

	mu     sync.Mutex
	stats  Stats
	next   int
	last   []byte
	closed bool

	// chunks has its own lock: the primitive delivers output while a
	// frame write may be blocked on it.
	chunkMu   sync.Mutex
	chunks    [][]byte
	bytes     int64
	discarded bool
}

func (h *Handle) addChunk(b []byte) {
	h.chunkMu.Lock()
	defer h.chunkMu.Unlock()
	if h.discarded {
		return
	}
	h.chunks = append(h.chunks, b)
	h.bytes += int64(len(b))
}

// WriteFrame captures img at output time t
func (h *Handle) WriteFrame(img image.Image, t float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}

	idx := int(math.Floor(t*float64(h.spec.FPS) + 1e-9))
	if idx < h.next {
		h.stats.Dropped++
		return nil
	}

	frame := h.rgbaBytes(img)
	fill := h.last
	if fill == nil {
		fill = frame
	}
	for h.next < idx {
		if err := h.writeVideo(fill); err != nil {
			return err
		}
		h.stats.Duplicated++
	}
	if err := h.writeVideo(frame); err != nil {
		return err
	}
	h.last = frame
	return nil
}

// WriteAudio feeds interleaved PCM
func (h *Handle) WriteAudio(samples []float32) error {
	if len(samples) == 0 {
		return nil
	}
	h.mu.Lock()
	prim := h.prim
	closed := h.closed
	h.mu.Unlock()
	if closed || prim == nil {
		return ErrClosed
	}
	return prim.WriteAudio(audiograph.EncodeFloat32LE(samples))
}

// Stop pads the capture to round(duration*fps) frames, finalizes the
// encoder and returns every chunk it produced as one blob
func (h *Handle) Stop(duration float64) (*Blob, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	total := int(math.Round(duration * float64(h.spec.FPS)))
	for h.last != nil && h.next < total {
		if err := h.writeVideo(h.last); err != nil {
			h.mu.Unlock()
			h.Abort()
			return nil, err
		}
		h.stats.Duplicated++
	}
	h.closed = true
	prim := h.prim
	h.mu.Unlock()

	if prim == nil {
		return nil, ErrClosed
	}
	if err := prim.Finalize(); err != nil {
		h.Abort()
		return nil, fmt.Errorf("failed to finalize encoder: %w", err)
	}

	h.chunkMu.Lock()
	blob := &Blob{
		Data:      bytes.Join(h.chunks, nil),
		MediaType: h.format.MediaType(),
		Format:    h.format.Name,
	}
	h.chunks = nil
	h.chunkMu.Unlock()

	stats := h.Stats()
	h.logger.Debug().
		Int("frames", stats.Frames).
		Int("duplicated", stats.Duplicated).
		Int("dropped", stats.Dropped).
		Int("bytes", len(blob.Data)).
		Msg("Encoder finalized")

	return blob, nil
}

// Abort kills the encoder and discards its output. Calling it again is a
// no-op.
func (h *Handle) Abort() {
	h.mu.Lock()
	prim := h.prim
	h.prim = nil
	h.closed = true
	h.mu.Unlock()

	h.chunkMu.Lock()
	h.discarded = true
	h.chunks = nil
	h.chunkMu.Unlock()

	if prim != nil {
		prim.Abort()
	}
}

// Stats returns the capture counters
func (h *Handle) Stats() Stats {
	h.mu.Lock()
	stats := h.stats
	h.mu.Unlock()

	h.chunkMu.Lock()
	stats.Bytes = h.bytes
	h.chunkMu.Unlock()
	return stats
}

func (h *Handle) writeVideo(frame []byte) error {
	if err := h.prim.WriteVideo(frame); err != nil {
		return fmt.Errorf("failed to write frame %d: %w", h.next, err)
	}
	h.next++
	h.stats.Frames++
	return nil
}

// rgbaBytes returns img as tightly packed RGBA at the encoder frame size
func (h *Handle) rgbaBytes(img image.Image) []byte {
	w, hgt := h.spec.Width, h.spec.Height
	out := image.NewRGBA(image.Rect(0, 0, w, hgt))
	if img == nil {
		return out.Pix
	}
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == hgt {
		draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(out, out.Bounds(), img, b, draw.Src, nil)
	}
	return out.Pix
}
