// Package render drives a render session: it plays the source against a
// clock, composes each tick onto a canvas and feeds frames and mixed audio
// to the encoder until the selected range has been played.
package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sai034/css-video-editor/internal/audiograph"
	"github.com/sai034/css-video-editor/internal/clock"
	"github.com/sai034/css-video-editor/internal/compositor"
	"github.com/sai034/css-video-editor/internal/encoder"
	"github.com/sai034/css-video-editor/internal/shapes"
	"github.com/sai034/css-video-editor/internal/timeline"
	"github.com/sai034/css-video-editor/pkg/models"
)

var (
	// ErrInvalidRange is returned when the range does not fit the source
	ErrInvalidRange = errors.New("invalid time range")
	// ErrUnsupportedFormat is returned for unknown or non-editable formats
	ErrUnsupportedFormat = errors.New("unsupported output format")
	// ErrCoverNotReady is returned when the cover photo cannot be loaded
	ErrCoverNotReady = errors.New("cover photo not loaded")
	// ErrCancelled is returned by Session.Wait after Cancel
	ErrCancelled = errors.New("render cancelled")
)

// Config holds render settings
type Config struct {
	// FPS is used when a request does not set one
	FPS               int
	SampleRate        int
	Channels          int
	VideoBitrate      string
	AudioBitrate      string
	DecodeConcurrency int
}

// Deps are the collaborators of an Editor
type Deps struct {
	Media    Media
	Decoder  audiograph.Decoder
	Encoder  *encoder.Adapter
	Images   compositor.Fetcher
	Fonts    *compositor.FontBook
	Clock    clock.Clock
	Observer Observer
	// Monitor receives a copy of the mixed audio, if set
	Monitor io.Writer
	// AudioContext, if set, wraps the mixer the audio graph is built on
	AudioContext func(m *audiograph.Mixer) audiograph.Context
	Logger       zerolog.Logger
}

// Editor runs at most one render session at a time
type Editor struct {
	cfg    Config
	deps   Deps
	shapes *shapes.Cache
	logger zerolog.Logger
	state  *stateMachine

	mu     sync.Mutex
	active *Session
}

// NewEditor creates an editor
func NewEditor(cfg Config, deps Deps) *Editor {
	if cfg.FPS <= 0 {
		cfg.FPS = models.DefaultFPS
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 2
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Observer == nil {
		deps.Observer = ObserverFuncs{}
	}

	e := &Editor{
		cfg:    cfg,
		deps:   deps,
		shapes: shapes.NewCache(),
		logger: deps.Logger.With().Str("component", "render").Logger(),
		state:  newStateMachine(),
	}
	e.state.onChange = func(from, to State) {
		e.logger.Debug().Str("from", string(from)).Str("to", string(to)).Msg("Render state changed")
	}
	return e
}

// State returns the editor state
func (e *Editor) State() State {
	return e.state.current()
}

// Active returns the running session, if any
func (e *Editor) Active() *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Cancel cancels the active session and waits for it to release its
// resources
func (e *Editor) Cancel() {
	if s := e.Active(); s != nil {
		s.Cancel()
		<-s.Done()
	}
}

// Start validates req and starts a session. Validation failures are
// returned before the encoder is touched; an active session is cancelled
// once the new request is known to be valid.
func (e *Editor) Start(ctx context.Context, req models.RenderRequest) (*Session, error) {
	format, ok := models.LookupFormat(req.Format)
	if !ok || !format.Editable {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, req.Format)
	}
	fps := req.FPS
	if fps <= 0 {
		fps = e.cfg.FPS
	}

	id := uuid.New().String()
	logger := e.logger.With().Str("session_id", id).Logger()

	source, err := e.deps.Media.Open(ctx, req.Source, fps)
	if err != nil {
		return nil, fmt.Errorf("failed to open source: %w", err)
	}
	if err := req.Range.Validate(source.Duration()); err != nil {
		source.Close()
		return nil, fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}
	outDur := req.Range.Duration()

	s := &Session{
		ID:       id,
		editor:   e,
		req:      req,
		format:   format,
		fps:      fps,
		outDur:   outDur,
		logger:   logger,
		observer: e.deps.Observer,
		source:   source,
		done:     make(chan struct{}),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.snapshot = timeline.NewSnapshot(req.Overlays, outDur)
	s.canvas = compositor.NewCanvas(source.Width(), source.Height())
	s.comp = compositor.New(s.canvas, compositor.Options{
		Fonts:    e.deps.Fonts,
		Images:   compositor.NewImageCache(e.deps.Images),
		Shapes:   e.shapes,
		Reporter: s.observer.OnOverlayError,
		Logger:   logger,
	})
	if err := s.comp.Preload(ctx, s.snapshot); err != nil {
		s.cancel()
		source.Close()
		return nil, fmt.Errorf("%w: %v", ErrCoverNotReady, err)
	}

	// Only one session per editor: the previous one is torn down first.
	e.Cancel()

	e.mu.Lock()
	if err := e.state.acquire(id); err != nil {
		e.mu.Unlock()
		s.cancel()
		source.Close()
		return nil, err
	}
	e.active = s
	e.mu.Unlock()

	if err := s.prepare(ctx); err != nil {
		s.abort(err)
		return nil, err
	}

	go s.run()

	logger.Info().
		Str("source", req.Source).
		Str("format", format.Name).
		Float64("start", req.Range.Start).
		Float64("end", req.Range.End).
		Int("fps", fps).
		Msg("Render started")

	return s, nil
}

func (e *Editor) release(s *Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == s {
		e.active = nil
	}
}

// Render starts req and blocks until it ends. Cancelling ctx cancels the
// session; Render still waits for it to release the encoder.
func (e *Editor) Render(ctx context.Context, req models.RenderRequest) (*Result, error) {
	s, err := e.Start(ctx, req)
	if err != nil {
		return nil, err
	}

	select {
	case <-s.Done():
	case <-ctx.Done():
		s.Cancel()
	}
	return s.Wait()
}
