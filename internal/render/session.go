package render

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sai034/css-video-editor/internal/audiograph"
	"github.com/sai034/css-video-editor/internal/compositor"
	"github.com/sai034/css-video-editor/internal/encoder"
	"github.com/sai034/css-video-editor/internal/timeline"
	"github.com/sai034/css-video-editor/pkg/models"
)

// Session is one render. A single goroutine pumps ticks; Cancel may be
// called from anywhere.
type Session struct {
	ID string

	editor   *Editor
	req      models.RenderRequest
	format   models.Format
	fps      int
	outDur   float64
	logger   zerolog.Logger
	observer Observer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	source   Source
	snapshot *timeline.Snapshot
	canvas   *compositor.Canvas
	comp     *compositor.Compositor
	mixer    *audiograph.Mixer
	graph    *audiograph.Graph
	handle   *encoder.Handle

	trackErrs []*audiograph.TrackError
	frames    int
	started   time.Time
	// endAt is the output time the source ran out at, when that came before
	// the end of the range
	endAt      float64
	endedEarly bool

	releaseOnce sync.Once
	result      *Result
	err         error
}

// Cancel stops the render and discards its output. It does not wait; use
// Wait or Done for that.
func (s *Session) Cancel() {
	s.cancel()
}

// Done is closed once the session has released its resources
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session ends and returns its result
func (s *Session) Wait() (*Result, error) {
	<-s.done
	return s.result, s.err
}

// Duration returns the output duration
func (s *Session) Duration() float64 {
	return s.outDur
}

// prepare opens the encoder and builds the audio graph
func (s *Session) prepare(ctx context.Context) error {
	cfg := s.editor.cfg
	handle, err := s.editor.deps.Encoder.Start(ctx, s.format, encoder.Spec{
		Width:        s.source.Width(),
		Height:       s.source.Height(),
		FPS:          s.fps,
		SampleRate:   cfg.SampleRate,
		Channels:     cfg.Channels,
		VideoBitrate: cfg.VideoBitrate,
		AudioBitrate: cfg.AudioBitrate,
	})
	if err != nil {
		return err
	}
	s.handle = handle

	var original *audiograph.Buffer
	if s.req.IncludeOriginalAudio {
		original, err = s.editor.deps.Media.ExtractAudio(ctx, s.req.Source, s.req.Range)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Original audio unavailable, rendering without it")
			original = nil
		}
	}

	s.mixer = audiograph.NewMixer(cfg.SampleRate, cfg.Channels)
	if s.editor.deps.Monitor != nil {
		s.mixer.SetMonitor(s.editor.deps.Monitor)
	}
	var actx audiograph.Context = s.mixer
	if wrap := s.editor.deps.AudioContext; wrap != nil {
		actx = wrap(s.mixer)
	}
	builder := audiograph.NewBuilder(actx, s.editor.deps.Decoder, s.logger, cfg.DecodeConcurrency)
	s.graph, s.trackErrs = builder.Build(ctx, audiograph.Input{
		RangeStart:      s.req.Range.Start,
		RangeEnd:        s.req.Range.End,
		Tracks:          s.req.Tracks,
		Original:        original,
		IncludeOriginal: s.req.IncludeOriginalAudio,
	})
	for _, te := range s.trackErrs {
		s.observer.OnTrackError(te)
	}
	return nil
}

func (s *Session) run() {
	if err := s.source.Seek(s.ctx, s.req.Range.Start); err != nil {
		if s.ctx.Err() != nil {
			s.finishCancelled()
			return
		}
		s.fail(fmt.Errorf("failed to seek source: %w", err))
		return
	}
	if err := s.editor.state.transition(StateRunning); err != nil {
		s.fail(err)
		return
	}

	s.started = s.editor.deps.Clock.Now()
	s.source.Play()
	ticker := s.editor.deps.Clock.NewTicker(time.Second / time.Duration(s.fps))
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			ticker.Stop()
			s.finishCancelled()
			return
		case <-ticker.C():
			finished, err := s.tick()
			if err != nil {
				ticker.Stop()
				s.fail(err)
				return
			}
			if finished {
				ticker.Stop()
				s.complete()
				return
			}
		}
	}
}

// tick renders the frame for the current playback position
func (s *Session) tick() (bool, error) {
	if err := s.source.Err(); err != nil {
		return false, fmt.Errorf("source playback failed: %w", err)
	}

	t := s.source.CurrentTime() - s.req.Range.Start
	if t < 0 {
		t = 0
	}
	if t >= s.outDur {
		return true, nil
	}
	if s.source.Ended() {
		s.endAt, s.endedEarly = t, true
		return true, nil
	}

	s.comp.DrawFrame(s.source.Frame(), s.snapshot.At(t))

	if err := s.pushAudio(t); err != nil {
		return false, err
	}
	if err := s.handle.WriteFrame(s.canvas.Front(), t); err != nil {
		return false, fmt.Errorf("failed to encode frame: %w", err)
	}
	s.frames++

	s.observer.OnProgress(Progress{
		SessionID: s.ID,
		Time:      t,
		Duration:  s.outDur,
		Percent:   t / s.outDur * 100,
		Frames:    s.frames,
	})
	return false, nil
}

func (s *Session) pushAudio(until float64) error {
	pcm, err := s.mixer.Render(until)
	if err != nil {
		// Only the monitor tee fails here; the mix itself is intact.
		s.logger.Warn().Err(err).Msg("Audio monitor write failed")
	}
	if err := s.handle.WriteAudio(pcm); err != nil {
		return fmt.Errorf("failed to encode audio: %w", err)
	}
	return nil
}

func (s *Session) complete() {
	if err := s.editor.state.transition(StateCompleting); err != nil {
		s.fail(err)
		return
	}

	dur := s.outputDuration()
	if err := s.pushAudio(dur); err != nil {
		s.fail(err)
		return
	}
	s.graph.Stop()

	blob, err := s.handle.Stop(dur)
	if err != nil {
		s.fail(err)
		return
	}

	s.result = &Result{
		SessionID:   s.ID,
		Blob:        blob,
		Duration:    dur,
		Stats:       s.handle.Stats(),
		TrackErrors: s.trackErrs,
	}
	s.release()
	_ = s.editor.state.transition(StateIdle)

	s.logger.Info().
		Int("frames", s.result.Stats.Frames).
		Int("dropped", s.result.Stats.Dropped).
		Int("bytes", len(blob.Data)).
		Dur("elapsed", s.editor.deps.Clock.Now().Sub(s.started)).
		Msg("Render completed")

	s.observer.OnComplete(s.result)
	close(s.done)
}

// outputDuration is the requested duration, or the elapsed one when the
// source ended first
func (s *Session) outputDuration() float64 {
	if s.endedEarly && s.endAt < s.outDur {
		return s.endAt
	}
	return s.outDur
}

func (s *Session) finishCancelled() {
	s.err = ErrCancelled
	_ = s.editor.state.transition(StateCancelled)
	s.release()
	_ = s.editor.state.transition(StateIdle)

	s.logger.Info().Msg("Render cancelled")
	close(s.done)
}

// fail ends a running session with err and reports it
func (s *Session) fail(err error) {
	s.end(err, true)
}

// abort ends a session that never started running. The error goes back to
// the caller of Start instead of the observer.
func (s *Session) abort(err error) {
	s.end(err, false)
}

func (s *Session) end(err error, notify bool) {
	s.err = err
	_ = s.editor.state.transition(StateFailed)
	s.release()
	_ = s.editor.state.transition(StateIdle)

	s.logger.Error().Err(err).Msg("Render failed")
	if notify {
		s.observer.OnFailed(err)
	}
	close(s.done)
}

// release frees everything the session holds. It runs once on every exit
// path.
func (s *Session) release() {
	s.releaseOnce.Do(func() {
		s.cancel()
		if s.graph != nil {
			s.graph.Stop()
		}
		if s.handle != nil {
			if s.result == nil {
				s.handle.Abort()
			}
		}
		if err := s.source.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to close source")
		}
		s.editor.release(s)
	})
}

// IsCancelled reports whether err is the result of Cancel
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
