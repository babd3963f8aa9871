package audiograph

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sai034/css-video-editor/pkg/models"
)

// Decoder turns a track reference into a decoded buffer
type Decoder interface {
	Decode(ctx context.Context, track models.AudioTrack) (*Buffer, error)
}

// DecoderFunc adapts a function to Decoder
type DecoderFunc func(ctx context.Context, track models.AudioTrack) (*Buffer, error)

func (f DecoderFunc) Decode(ctx context.Context, track models.AudioTrack) (*Buffer, error) {
	return f(ctx, track)
}

// TrackError reports a track that was left out of the mix
type TrackError struct {
	TrackID string
	Name    string
	Err     error
}

func (e *TrackError) Error() string {
	name := e.Name
	if name == "" {
		name = e.TrackID
	}
	return fmt.Sprintf("failed to load music track %s: %v", name, e.Err)
}

func (e *TrackError) Unwrap() error {
	return e.Err
}

// Input describes the mix of one render
type Input struct {
	RangeStart float64
	RangeEnd   float64
	Tracks     []models.AudioTrack
	// Original is the source soundtrack already trimmed to the range, if any.
	Original        *Buffer
	IncludeOriginal bool
}

// Graph is a built mix. Its sources are already started.
type Graph struct {
	OriginalGain Gain
	Schedules    map[string]Schedule

	mu      sync.Mutex
	sources []Source
	ids     []string
	stopped bool
}

// Scheduled returns the ids of tracks that were started, in track order
func (g *Graph) Scheduled() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.ids...)
}

// Stop silences every source. Calling it again is a no-op.
func (g *Graph) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return
	}
	g.stopped = true
	for _, src := range g.sources {
		src.Stop()
	}
}

// Builder assembles graphs on a Context
type Builder struct {
	ctx         Context
	decoder     Decoder
	logger      zerolog.Logger
	concurrency int
}

// NewBuilder creates a builder. concurrency bounds parallel decodes; zero or
// less decodes every track at once.
func NewBuilder(actx Context, decoder Decoder, logger zerolog.Logger, concurrency int) *Builder {
	return &Builder{
		ctx:         actx,
		decoder:     decoder,
		logger:      logger.With().Str("component", "audiograph").Logger(),
		concurrency: concurrency,
	}
}

// Build decodes every selected track, waits for all of them, then wires and
// starts the graph. Tracks that fail to decode are returned as TrackErrors
// and left out; they never fail the build.
func (b *Builder) Build(ctx context.Context, in Input) (*Graph, []*TrackError) {
	outDur := in.RangeEnd - in.RangeStart
	graph := &Graph{Schedules: make(map[string]Schedule)}
	dest := b.ctx.Destination()

	// Original audio is muted rather than disconnected so the topology is
	// the same whether or not it is included.
	gain := 0.0
	if in.IncludeOriginal {
		gain = 1.0
	}
	graph.OriginalGain = b.ctx.NewGain(gain)
	if err := graph.OriginalGain.Connect(dest); err != nil {
		b.logger.Error().Err(err).Msg("Failed to connect original audio gain")
	}
	if in.Original != nil {
		src := b.ctx.NewBufferSource(in.Original)
		if err := src.Connect(graph.OriginalGain); err == nil {
			if err := src.Start(0, 0, outDur); err == nil {
				graph.sources = append(graph.sources, src)
			}
		}
	}

	tracks := models.SelectedTracks(in.Tracks)
	buffers, errs := b.decodeAll(ctx, tracks)

	var trackErrs []*TrackError
	for i, track := range tracks {
		if errs[i] != nil {
			b.logger.Warn().Err(errs[i]).Str("track_id", track.ID).Msg("Dropping music track")
			trackErrs = append(trackErrs, &TrackError{TrackID: track.ID, Name: track.Name, Err: errs[i]})
			continue
		}

		plan, ok := Plan(in.RangeStart, in.RangeEnd, track)
		if !ok {
			b.logger.Debug().
				Str("track_id", track.ID).
				Float64("relative_start", plan.RelativeStart).
				Float64("relative_end", plan.RelativeEnd).
				Msg("Music track outside output range, not scheduled")
			continue
		}

		src := b.ctx.NewBufferSource(buffers[i])
		trackGain := b.ctx.NewGain(track.EffectiveVolume())
		if err := src.Connect(trackGain); err != nil {
			trackErrs = append(trackErrs, &TrackError{TrackID: track.ID, Name: track.Name, Err: err})
			continue
		}
		if err := trackGain.Connect(dest); err != nil {
			trackErrs = append(trackErrs, &TrackError{TrackID: track.ID, Name: track.Name, Err: err})
			continue
		}
		if err := src.Start(plan.PlayStart, plan.BufferOffset, plan.Audible); err != nil {
			trackErrs = append(trackErrs, &TrackError{TrackID: track.ID, Name: track.Name, Err: err})
			continue
		}

		graph.sources = append(graph.sources, src)
		graph.ids = append(graph.ids, track.ID)
		graph.Schedules[track.ID] = plan

		b.logger.Debug().
			Str("track_id", track.ID).
			Float64("play_start", plan.PlayStart).
			Float64("buffer_offset", plan.BufferOffset).
			Float64("audible", plan.Audible).
			Msg("Music track scheduled")
	}

	return graph, trackErrs
}

func (b *Builder) decodeAll(ctx context.Context, tracks []models.AudioTrack) ([]*Buffer, []error) {
	buffers := make([]*Buffer, len(tracks))
	errs := make([]error, len(tracks))

	var g errgroup.Group
	if b.concurrency > 0 {
		g.SetLimit(b.concurrency)
	}
	for i, track := range tracks {
		i, track := i, track
		g.Go(func() error {
			buf, err := b.decoder.Decode(ctx, track)
			if err == nil && buf == nil {
				err = &DecodeError{Reason: "decoder returned no buffer"}
			}
			buffers[i], errs[i] = buf, err
			return nil
		})
	}
	_ = g.Wait()

	return buffers, errs
}
