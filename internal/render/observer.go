package render

import (
	"github.com/sai034/css-video-editor/internal/audiograph"
	"github.com/sai034/css-video-editor/internal/compositor"
	"github.com/sai034/css-video-editor/internal/encoder"
)

// Progress is emitted once per rendered tick
type Progress struct {
	SessionID string
	// Time is the output time of the tick in seconds
	Time     float64
	Duration float64
	Percent  float64
	Frames   int
}

// Result is a finished render
type Result struct {
	SessionID string
	Blob      *encoder.Blob
	Duration  float64
	Stats     encoder.Stats
	// TrackErrors lists music tracks that were left out of the mix
	TrackErrors []*audiograph.TrackError
}

// Observer receives the events of a session. Methods are called from the
// session goroutine, except track errors which are delivered during Start.
type Observer interface {
	OnProgress(p Progress)
	OnOverlayError(err *compositor.OverlayError)
	OnTrackError(err *audiograph.TrackError)
	OnComplete(res *Result)
	OnFailed(err error)
}

// ObserverFuncs adapts functions to Observer. Nil fields are ignored.
type ObserverFuncs struct {
	Progress     func(p Progress)
	OverlayError func(err *compositor.OverlayError)
	TrackError   func(err *audiograph.TrackError)
	Complete     func(res *Result)
	Failed       func(err error)
}

func (o ObserverFuncs) OnProgress(p Progress) {
	if o.Progress != nil {
		o.Progress(p)
	}
}

func (o ObserverFuncs) OnOverlayError(err *compositor.OverlayError) {
	if o.OverlayError != nil {
		o.OverlayError(err)
	}
}

func (o ObserverFuncs) OnTrackError(err *audiograph.TrackError) {
	if o.TrackError != nil {
		o.TrackError(err)
	}
}

func (o ObserverFuncs) OnComplete(res *Result) {
	if o.Complete != nil {
		o.Complete(res)
	}
}

func (o ObserverFuncs) OnFailed(err error) {
	if o.Failed != nil {
		o.Failed(err)
	}
}
