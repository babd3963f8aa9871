package audiograph

import (
	"math"

	"github.com/sai034/css-video-editor/pkg/models"
)

// Schedule places one track on the output timeline. All values are seconds.
type Schedule struct {
	// RelativeStart and RelativeEnd are the track window shifted to output time.
	RelativeStart float64
	RelativeEnd   float64
	// PlayStart is when, relative to output start, the track begins sounding.
	PlayStart float64
	// BufferOffset is how far into the decoded track reading begins.
	BufferOffset float64
	// PlayDuration never exceeds the track's own length nor the remaining output.
	PlayDuration float64
	// Audible is PlayDuration further capped so a pre-rolled track falls
	// silent at output time RelativeEnd.
	Audible float64
}

// StopAt returns the output time at which the track falls silent
func (s Schedule) StopAt() float64 {
	return s.PlayStart + s.Audible
}

// Plan maps a track onto the output range [rangeStart, rangeEnd]. It reports
// false when the track window does not intersect the output or would play
// for no time at all.
func Plan(rangeStart, rangeEnd float64, track models.AudioTrack) (Schedule, bool) {
	outDur := rangeEnd - rangeStart

	s := Schedule{
		RelativeStart: track.TrackStartTime - rangeStart,
		RelativeEnd:   track.TrackEndTime - rangeStart,
	}
	if !(s.RelativeEnd > 0 && s.RelativeStart < outDur) {
		return s, false
	}

	s.PlayStart = math.Max(0, s.RelativeStart)
	s.BufferOffset = math.Max(0, -s.RelativeStart)
	s.PlayDuration = math.Min(track.TrackEndTime-track.TrackStartTime, outDur-s.PlayStart)
	if s.PlayDuration <= 0 {
		return s, false
	}
	s.Audible = math.Min(s.PlayDuration, s.RelativeEnd-s.PlayStart)

	return s, true
}
