package models

// AudioTrack is a background music track mixed into the output.
// TrackStartTime and TrackEndTime are measured on the source timeline, the
// same timeline TimeRange uses; the track's media position zero aligns with
// TrackStartTime.
type AudioTrack struct {
	ID             string  `json:"id" yaml:"id"`
	Name           string  `json:"name,omitempty" yaml:"name,omitempty"`
	URL            string  `json:"url" yaml:"url"`
	TrackStartTime float64 `json:"track_start_time" yaml:"track_start_time"`
	TrackEndTime   float64 `json:"track_end_time" yaml:"track_end_time"`
	Volume         float64 `json:"volume" yaml:"volume"`
	// FadeDuration is accepted and persisted but the mix does not ramp with it.
	FadeDuration float64 `json:"fade_duration" yaml:"fade_duration"`
	Selected     bool    `json:"selected" yaml:"selected"`
}

// DefaultTrackVolume is applied when a track carries no volume
const DefaultTrackVolume = 0.5

// EffectiveVolume returns the configured gain, falling back to the default
func (a AudioTrack) EffectiveVolume() float64 {
	if a.Volume <= 0 {
		return DefaultTrackVolume
	}
	if a.Volume > 1 {
		return 1
	}
	return a.Volume
}

// SelectedTracks filters the tracks that take part in a render
func SelectedTracks(tracks []AudioTrack) []AudioTrack {
	out := make([]AudioTrack, 0, len(tracks))
	for _, t := range tracks {
		if t.Selected {
			out = append(out, t)
		}
	}
	return out
}
