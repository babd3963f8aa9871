// Package timeline answers which overlays are active at a point of output time.
package timeline

import (
	"github.com/sai034/css-video-editor/pkg/models"
)

// ActiveAt returns every item whose window contains t, in insertion order
func ActiveAt[T models.Timed](items []T, t float64) []T {
	var out []T
	for _, item := range items {
		if item.Bounds().Contains(t) {
			out = append(out, item)
		}
	}
	return out
}

// FirstActive returns the first item whose window contains t. It implements
// the single-slot policy used by background colours and subtitles.
func FirstActive[T models.Timed](items []T, t float64) (T, bool) {
	for _, item := range items {
		if item.Bounds().Contains(t) {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// Frame is the set of overlays to draw for one output instant. Nothing here
// applies precedence; a cover photo and a background may both be set.
type Frame struct {
	Time       float64
	Cover      *models.CoverPhoto
	Background *models.BackgroundColor
	Images     []models.ImageOverlay
	TextShapes []models.TextShape
	Subtitle   *models.Subtitle
}

// Empty reports whether no overlay is active
func (f Frame) Empty() bool {
	return f.Cover == nil && f.Background == nil && f.Subtitle == nil &&
		len(f.Images) == 0 && len(f.TextShapes) == 0
}

// Snapshot is an immutable copy of the overlay set taken when a render
// starts. Later edits to the caller's set do not reach a running render.
type Snapshot struct {
	overlays models.OverlaySet
	duration float64
}

// NewSnapshot copies overlays and clamps every window to [0, duration]
func NewSnapshot(overlays models.OverlaySet, duration float64) *Snapshot {
	set := overlays.Clone()
	set.ClampTo(duration)
	return &Snapshot{overlays: set, duration: duration}
}

// Duration returns the output duration the snapshot was clamped to
func (s *Snapshot) Duration() float64 {
	return s.duration
}

// Overlays returns a copy of the captured set
func (s *Snapshot) Overlays() models.OverlaySet {
	return s.overlays.Clone()
}

// At resolves the overlays active at output time t
func (s *Snapshot) At(t float64) Frame {
	frame := Frame{
		Time:       t,
		Images:     ActiveAt(s.overlays.Images, t),
		TextShapes: ActiveAt(s.overlays.TextShapes, t),
	}

	if cover := s.overlays.CoverPhoto; cover != nil && cover.Bounds().Contains(t) {
		c := *cover
		frame.Cover = &c
	}
	if bg, ok := FirstActive(s.overlays.BackgroundColors, t); ok {
		frame.Background = &bg
	}
	if sub, ok := FirstActive(s.overlays.Subtitles, t); ok {
		frame.Subtitle = &sub
	}

	return frame
}

// ImageURLs lists every image reference the snapshot may draw, cover first
func (s *Snapshot) ImageURLs() map[string]string {
	refs := make(map[string]string, len(s.overlays.Images)+1)
	if s.overlays.CoverPhoto != nil {
		refs[s.overlays.CoverPhoto.ID] = s.overlays.CoverPhoto.URL
	}
	for _, img := range s.overlays.Images {
		refs[img.ID] = img.URL
	}
	return refs
}
