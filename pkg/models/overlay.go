package models

import "strings"

// DefaultCoverPhotoDuration is used when a cover photo carries no duration
const DefaultCoverPhotoDuration = 5.0

// Window is a span of output-relative time in seconds
type Window struct {
	StartTime float64 `json:"start_time" yaml:"start_time"`
	EndTime   float64 `json:"end_time" yaml:"end_time"`
}

// Bounds returns the window itself so every overlay variant satisfies Timed
func (w Window) Bounds() Window {
	return w
}

// Contains reports whether t lies inside the window, both ends inclusive
func (w Window) Contains(t float64) bool {
	return t >= w.StartTime && t <= w.EndTime
}

// Clamp limits the window to [0, duration]
func (w Window) Clamp(duration float64) Window {
	if w.StartTime < 0 {
		w.StartTime = 0
	}
	if w.EndTime > duration {
		w.EndTime = duration
	}
	return w
}

// Valid reports whether the window is non-empty
func (w Window) Valid() bool {
	return w.StartTime < w.EndTime
}

// Timed is implemented by everything placed on the output timeline
type Timed interface {
	Bounds() Window
}

// Position is a point in output canvas pixels
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Size is a width/height pair in output canvas pixels
type Size struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// CoverPhoto fully occludes the output from time zero for Duration seconds
type CoverPhoto struct {
	ID       string  `json:"id" yaml:"id"`
	URL      string  `json:"url" yaml:"url"`
	Duration float64 `json:"duration" yaml:"duration"`
}

// Bounds returns the cover photo's active window
func (c CoverPhoto) Bounds() Window {
	d := c.Duration
	if d <= 0 {
		d = DefaultCoverPhotoDuration
	}
	return Window{StartTime: 0, EndTime: d}
}

// BackgroundColor fills the canvas beneath a translucent video frame
type BackgroundColor struct {
	ID   string `json:"id" yaml:"id"`
	Code string `json:"code" yaml:"code"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	Window `yaml:",inline"`
}

// ImageOverlay is a raster image drawn over the video frame
type ImageOverlay struct {
	ID       string   `json:"id" yaml:"id"`
	URL      string   `json:"url" yaml:"url"`
	Position Position `json:"position" yaml:"position"`
	Size     Size     `json:"size" yaml:"size"`
	Opacity  float64  `json:"opacity" yaml:"opacity"`
	Window   `yaml:",inline"`
}

// ShapeNone draws the text of a TextShape without an outline
const ShapeNone = "none"

// ShapeCustom selects the outline named by TextShape.CustomShapeName
const ShapeCustom = "custom"

// TextShape is a text label optionally framed by a vector outline
type TextShape struct {
	ID              string   `json:"id" yaml:"id"`
	Text            string   `json:"text" yaml:"text"`
	Shape           string   `json:"shape" yaml:"shape"`
	CustomShapeName string   `json:"custom_shape_name,omitempty" yaml:"custom_shape_name,omitempty"`
	Position        Position `json:"position" yaml:"position"`
	Size            Size     `json:"size" yaml:"size"`
	Color           string   `json:"color" yaml:"color"`
	BackgroundColor string   `json:"background_color" yaml:"background_color"`
	BorderColor     string   `json:"border_color" yaml:"border_color"`
	BorderWidth     float64  `json:"border_width" yaml:"border_width"`
	Opacity         float64  `json:"opacity" yaml:"opacity"`
	FontFamily      string   `json:"font_family" yaml:"font_family"`
	FontSize        float64  `json:"font_size" yaml:"font_size"`
	ShowBackground  bool     `json:"show_background" yaml:"show_background"`
	Window          `yaml:",inline"`
}

// OutlineKind returns the shape kind used to resolve the outline
func (s TextShape) OutlineKind() string {
	if s.Shape == ShapeCustom && s.CustomShapeName != "" {
		return s.CustomShapeName
	}
	return s.Shape
}

// HasOutline reports whether an outline is drawn behind the text. Empty and
// unknown kinds draw a rectangle; only "none" skips it.
func (s TextShape) HasOutline() bool {
	return strings.ToLower(strings.TrimSpace(s.Shape)) != ShapeNone
}

// Subtitle is a caption anchored at the bottom centre of the frame
type Subtitle struct {
	ID         string  `json:"id" yaml:"id"`
	Text       string  `json:"text" yaml:"text"`
	FontFamily string  `json:"font_family" yaml:"font_family"`
	FontSize   float64 `json:"font_size" yaml:"font_size"`
	Color      string  `json:"color,omitempty" yaml:"color,omitempty"`
	Window     `yaml:",inline"`
}

// OverlaySet is the full set of overlays handed to a render
type OverlaySet struct {
	CoverPhoto       *CoverPhoto       `json:"cover_photo,omitempty" yaml:"cover_photo,omitempty"`
	BackgroundColors []BackgroundColor `json:"background_colors,omitempty" yaml:"background_colors,omitempty"`
	Images           []ImageOverlay    `json:"images,omitempty" yaml:"images,omitempty"`
	TextShapes       []TextShape       `json:"text_shapes,omitempty" yaml:"text_shapes,omitempty"`
	Subtitles        []Subtitle        `json:"subtitles,omitempty" yaml:"subtitles,omitempty"`
}

// Clone returns a deep copy of the set
func (s OverlaySet) Clone() OverlaySet {
	out := OverlaySet{
		BackgroundColors: append([]BackgroundColor(nil), s.BackgroundColors...),
		Images:           append([]ImageOverlay(nil), s.Images...),
		TextShapes:       append([]TextShape(nil), s.TextShapes...),
		Subtitles:        append([]Subtitle(nil), s.Subtitles...),
	}
	if s.CoverPhoto != nil {
		cover := *s.CoverPhoto
		out.CoverPhoto = &cover
	}
	return out
}

// ClampTo clamps every overlay window to [0, duration]
func (s *OverlaySet) ClampTo(duration float64) {
	for i := range s.BackgroundColors {
		s.BackgroundColors[i].Window = s.BackgroundColors[i].Window.Clamp(duration)
	}
	for i := range s.Images {
		s.Images[i].Window = s.Images[i].Window.Clamp(duration)
	}
	for i := range s.TextShapes {
		s.TextShapes[i].Window = s.TextShapes[i].Window.Clamp(duration)
	}
	for i := range s.Subtitles {
		s.Subtitles[i].Window = s.Subtitles[i].Window.Clamp(duration)
	}
}
