// Package compositor draws one output frame: the source video frame plus
// every overlay active at that instant.
package compositor

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/rs/zerolog"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"github.com/sai034/css-video-editor/internal/shapes"
	"github.com/sai034/css-video-editor/internal/timeline"
	"github.com/sai034/css-video-editor/pkg/models"
)

// Overlay kinds used in OverlayError
const (
	KindCover      = "cover_photo"
	KindBackground = "background_color"
	KindImage      = "image"
	KindTextShape  = "text_shape"
	KindSubtitle   = "subtitle"
)

// Subtitle layout
const (
	SubtitleBottomMargin = 40
	SubtitleStrokeWidth  = 6
	DefaultSubtitleSize  = 20
)

// backgroundVideoAlpha is the video opacity over an active background colour
const backgroundVideoAlpha = 0.5

// defaultBackground fills the canvas when a background code does not parse
var defaultBackground = color.RGBA{A: 0xff}

// OverlayError is reported when one overlay cannot be drawn
type OverlayError struct {
	Kind      string
	OverlayID string
	Err       error
}

func (e *OverlayError) Error() string {
	return fmt.Sprintf("failed to draw %s %s: %v", e.Kind, e.OverlayID, e.Err)
}

func (e *OverlayError) Unwrap() error {
	return e.Err
}

// Reporter receives overlay errors. Each overlay is reported at most once
// per Compositor.
type Reporter func(err *OverlayError)

// Options configures a Compositor
type Options struct {
	Fonts    *FontBook
	Images   *ImageCache
	Shapes   *shapes.Cache
	Reporter Reporter
	Logger   zerolog.Logger
}

// Compositor draws frames onto a Canvas
type Compositor struct {
	canvas *Canvas
	fonts  *FontBook
	images *ImageCache
	shapes *shapes.Cache
	report Reporter
	logger zerolog.Logger

	layer *image.RGBA

	mu       sync.Mutex
	reported map[string]bool
}

// New creates a compositor drawing onto canvas
func New(canvas *Canvas, opts Options) *Compositor {
	if opts.Shapes == nil {
		opts.Shapes = shapes.NewCache()
	}
	return &Compositor{
		canvas:   canvas,
		fonts:    opts.Fonts,
		images:   opts.Images,
		shapes:   opts.Shapes,
		report:   opts.Reporter,
		logger:   opts.Logger.With().Str("component", "compositor").Logger(),
		layer:    image.NewRGBA(canvas.Bounds()),
		reported: make(map[string]bool),
	}
}

// Canvas returns the surface frames are drawn on
func (c *Compositor) Canvas() *Canvas {
	return c.canvas
}

// Preload fetches the cover photo and every image overlay. A cover photo
// that cannot be loaded is returned as an error; image overlays that fail
// are reported and skipped at draw time.
func (c *Compositor) Preload(ctx context.Context, snap *timeline.Snapshot) error {
	set := snap.Overlays()
	c.images.Retain(snap.ImageURLs())

	if cover := set.CoverPhoto; cover != nil {
		if _, err := c.images.Load(ctx, cover.ID, cover.URL); err != nil {
			return &OverlayError{Kind: KindCover, OverlayID: cover.ID, Err: err}
		}
	}

	for _, img := range set.Images {
		if _, err := c.images.Load(ctx, img.ID, img.URL); err != nil {
			c.fail(KindImage, img.ID, err)
		}
	}
	return nil
}

// DrawFrame composes source and the overlays of frame on the back buffer and
// presents it. source may be nil before the first decoded frame.
func (c *Compositor) DrawFrame(source image.Image, frame timeline.Frame) {
	dst := c.canvas.Back()
	c.canvas.Clear()

	if frame.Cover != nil {
		c.drawCover(dst, frame.Cover)
		c.canvas.Present()
		return
	}

	videoAlpha := 1.0
	if bg := frame.Background; bg != nil {
		col, err := ParseColor(bg.Code)
		if err != nil {
			c.fail(KindBackground, bg.ID, err)
			col = defaultBackground
		}
		draw.Draw(dst, dst.Bounds(), image.NewUniform(col), image.Point{}, draw.Src)
		videoAlpha = backgroundVideoAlpha
	}

	if source != nil {
		scaleInto(dst, dst.Bounds(), source, videoAlpha)
	}

	for _, img := range frame.Images {
		c.drawImage(dst, img)
	}

	for _, shape := range frame.TextShapes {
		c.drawTextShape(dst, shape)
	}

	if frame.Subtitle != nil {
		c.drawSubtitle(dst, frame.Subtitle)
	}

	c.canvas.Present()
}

func (c *Compositor) drawCover(dst *image.RGBA, cover *models.CoverPhoto) {
	img, ok := c.images.Lookup(cover.ID, cover.URL)
	if !ok {
		c.fail(KindCover, cover.ID, fmt.Errorf("cover photo %s is not loaded", cover.URL))
		return
	}
	scaleInto(dst, dst.Bounds(), img, 1)
}

func (c *Compositor) drawImage(dst *image.RGBA, overlay models.ImageOverlay) {
	img, ok := c.images.Lookup(overlay.ID, overlay.URL)
	if !ok {
		c.fail(KindImage, overlay.ID, fmt.Errorf("image %s is not loaded", overlay.URL))
		return
	}

	b := img.Bounds()
	w, h := overlay.Size.Width, overlay.Size.Height
	if w <= 0 {
		w = float64(b.Dx())
	}
	if h <= 0 {
		h = float64(b.Dy())
	}

	x, y := int(math.Round(overlay.Position.X)), int(math.Round(overlay.Position.Y))
	rect := image.Rect(x, y, x+int(math.Round(w)), y+int(math.Round(h)))
	scaleInto(dst, rect, img, clampUnit(overlay.Opacity))
}

func (c *Compositor) drawTextShape(dst *image.RGBA, shape models.TextShape) {
	textColor, err := ColorOr(shape.Color, color.RGBA{A: 0xff})
	if err != nil {
		c.fail(KindTextShape, shape.ID, err)
		return
	}
	face, err := c.fonts.Face(shape.FontFamily, shape.FontSize, false)
	if err != nil {
		c.fail(KindTextShape, shape.ID, err)
		return
	}

	opacity := clampUnit(shape.Opacity)
	if opacity == 0 {
		return
	}

	// Partially transparent shapes are drawn on a scratch layer first so
	// the outline, fill and text overlap as one group.
	target := dst
	if opacity < 1 {
		clear(c.layer.Pix)
		target = c.layer
	}

	textX, textY := shape.Position.X, shape.Position.Y

	if shape.HasOutline() {
		fill, err := ColorOr(shape.BackgroundColor, color.RGBA{A: 0xff})
		if err != nil {
			c.fail(KindTextShape, shape.ID, err)
			return
		}
		stroke, err := ColorOr(shape.BorderColor, color.RGBA{A: 0xff})
		if err != nil {
			c.fail(KindTextShape, shape.ID, err)
			return
		}

		path := c.shapes.Outline(shape.OutlineKind(), shape.Size.Width, shape.Size.Height).
			Translate(shape.Position.X, shape.Position.Y)

		if shape.ShowBackground {
			fillPath(target, path, fill)
		}
		strokePath(target, path, stroke, shape.BorderWidth)

		textX += shape.Size.Width / 2
		textY += shape.Size.Height / 2
	}

	drawTextMiddle(target, face, shape.Text, textX, textY, textColor)

	if target != dst {
		draw.DrawMask(dst, dst.Bounds(), target, image.Point{}, image.NewUniform(alphaOf(opacity)), image.Point{}, draw.Over)
	}
}

func (c *Compositor) drawSubtitle(dst *image.RGBA, sub *models.Subtitle) {
	fill, err := ColorOr(sub.Color, color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff})
	if err != nil {
		c.fail(KindSubtitle, sub.ID, err)
		return
	}

	size := sub.FontSize
	if size <= 0 {
		size = DefaultSubtitleSize
	}
	face, err := c.fonts.Face(sub.FontFamily, size, true)
	if err != nil {
		c.fail(KindSubtitle, sub.ID, err)
		return
	}

	b := dst.Bounds()
	x := float64(b.Dx()) / 2
	bottom := float64(b.Dy() - SubtitleBottomMargin)

	width := font.MeasureString(face, sub.Text)
	dotX := fixed.Int26_6(x*64) - width/2
	dotY := fixed.Int26_6(bottom*64) - face.Metrics().Descent

	outlineText(dst, face, sub.Text, dotX, dotY, color.RGBA{A: 0xff}, SubtitleStrokeWidth/2)
	drawText(dst, face, sub.Text, dotX, dotY, fill)
}

// fail reports err once per overlay
func (c *Compositor) fail(kind, id string, err error) {
	key := kind + "/" + id

	c.mu.Lock()
	seen := c.reported[key]
	c.reported[key] = true
	c.mu.Unlock()

	if seen {
		return
	}

	oe := &OverlayError{Kind: kind, OverlayID: id, Err: err}
	c.logger.Warn().Err(err).Str("overlay_kind", kind).Str("overlay_id", id).Msg("Skipping overlay")
	if c.report != nil {
		c.report(oe)
	}
}

// scaleInto draws src scaled to rect with the given opacity
func scaleInto(dst *image.RGBA, rect image.Rectangle, src image.Image, opacity float64) {
	if opacity <= 0 || rect.Empty() {
		return
	}
	var opts *draw.Options
	if opacity < 1 {
		opts = &draw.Options{SrcMask: image.NewUniform(alphaOf(opacity))}
	}
	draw.BiLinear.Scale(dst, rect, src, src.Bounds(), draw.Over, opts)
}

func fillPath(dst *image.RGBA, path shapes.Path, col color.RGBA) {
	b := dst.Bounds()
	scanner := rasterx.NewScannerGV(b.Dx(), b.Dy(), dst, b)
	filler := rasterx.NewFiller(b.Dx(), b.Dy(), scanner)
	tracePath(filler, path)
	filler.SetColor(col)
	filler.Draw()
}

func strokePath(dst *image.RGBA, path shapes.Path, col color.RGBA, width float64) {
	if width <= 0 {
		width = 1
	}
	b := dst.Bounds()
	scanner := rasterx.NewScannerGV(b.Dx(), b.Dy(), dst, b)
	stroker := rasterx.NewStroker(b.Dx(), b.Dy(), scanner)
	stroker.SetStroke(toFixed(width), toFixed(10), rasterx.ButtCap, rasterx.ButtCap, rasterx.FlatGap, rasterx.Miter)
	tracePath(stroker, path)
	stroker.SetColor(col)
	stroker.Draw()
}

// tracePath feeds an outline to a rasterx adder. Arcs are expected to have
// been converted to cubics already; stray ones are converted here.
func tracePath(a rasterx.Adder, path shapes.Path) {
	open := false
	for _, seg := range path.Cubics() {
		switch seg.Op {
		case shapes.MoveTo:
			if open {
				a.Stop(false)
			}
			a.Start(toFixedPoint(seg.Points[0]))
			open = true
		case shapes.LineTo:
			a.Line(toFixedPoint(seg.Points[0]))
		case shapes.CubicTo:
			a.CubeBezier(toFixedPoint(seg.Points[0]), toFixedPoint(seg.Points[1]), toFixedPoint(seg.Points[2]))
		case shapes.Close:
			a.Stop(true)
			open = false
		}
	}
	if open {
		a.Stop(false)
	}
}

// drawTextMiddle draws text centred horizontally on x with its em box
// vertically centred on y
func drawTextMiddle(dst *image.RGBA, face font.Face, text string, x, y float64, col color.RGBA) {
	m := face.Metrics()
	width := font.MeasureString(face, text)
	dotX := toFixed(x) - width/2
	dotY := toFixed(y) + (m.Ascent-m.Descent)/2
	drawText(dst, face, text, dotX, dotY, col)
}

func drawText(dst *image.RGBA, face font.Face, text string, x, y fixed.Int26_6, col color.RGBA) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.Point26_6{X: x, Y: y},
	}
	d.DrawString(text)
}

// outlineText approximates a centred stroke of the glyph outlines by
// stamping the text at every offset within radius pixels
func outlineText(dst *image.RGBA, face font.Face, text string, x, y fixed.Int26_6, col color.RGBA, radius int) {
	r2 := radius * radius
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy > r2 || (dx == 0 && dy == 0) {
				continue
			}
			drawText(dst, face, text, x+fixed.I(dx), y+fixed.I(dy), col)
		}
	}
}

func toFixed(v float64) fixed.Int26_6 {
	return fixed.Int26_6(math.Round(v * 64))
}

func toFixedPoint(p shapes.Point) fixed.Point26_6 {
	return fixed.Point26_6{X: toFixed(p.X), Y: toFixed(p.Y)}
}

func alphaOf(opacity float64) color.Alpha {
	return color.Alpha{A: uint8(math.Round(clampUnit(opacity) * 0xff))}
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
