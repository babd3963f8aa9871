package compositor

import (
	"image"
	"image/draw"
	"sync"
)

// Canvas is a double-buffered RGBA surface. Frames are drawn on the back
// buffer and become visible to readers only on Present.
type Canvas struct {
	width, height int

	mu    sync.RWMutex
	front *image.RGBA
	back  *image.RGBA
	frame int64
}

// NewCanvas allocates both buffers
func NewCanvas(width, height int) *Canvas {
	r := image.Rect(0, 0, width, height)
	return &Canvas{
		width:  width,
		height: height,
		front:  image.NewRGBA(r),
		back:   image.NewRGBA(r),
	}
}

// Bounds returns the canvas rectangle
func (c *Canvas) Bounds() image.Rectangle {
	return image.Rect(0, 0, c.width, c.height)
}

// Back returns the buffer to draw the next frame on. Only the drawing
// goroutine may touch it.
func (c *Canvas) Back() *image.RGBA {
	return c.back
}

// Clear resets the back buffer to transparent black
func (c *Canvas) Clear() {
	clear(c.back.Pix)
}

// Present swaps the buffers, publishing the back buffer as the current frame
func (c *Canvas) Present() {
	c.mu.Lock()
	c.front, c.back = c.back, c.front
	c.frame++
	c.mu.Unlock()
}

// Snapshot copies the last presented frame into dst, allocating it when nil
func (c *Canvas) Snapshot(dst *image.RGBA) *image.RGBA {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if dst == nil || dst.Bounds() != c.front.Bounds() {
		dst = image.NewRGBA(c.front.Bounds())
	}
	draw.Draw(dst, dst.Bounds(), c.front, image.Point{}, draw.Src)
	return dst
}

// Front returns the last presented frame. The image stays valid until the
// next Present; callers that keep it longer must use Snapshot.
func (c *Canvas) Front() *image.RGBA {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.front
}

// Frames returns how many frames have been presented
func (c *Canvas) Frames() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frame
}
