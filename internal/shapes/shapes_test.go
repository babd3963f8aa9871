package shapes

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vertices(p Path) []Point {
	var pts []Point
	for _, seg := range p {
		if seg.Op == MoveTo || seg.Op == LineTo {
			pts = append(pts, seg.Points[0])
		}
	}
	return pts
}

func TestOutline_Polygons(t *testing.T) {
	tests := []struct {
		kind string
		want []Point
	}{
		{Triangle, []Point{{50, 0}, {100, 60}, {0, 60}}},
		{Square, []Point{{0, 0}, {100, 0}, {100, 100}, {0, 100}}},
		{Rectangle, []Point{{0, 0}, {100, 0}, {100, 60}, {0, 60}}},
		{Diamond, []Point{{50, 0}, {100, 30}, {50, 60}, {0, 30}}},
		{Rhombus, []Point{{50, 0}, {100, 30}, {50, 60}, {0, 30}}},
		{Star, []Point{{50, 0}, {60, 60}, {0, 24}, {100, 24}, {40, 60}}},
		{Trapezium, []Point{{20, 0}, {80, 0}, {100, 60}, {0, 60}}},
		{Pentagon, []Point{{50, 0}, {100, 24}, {80, 60}, {20, 60}, {0, 24}}},
		{Hexagon, []Point{{25, 0}, {75, 0}, {100, 30}, {75, 60}, {25, 60}, {0, 30}}},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			path := Outline(tt.kind, 100, 60)
			got := vertices(path)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.InDelta(t, tt.want[i].X, got[i].X, 1e-9)
				assert.InDelta(t, tt.want[i].Y, got[i].Y, 1e-9)
			}
			assert.Equal(t, Close, path[len(path)-1].Op)
		})
	}
}

func TestOutline_FallsBackToRectangle(t *testing.T) {
	rect := Outline(Rectangle, 80, 40)
	for _, kind := range []string{"", "blob", "custom", "none"} {
		t.Run(kind, func(t *testing.T) {
			assert.Equal(t, rect, Outline(kind, 80, 40))
		})
	}
}

func TestOutline_NormalizesKind(t *testing.T) {
	assert.Equal(t, Outline(Hexagon, 100, 50), Outline("  HeXaGoN ", 100, 50))
}

func TestOutline_Circle(t *testing.T) {
	path := Outline(Circle, 100, 60)
	require.Len(t, path, 4)

	assert.Equal(t, MoveTo, path[0].Op)
	assert.Equal(t, Point{20, 30}, path[0].Points[0])
	assert.Equal(t, ArcTo, path[1].Op)
	assert.Equal(t, 30.0, path[1].Arc.RX)
	assert.Equal(t, 30.0, path[1].Arc.RY)

	end := path[2].Arc.End()
	assert.InDelta(t, 20, end.X, 1e-9)
	assert.InDelta(t, 30, end.Y, 1e-9)

	min, max := path.Bounds()
	assert.InDelta(t, 20, min.X, 1e-6)
	assert.InDelta(t, 80, max.X, 1e-6)
}

func TestOutline_Oval(t *testing.T) {
	path := Outline(Oval, 100, 60)
	assert.Equal(t, 50.0, path[1].Arc.RX)
	assert.Equal(t, 30.0, path[1].Arc.RY)
	assert.Equal(t, "M0,30 A50,30 0 0,0 100,30 A50,30 0 0,0 0,30 Z", path.String())
}

func TestOutline_Heart(t *testing.T) {
	path := Outline(Heart, 100, 100)
	cubics := 0
	for _, seg := range path {
		if seg.Op == CubicTo {
			cubics++
		}
	}
	assert.Equal(t, 4, cubics)
	assert.Equal(t, Point{50, 30}, path[0].Points[0])
	assert.Equal(t, Point{50, 100}, path[2].Points[2])
}

func TestOutline_ZeroSize(t *testing.T) {
	for _, kind := range Kinds {
		t.Run(kind, func(t *testing.T) {
			path := Outline(kind, 0, 0)
			require.NotEmpty(t, path)
			min, max := path.Bounds()
			assert.Equal(t, min, max)
		})
	}
}

func TestOutline_Deterministic(t *testing.T) {
	for _, kind := range Kinds {
		assert.Equal(t, Outline(kind, 120, 80).String(), Outline(kind, 120, 80).String(), kind)
	}
}

func TestPath_String(t *testing.T) {
	assert.Equal(t, "M50,0 L100,60 L0,60 Z", Outline(Triangle, 100, 60).String())
	assert.Equal(t, "M0,0 L12.5,0 L12.5,12.5 L0,12.5 Z", Outline(Square, 12.5, 3).String())
}

func TestPath_Cubics(t *testing.T) {
	path := Outline(Circle, 100, 100).Cubics()
	for _, seg := range path {
		assert.NotEqual(t, ArcTo, seg.Op)
	}

	// every cubic end point lies on the circle
	for _, seg := range path {
		if seg.Op != CubicTo {
			continue
		}
		end := seg.Points[2]
		assert.InDelta(t, 50, math.Hypot(end.X-50, end.Y-50), 1e-9)
	}

	// each half turn is split into two quarter turns
	assert.Len(t, path, 1+4+1)
}

func TestPath_Translate(t *testing.T) {
	path := Outline(Circle, 10, 10).Translate(5, 7)
	assert.Equal(t, Point{5, 12}, path[0].Points[0])
	assert.Equal(t, Point{10, 12}, path[1].Arc.Center)

	orig := Outline(Circle, 10, 10)
	assert.Equal(t, Point{0, 5}, orig[0].Points[0])
}

func TestCache(t *testing.T) {
	cache := NewCache()

	a := cache.Outline("Star", 40, 40)
	b := cache.Outline("star", 40, 40)
	assert.Equal(t, a, b)
	assert.Equal(t, 1, cache.Len())

	cache.Outline("star", 40, 41)
	assert.Equal(t, 2, cache.Len())
}
