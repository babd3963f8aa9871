// Package shapes resolves the vector outlines drawn behind text shapes.
//
// Outlines live in a local frame whose origin is the top-left corner of the
// shape's bounding box. Callers translate them to the overlay position.
package shapes

import (
	"math"
	"strconv"
	"strings"
)

// Kinds with a dedicated outline. Anything else resolves to Rectangle.
const (
	Triangle  = "triangle"
	Square    = "square"
	Rectangle = "rectangle"
	Circle    = "circle"
	Oval      = "oval"
	Diamond   = "diamond"
	Star      = "star"
	Trapezium = "trapezium"
	Pentagon  = "pentagon"
	Hexagon   = "hexagon"
	Heart     = "heart"
	Rhombus   = "rhombus"
)

// Kinds lists the supported outline kinds
var Kinds = []string{
	Triangle, Square, Rectangle, Circle, Oval, Diamond,
	Star, Trapezium, Pentagon, Hexagon, Heart, Rhombus,
}

// Op is a path command
type Op int

const (
	MoveTo Op = iota
	LineTo
	CubicTo
	ArcTo
	Close
)

// Point is a position in the local frame
type Point struct {
	X, Y float64
}

// Arc is an elliptical arc around Center. Angles are in radians, measured
// with y pointing down; a negative Sweep runs counter-clockwise on screen.
type Arc struct {
	Center Point
	RX, RY float64
	Start  float64
	Sweep  float64
}

// End returns the point where the arc finishes
func (a Arc) End() Point {
	theta := a.Start + a.Sweep
	return Point{X: a.Center.X + a.RX*math.Cos(theta), Y: a.Center.Y + a.RY*math.Sin(theta)}
}

// Segment is one command of a path. MoveTo and LineTo carry one point,
// CubicTo carries two control points and the end point.
type Segment struct {
	Op     Op
	Points []Point
	Arc    Arc
}

// Path is a closed outline
type Path []Segment

// Outline returns the outline for kind scaled to width x height.
// Zero sizes produce a degenerate path, not an error.
func Outline(kind string, width, height float64) Path {
	w, h := width, height
	hw, hh := w/2, h/2

	switch strings.ToLower(strings.TrimSpace(kind)) {
	case Triangle:
		return polygon(Point{hw, 0}, Point{w, h}, Point{0, h})
	case Square:
		return polygon(Point{0, 0}, Point{w, 0}, Point{w, w}, Point{0, w})
	case Circle:
		r := math.Min(w, h) / 2
		return ellipse(Point{hw, hh}, r, r)
	case Oval:
		return ellipse(Point{hw, hh}, hw, hh)
	case Diamond, Rhombus:
		return polygon(Point{hw, 0}, Point{w, hh}, Point{hw, h}, Point{0, hh})
	case Star:
		return polygon(Point{hw, 0}, Point{w * 0.6, h}, Point{0, h * 0.4}, Point{w, h * 0.4}, Point{w * 0.4, h})
	case Trapezium:
		return polygon(Point{w * 0.2, 0}, Point{w * 0.8, 0}, Point{w, h}, Point{0, h})
	case Pentagon:
		return polygon(Point{hw, 0}, Point{w, h * 0.4}, Point{w * 0.8, h}, Point{w * 0.2, h}, Point{0, h * 0.4})
	case Hexagon:
		return polygon(Point{w * 0.25, 0}, Point{w * 0.75, 0}, Point{w, hh}, Point{w * 0.75, h}, Point{w * 0.25, h}, Point{0, hh})
	case Heart:
		return Path{
			{Op: MoveTo, Points: []Point{{hw, h * 0.3}}},
			{Op: CubicTo, Points: []Point{{hw, h * 0.1}, {w * 0.7, 0}, {w, h * 0.2}}},
			{Op: CubicTo, Points: []Point{{w * 0.8, h * 0.6}, {hw, h * 0.9}, {hw, h}}},
			{Op: CubicTo, Points: []Point{{hw, h * 0.9}, {w * 0.2, h * 0.6}, {0, h * 0.2}}},
			{Op: CubicTo, Points: []Point{{w * 0.3, 0}, {hw, h * 0.1}, {hw, h * 0.3}}},
			{Op: Close},
		}
	default:
		return polygon(Point{0, 0}, Point{w, 0}, Point{w, h}, Point{0, h})
	}
}

func polygon(points ...Point) Path {
	path := make(Path, 0, len(points)+1)
	path = append(path, Segment{Op: MoveTo, Points: []Point{points[0]}})
	for _, p := range points[1:] {
		path = append(path, Segment{Op: LineTo, Points: []Point{p}})
	}
	return append(path, Segment{Op: Close})
}

// ellipse starts at the leftmost point and draws two half arcs
func ellipse(c Point, rx, ry float64) Path {
	return Path{
		{Op: MoveTo, Points: []Point{{c.X - rx, c.Y}}},
		{Op: ArcTo, Arc: Arc{Center: c, RX: rx, RY: ry, Start: math.Pi, Sweep: -math.Pi}},
		{Op: ArcTo, Arc: Arc{Center: c, RX: rx, RY: ry, Start: 0, Sweep: -math.Pi}},
		{Op: Close},
	}
}

// Translate returns the path moved by (dx, dy)
func (p Path) Translate(dx, dy float64) Path {
	out := make(Path, len(p))
	for i, seg := range p {
		out[i] = seg
		if len(seg.Points) > 0 {
			pts := make([]Point, len(seg.Points))
			for j, pt := range seg.Points {
				pts[j] = Point{pt.X + dx, pt.Y + dy}
			}
			out[i].Points = pts
		}
		if seg.Op == ArcTo {
			out[i].Arc.Center = Point{seg.Arc.Center.X + dx, seg.Arc.Center.Y + dy}
		}
	}
	return out
}

// Cubics returns an equivalent path in which every arc is replaced by cubic
// Bezier segments spanning at most a quarter turn each.
func (p Path) Cubics() Path {
	out := make(Path, 0, len(p))
	for _, seg := range p {
		if seg.Op != ArcTo {
			out = append(out, seg)
			continue
		}
		out = append(out, arcToCubics(seg.Arc)...)
	}
	return out
}

func arcToCubics(a Arc) Path {
	n := int(math.Ceil(math.Abs(a.Sweep) / (math.Pi / 2)))
	if n == 0 {
		return nil
	}
	step := a.Sweep / float64(n)
	k := 4.0 / 3.0 * math.Tan(step/4)

	segs := make(Path, 0, n)
	theta := a.Start
	for i := 0; i < n; i++ {
		cos0, sin0 := math.Cos(theta), math.Sin(theta)
		cos1, sin1 := math.Cos(theta+step), math.Sin(theta+step)
		segs = append(segs, Segment{Op: CubicTo, Points: []Point{
			{a.Center.X + a.RX*(cos0-k*sin0), a.Center.Y + a.RY*(sin0+k*cos0)},
			{a.Center.X + a.RX*(cos1+k*sin1), a.Center.Y + a.RY*(sin1-k*cos1)},
			{a.Center.X + a.RX*cos1, a.Center.Y + a.RY*sin1},
		}})
		theta += step
	}
	return segs
}

// Bounds returns the bounding box of the path's end and control points
func (p Path) Bounds() (min, max Point) {
	first := true
	add := func(pt Point) {
		if first {
			min, max = pt, pt
			first = false
			return
		}
		min.X, min.Y = math.Min(min.X, pt.X), math.Min(min.Y, pt.Y)
		max.X, max.Y = math.Max(max.X, pt.X), math.Max(max.Y, pt.Y)
	}
	for _, seg := range p.Cubics() {
		for _, pt := range seg.Points {
			add(pt)
		}
	}
	return min, max
}

// String renders SVG path data with absolute commands
func (p Path) String() string {
	var sb strings.Builder
	for i, seg := range p {
		if i > 0 {
			sb.WriteByte(' ')
		}
		switch seg.Op {
		case MoveTo:
			sb.WriteString("M")
			writePoints(&sb, seg.Points)
		case LineTo:
			sb.WriteString("L")
			writePoints(&sb, seg.Points)
		case CubicTo:
			sb.WriteString("C")
			writePoints(&sb, seg.Points)
		case ArcTo:
			large, sweep := 0, 0
			if math.Abs(seg.Arc.Sweep) > math.Pi {
				large = 1
			}
			if seg.Arc.Sweep > 0 {
				sweep = 1
			}
			end := seg.Arc.End()
			sb.WriteString("A")
			sb.WriteString(num(seg.Arc.RX) + "," + num(seg.Arc.RY) + " 0 ")
			sb.WriteString(strconv.Itoa(large) + "," + strconv.Itoa(sweep) + " ")
			sb.WriteString(num(end.X) + "," + num(end.Y))
		case Close:
			sb.WriteString("Z")
		}
	}
	return sb.String()
}

func writePoints(sb *strings.Builder, pts []Point) {
	for i, pt := range pts {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(num(pt.X) + "," + num(pt.Y))
	}
}

// num prints v with at most three decimals and no trailing zeros
func num(v float64) string {
	v = math.Round(v*1000) / 1000
	if v == 0 {
		v = 0 // drop negative zero
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
