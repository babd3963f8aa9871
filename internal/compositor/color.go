package compositor

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/colornames"
)

// ParseColor accepts #rgb and #rrggbb hex codes, rgb()/rgba() functions and
// CSS colour names.
func ParseColor(s string) (color.RGBA, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" {
		return color.RGBA{}, fmt.Errorf("empty colour")
	}

	if v == "transparent" {
		return color.RGBA{}, nil
	}

	if strings.HasPrefix(v, "#") {
		if len(v) == 9 {
			c, err := colorful.Hex(v[:7])
			if err != nil {
				return color.RGBA{}, fmt.Errorf("invalid colour %q: %w", s, err)
			}
			a, err := strconv.ParseUint(v[7:], 16, 8)
			if err != nil {
				return color.RGBA{}, fmt.Errorf("invalid colour %q: %w", s, err)
			}
			return premultiply(c, uint8(a)), nil
		}
		c, err := colorful.Hex(v)
		if err != nil {
			return color.RGBA{}, fmt.Errorf("invalid colour %q: %w", s, err)
		}
		return premultiply(c, 0xff), nil
	}

	if strings.HasPrefix(v, "rgb") {
		return parseRGBFunc(s, v)
	}

	if c, ok := colornames.Map[v]; ok {
		return c, nil
	}

	return color.RGBA{}, fmt.Errorf("unknown colour %q", s)
}

// ColorOr parses s, returning fallback when s is empty
func ColorOr(s string, fallback color.RGBA) (color.RGBA, error) {
	if strings.TrimSpace(s) == "" {
		return fallback, nil
	}
	return ParseColor(s)
}

func parseRGBFunc(orig, v string) (color.RGBA, error) {
	open, end := strings.IndexByte(v, '('), strings.LastIndexByte(v, ')')
	if open < 0 || end < open {
		return color.RGBA{}, fmt.Errorf("invalid colour %q", orig)
	}

	parts := strings.FieldsFunc(v[open+1:end], func(r rune) bool { return r == ',' || r == ' ' || r == '/' })
	if len(parts) != 3 && len(parts) != 4 {
		return color.RGBA{}, fmt.Errorf("invalid colour %q", orig)
	}

	var rgb [3]uint8
	for i := 0; i < 3; i++ {
		n, err := strconv.ParseFloat(strings.TrimSuffix(parts[i], "%"), 64)
		if err != nil {
			return color.RGBA{}, fmt.Errorf("invalid colour %q: %w", orig, err)
		}
		if strings.HasSuffix(parts[i], "%") {
			n = n * 255 / 100
		}
		rgb[i] = clampByte(n)
	}

	alpha := uint8(0xff)
	if len(parts) == 4 {
		n, err := strconv.ParseFloat(strings.TrimSuffix(parts[3], "%"), 64)
		if err != nil {
			return color.RGBA{}, fmt.Errorf("invalid colour %q: %w", orig, err)
		}
		if strings.HasSuffix(parts[3], "%") {
			n /= 100
		}
		alpha = clampByte(n * 255)
	}

	c := colorful.Color{R: float64(rgb[0]) / 255, G: float64(rgb[1]) / 255, B: float64(rgb[2]) / 255}
	return premultiply(c, alpha), nil
}

func premultiply(c colorful.Color, a uint8) color.RGBA {
	r, g, b := c.RGB255()
	return color.RGBA{
		R: uint8(uint16(r) * uint16(a) / 0xff),
		G: uint8(uint16(g) * uint16(a) / 0xff),
		B: uint8(uint16(b) * uint16(a) / 0xff),
		A: a,
	}
}

func clampByte(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}
