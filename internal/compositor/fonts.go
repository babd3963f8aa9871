package compositor

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// DefaultFontSize is the size used when an overlay does not set one
const DefaultFontSize = 10

type fontFamily struct {
	regular *opentype.Font
	bold    *opentype.Font
}

type faceKey struct {
	family string
	size   float64
	bold   bool
}

// FontBook maps CSS-style family names to font faces. Unknown families fall
// back to the Go fonts.
type FontBook struct {
	mu       sync.Mutex
	families map[string]fontFamily
	fallback fontFamily
	faces    map[faceKey]font.Face
}

// NewFontBook creates a book preloaded with the Go fonts
func NewFontBook() (*FontBook, error) {
	regular, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}
	bold, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}
	mono, err := opentype.Parse(gomono.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}
	monoBold, err := opentype.Parse(gomonobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}

	fb := &FontBook{
		families: make(map[string]fontFamily),
		fallback: fontFamily{regular: regular, bold: bold},
		faces:    make(map[faceKey]font.Face),
	}
	for _, name := range []string{"monospace", "courier", "courier new", "consolas", "go mono"} {
		fb.families[name] = fontFamily{regular: mono, bold: monoBold}
	}
	return fb, nil
}

// Register adds a family from TrueType or OpenType data. bold may be nil, in
// which case the regular face is used for bold text.
func (fb *FontBook) Register(family string, regular, bold []byte) error {
	r, err := opentype.Parse(regular)
	if err != nil {
		return fmt.Errorf("failed to parse font %s: %w", family, err)
	}
	fam := fontFamily{regular: r, bold: r}
	if bold != nil {
		b, err := opentype.Parse(bold)
		if err != nil {
			return fmt.Errorf("failed to parse bold font %s: %w", family, err)
		}
		fam.bold = b
	}

	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.families[normalizeFamily(family)] = fam
	return nil
}

// Face returns a face for family at size pixels
func (fb *FontBook) Face(family string, size float64, bold bool) (font.Face, error) {
	if size <= 0 {
		size = DefaultFontSize
	}
	key := faceKey{family: normalizeFamily(family), size: size, bold: bold}

	fb.mu.Lock()
	defer fb.mu.Unlock()

	if face, ok := fb.faces[key]; ok {
		return face, nil
	}

	fam, ok := fb.families[key.family]
	if !ok {
		fam = fb.fallback
	}
	f := fam.regular
	if bold {
		f = fam.bold
	}

	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create font face: %w", err)
	}

	fb.faces[key] = face
	return face, nil
}

// Close releases every cached face
func (fb *FontBook) Close() error {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	for k, face := range fb.faces {
		face.Close()
		delete(fb.faces, k)
	}
	return nil
}

// normalizeFamily reduces a CSS font-family list to its first name
func normalizeFamily(family string) string {
	if i := strings.IndexByte(family, ','); i >= 0 {
		family = family[:i]
	}
	return strings.ToLower(strings.Trim(strings.TrimSpace(family), `"'`))
}
