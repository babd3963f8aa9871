package compositor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type mapFetcher struct {
	files map[string][]byte
	calls atomic.Int32
}

func (f *mapFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	f.calls.Add(1)
	data, ok := f.files[ref]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func TestImageCache_Load(t *testing.T) {
	fetcher := &mapFetcher{files: map[string][]byte{
		"a.png": pngBytes(t, 4, 4, color.RGBA{255, 0, 0, 255}),
		"b.png": pngBytes(t, 8, 2, color.RGBA{0, 255, 0, 255}),
	}}
	cache := NewImageCache(fetcher)
	ctx := context.Background()

	img, err := cache.Load(ctx, "overlay-1", "a.png")
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())

	_, err = cache.Load(ctx, "overlay-1", "a.png")
	require.NoError(t, err)
	assert.Equal(t, int32(1), fetcher.calls.Load())

	// a new URL for the same overlay replaces the entry
	img, err = cache.Load(ctx, "overlay-1", "b.png")
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())
	assert.Equal(t, int32(2), fetcher.calls.Load())
	assert.Equal(t, 1, cache.Len())

	_, ok := cache.Lookup("overlay-1", "a.png")
	assert.False(t, ok)

	_, err = cache.Load(ctx, "overlay-2", "missing.png")
	assert.Error(t, err)
}

func TestImageCache_RetainAndEvict(t *testing.T) {
	fetcher := &mapFetcher{files: map[string][]byte{
		"a.png": pngBytes(t, 1, 1, color.White),
		"b.png": pngBytes(t, 1, 1, color.Black),
	}}
	cache := NewImageCache(fetcher)
	ctx := context.Background()

	_, err := cache.Load(ctx, "a", "a.png")
	require.NoError(t, err)
	_, err = cache.Load(ctx, "b", "b.png")
	require.NoError(t, err)

	cache.Retain(map[string]string{"a": "a.png"})
	assert.Equal(t, 1, cache.Len())
	_, ok := cache.Lookup("a", "a.png")
	assert.True(t, ok)

	cache.Evict("a")
	assert.Equal(t, 0, cache.Len())
}

func TestDecodeImage_Invalid(t *testing.T) {
	_, err := DecodeImage([]byte("definitely not an image"))
	assert.Error(t, err)

	_, err = DecodeImage([]byte("RIFF\x00\x00\x00\x00WEBPjunk"))
	assert.Error(t, err)
}
