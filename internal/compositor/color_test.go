package compositor

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseColor(t *testing.T) {
	tests := []struct {
		in      string
		want    color.RGBA
		wantErr bool
	}{
		{"#ff0000", color.RGBA{255, 0, 0, 255}, false},
		{"#0F0", color.RGBA{0, 255, 0, 255}, false},
		{"  #0000ff ", color.RGBA{0, 0, 255, 255}, false},
		{"#ffffff80", color.RGBA{128, 128, 128, 128}, false},
		{"white", color.RGBA{255, 255, 255, 255}, false},
		{"Black", color.RGBA{0, 0, 0, 255}, false},
		{"rgb(255, 128, 0)", color.RGBA{255, 128, 0, 255}, false},
		{"rgba(0,0,255,0.5)", color.RGBA{0, 0, 128, 128}, false},
		{"transparent", color.RGBA{}, false},
		{"", color.RGBA{}, true},
		{"#12", color.RGBA{}, true},
		{"notacolour", color.RGBA{}, true},
		{"rgb(1,2)", color.RGBA{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseColor(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestColorOr(t *testing.T) {
	fallback := color.RGBA{1, 2, 3, 255}

	got, err := ColorOr("", fallback)
	require.NoError(t, err)
	assert.Equal(t, fallback, got)

	got, err = ColorOr("red", fallback)
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{255, 0, 0, 255}, got)

	_, err = ColorOr("bogus", fallback)
	assert.Error(t, err)
}
