package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sai034/css-video-editor/pkg/models"
)

func window(start, end float64) models.Window {
	return models.Window{StartTime: start, EndTime: end}
}

func TestActiveAt(t *testing.T) {
	images := []models.ImageOverlay{
		{ID: "a", Window: window(0, 2)},
		{ID: "b", Window: window(1, 3)},
		{ID: "c", Window: window(4, 5)},
	}

	tests := []struct {
		name string
		t    float64
		want []string
	}{
		{"start boundary", 0, []string{"a"}},
		{"overlap", 1.5, []string{"a", "b"}},
		{"end boundary inclusive", 2, []string{"a", "b"}},
		{"gap", 3.5, nil},
		{"last", 5, []string{"c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, img := range ActiveAt(images, tt.t) {
				got = append(got, img.ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFirstActive(t *testing.T) {
	bgs := []models.BackgroundColor{
		{ID: "red", Code: "#ff0000", Window: window(1, 3)},
		{ID: "blue", Code: "#0000ff", Window: window(2, 4)},
	}

	bg, ok := FirstActive(bgs, 2.5)
	require.True(t, ok)
	assert.Equal(t, "red", bg.ID)

	bg, ok = FirstActive(bgs, 3.5)
	require.True(t, ok)
	assert.Equal(t, "blue", bg.ID)

	_, ok = FirstActive(bgs, 0.5)
	assert.False(t, ok)
}

func TestSnapshot_At(t *testing.T) {
	set := models.OverlaySet{
		CoverPhoto:       &models.CoverPhoto{ID: "cover", URL: "cover.png", Duration: 1},
		BackgroundColors: []models.BackgroundColor{{ID: "red", Code: "red", Window: window(1, 3)}},
		TextShapes: []models.TextShape{
			{ID: "t1", Text: "one", Window: window(0, 5)},
			{ID: "t2", Text: "two", Window: window(2, 5)},
		},
		Subtitles: []models.Subtitle{
			{ID: "s1", Text: "Hi", Window: window(0, 5)},
			{ID: "s2", Text: "Hidden", Window: window(0, 5)},
		},
	}

	snap := NewSnapshot(set, 5)

	frame := snap.At(0.5)
	require.NotNil(t, frame.Cover)
	assert.Nil(t, frame.Background)
	require.NotNil(t, frame.Subtitle)
	assert.Equal(t, "Hi", frame.Subtitle.Text)
	assert.Len(t, frame.TextShapes, 1)

	// cover window is inclusive and overlaps the background
	frame = snap.At(1)
	assert.NotNil(t, frame.Cover)
	assert.NotNil(t, frame.Background)

	frame = snap.At(2.5)
	assert.Nil(t, frame.Cover)
	require.NotNil(t, frame.Background)
	assert.Equal(t, "red", frame.Background.Code)
	assert.Len(t, frame.TextShapes, 2)

	frame = snap.At(4)
	assert.Nil(t, frame.Background)
	assert.False(t, frame.Empty())
}

func TestSnapshot_IsolatedFromEdits(t *testing.T) {
	set := models.OverlaySet{
		Subtitles: []models.Subtitle{{ID: "s1", Text: "Hi", Window: window(0, 5)}},
	}

	snap := NewSnapshot(set, 5)
	set.Subtitles[0].Text = "edited"
	set.Subtitles = append(set.Subtitles, models.Subtitle{ID: "s2", Text: "new", Window: window(0, 5)})

	frame := snap.At(1)
	require.NotNil(t, frame.Subtitle)
	assert.Equal(t, "Hi", frame.Subtitle.Text)
	assert.Len(t, snap.Overlays().Subtitles, 1)
}

func TestSnapshot_ClampsWindows(t *testing.T) {
	set := models.OverlaySet{
		Images: []models.ImageOverlay{{ID: "img", URL: "a.png", Window: window(3, 30)}},
	}

	snap := NewSnapshot(set, 5)
	assert.Len(t, snap.At(5).Images, 1)
	assert.Empty(t, snap.At(5.5).Images)
	assert.Equal(t, map[string]string{"img": "a.png"}, snap.ImageURLs())
}
