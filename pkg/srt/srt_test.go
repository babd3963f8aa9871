package srt

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sai034/css-video-editor/pkg/models"
)

func TestTimestamp(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00,000"},
		{1.5, "00:00:01,500"},
		{61.25, "00:01:01,250"},
		{3723.004, "01:02:03,004"},
		{-3, "00:00:00,000"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Timestamp(tt.seconds))
		})
	}
}

func TestFormat(t *testing.T) {
	subs := []models.Subtitle{
		{Text: "Hello", Window: models.Window{StartTime: 0, EndTime: 1.5}},
		{Text: "Two\nlines", Window: models.Window{StartTime: 2, EndTime: 4}},
	}

	var buf bytes.Buffer
	require.NoError(t, Format(&buf, subs))

	want := "1\n00:00:00,000 --> 00:00:01,500\nHello\n\n" +
		"2\n00:00:02,000 --> 00:00:04,000\nTwo\nlines\n\n"
	assert.Equal(t, want, buf.String())
}

func TestParse(t *testing.T) {
	input := "1\r\n00:00:01,000 --> 00:00:02,500\r\nFirst\r\n\r\n" +
		"garbage block\r\n\r\n" +
		"3\r\nnot a timing line\r\ntext\r\n\r\n" +
		"4\r\n00:01:00,000 --> 00:01:03,250\r\nMulti\r\nline\r\n"

	subs, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, subs, 2)

	assert.Equal(t, "First", subs[0].Text)
	assert.Equal(t, 1.0, subs[0].StartTime)
	assert.Equal(t, 2.5, subs[0].EndTime)
	assert.Equal(t, float64(DefaultFontSize), subs[0].FontSize)
	assert.Equal(t, DefaultFontFamily, subs[0].FontFamily)

	assert.Equal(t, "Multi\nline", subs[1].Text)
	assert.Equal(t, 60.0, subs[1].StartTime)
	assert.Equal(t, 63.25, subs[1].EndTime)
}

func TestParseFormatRoundTrip(t *testing.T) {
	subs := []models.Subtitle{
		{Text: "Hi", Window: models.Window{StartTime: 0, EndTime: 5}},
	}

	parsed, err := Parse(bytes.NewReader(Marshal(subs)))
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	assert.Equal(t, subs[0].Window, parsed[0].Window)
	assert.Equal(t, "Hi", parsed[0].Text)
}
