// Package srt reads and writes SubRip subtitle files.
package srt

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/sai034/css-video-editor/pkg/models"
)

// Defaults applied to imported cues, which carry no styling
const (
	DefaultFontSize   = 20
	DefaultFontFamily = "Arial"
)

var timingPattern = regexp.MustCompile(`(\d{2}):(\d{2}):(\d{2}),(\d{3})\s-->\s(\d{2}):(\d{2}):(\d{2}),(\d{3})`)

// Format writes subtitles as SubRip text, numbered from 1 in slice order
func Format(w io.Writer, subs []models.Subtitle) error {
	bw := bufio.NewWriter(w)
	for i, sub := range subs {
		if _, err := fmt.Fprintf(bw, "%d\n%s --> %s\n%s\n\n",
			i+1, Timestamp(sub.StartTime), Timestamp(sub.EndTime), sub.Text); err != nil {
			return fmt.Errorf("failed to write cue %d: %w", i+1, err)
		}
	}
	return bw.Flush()
}

// Marshal returns the SubRip encoding of subs
func Marshal(subs []models.Subtitle) []byte {
	var buf bytes.Buffer
	_ = Format(&buf, subs)
	return buf.Bytes()
}

// Timestamp renders seconds as HH:MM:SS,mmm
func Timestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int64(math.Round(seconds * 1000))
	h := ms / 3600000
	ms -= h * 3600000
	m := ms / 60000
	ms -= m * 60000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// Parse reads SubRip cues. Blocks without an index line, a timing line and at
// least one text line are skipped rather than treated as errors.
func Parse(r io.Reader) ([]models.Subtitle, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read subtitles: %w", err)
	}

	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	content = strings.TrimPrefix(content, "\ufeff")

	var subs []models.Subtitle
	for _, block := range strings.Split(content, "\n\n") {
		if strings.TrimSpace(block) == "" {
			continue
		}

		lines := strings.Split(strings.Trim(block, "\n"), "\n")
		if len(lines) < 3 {
			continue
		}

		match := timingPattern.FindStringSubmatch(lines[1])
		if match == nil {
			continue
		}

		subs = append(subs, models.Subtitle{
			ID:         fmt.Sprintf("srt-%d", len(subs)+1),
			Text:       strings.Join(lines[2:], "\n"),
			FontSize:   DefaultFontSize,
			FontFamily: DefaultFontFamily,
			Window: models.Window{
				StartTime: clockSeconds(match[1:5]),
				EndTime:   clockSeconds(match[5:9]),
			},
		})
	}

	return subs, nil
}

func clockSeconds(parts []string) float64 {
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	s, _ := strconv.Atoi(parts[2])
	ms, _ := strconv.Atoi(parts[3])
	return float64(h*3600+m*60+s) + float64(ms)/1000
}
