package audiograph

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sai034/css-video-editor/pkg/models"
)

func TestPlan(t *testing.T) {
	tests := []struct {
		name       string
		rangeStart float64
		rangeEnd   float64
		track      models.AudioTrack
		wantOK     bool
		want       Schedule
	}{
		{
			name:       "pre-rolled track stops at relative end",
			rangeStart: 5, rangeEnd: 15,
			track:  models.AudioTrack{TrackStartTime: 0, TrackEndTime: 8},
			wantOK: true,
			want: Schedule{
				RelativeStart: -5, RelativeEnd: 3,
				PlayStart: 0, BufferOffset: 5, PlayDuration: 8, Audible: 3,
			},
		},
		{
			name:       "track starting inside range",
			rangeStart: 2, rangeEnd: 12,
			track:  models.AudioTrack{TrackStartTime: 4, TrackEndTime: 7},
			wantOK: true,
			want: Schedule{
				RelativeStart: 2, RelativeEnd: 5,
				PlayStart: 2, BufferOffset: 0, PlayDuration: 3, Audible: 3,
			},
		},
		{
			name:       "track running past range end",
			rangeStart: 0, rangeEnd: 10,
			track:  models.AudioTrack{TrackStartTime: 6, TrackEndTime: 20},
			wantOK: true,
			want: Schedule{
				RelativeStart: 6, RelativeEnd: 20,
				PlayStart: 6, BufferOffset: 0, PlayDuration: 4, Audible: 4,
			},
		},
		{
			name:       "track entirely before range",
			rangeStart: 10, rangeEnd: 20,
			track:  models.AudioTrack{TrackStartTime: 2, TrackEndTime: 10},
			wantOK: false,
		},
		{
			name:       "track starting at range end",
			rangeStart: 0, rangeEnd: 10,
			track:  models.AudioTrack{TrackStartTime: 10, TrackEndTime: 15},
			wantOK: false,
		},
		{
			name:       "empty track window",
			rangeStart: 0, rangeEnd: 10,
			track:  models.AudioTrack{TrackStartTime: 4, TrackEndTime: 4},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Plan(tt.rangeStart, tt.rangeEnd, tt.track)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestSchedule_StopAt(t *testing.T) {
	s, ok := Plan(5, 15, models.AudioTrack{TrackStartTime: 0, TrackEndTime: 8})
	assert.True(t, ok)
	assert.Equal(t, 3.0, s.StopAt())
}
