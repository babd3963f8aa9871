package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimeRange selects the part of the source that becomes the output, in source seconds
type TimeRange struct {
	Start float64 `json:"start" yaml:"start"`
	End   float64 `json:"end" yaml:"end"`
}

// Duration returns the output duration
func (r TimeRange) Duration() float64 {
	return r.End - r.Start
}

// Validate checks 0 <= start < end <= duration
func (r TimeRange) Validate(duration float64) error {
	if r.Start < 0 || r.Start >= duration || r.End > duration || r.Start >= r.End {
		return fmt.Errorf("time range [%.3f, %.3f] is outside the source duration %.3f", r.Start, r.End, duration)
	}
	return nil
}

// Format describes an output container
type Format struct {
	Name       string `json:"name"`
	Label      string `json:"label"`
	MimeType   string `json:"mime_type"`
	Extension  string `json:"extension"`
	Editable   bool   `json:"editable"`
	Muxer      string `json:"-"`
	VideoCodec string `json:"-"`
	AudioCodec string `json:"-"`
	// MuxerArgs are extra flags needed to stream the container to a pipe.
	MuxerArgs []string `json:"-"`
}

// MediaType returns the bare media type without codec parameters
func (f Format) MediaType() string {
	if i := strings.Index(f.MimeType, ";"); i >= 0 {
		return f.MimeType[:i]
	}
	return f.MimeType
}

// Format names
const (
	FormatWebM = "webm"
	FormatMP4  = "mp4"
	FormatOGG  = "ogg"
	FormatAVI  = "avi"
	FormatMOV  = "mov"
)

// Formats lists every declared output format in display order
var Formats = []Format{
	{
		Name: FormatWebM, Label: "WebM (VP9)", MimeType: "video/webm;codecs=vp9", Extension: "webm",
		Editable: true, Muxer: "webm", VideoCodec: "libvpx-vp9", AudioCodec: "libopus",
		MuxerArgs: []string{"-deadline", "realtime", "-cpu-used", "8"},
	},
	{
		Name: FormatMP4, Label: "MP4 (H.264)", MimeType: "video/mp4;codecs=avc1", Extension: "mp4",
		Editable: true, Muxer: "mp4", VideoCodec: "libx264", AudioCodec: "aac",
		MuxerArgs: []string{"-preset", "veryfast", "-pix_fmt", "yuv420p", "-movflags", "frag_keyframe+empty_moov+default_base_moof"},
	},
	{Name: FormatOGG, Label: "OGG (Theora)", MimeType: "video/ogg;codecs=theora", Extension: "ogg"},
	{Name: FormatAVI, Label: "AVI", MimeType: "video/x-msvideo", Extension: "avi"},
	{Name: FormatMOV, Label: "QuickTime (MOV)", MimeType: "video/quicktime", Extension: "mov"},
}

// LookupFormat finds a declared format by name, case-insensitively
func LookupFormat(name string) (Format, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, f := range Formats {
		if f.Name == name {
			return f, true
		}
	}
	return Format{}, false
}

// DefaultFPS is the capture rate used when a request does not set one
const DefaultFPS = 30

// RenderRequest is everything a single render needs
type RenderRequest struct {
	Source               string       `json:"source" yaml:"source"`
	Range                TimeRange    `json:"range" yaml:"range"`
	Overlays             OverlaySet   `json:"overlays" yaml:"overlays"`
	Tracks               []AudioTrack `json:"tracks,omitempty" yaml:"tracks,omitempty"`
	IncludeOriginalAudio bool         `json:"include_original_audio" yaml:"include_original_audio"`
	Format               string       `json:"format" yaml:"format"`
	FPS                  int          `json:"fps,omitempty" yaml:"fps,omitempty"`
}

// Value implements driver.Valuer for database storage
func (r RenderRequest) Value() (driver.Value, error) {
	return json.Marshal(r)
}

// Scan implements sql.Scanner for database retrieval
func (r *RenderRequest) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, r)
	case string:
		return json.Unmarshal([]byte(v), r)
	}
	return fmt.Errorf("cannot scan %T into RenderRequest", value)
}

// RenderJob is a queued render tracked by the service
type RenderJob struct {
	ID           string        `json:"id" db:"id"`
	Status       string        `json:"status" db:"status"`
	Progress     float64       `json:"progress" db:"progress"`
	ErrorMsg     string        `json:"error_msg,omitempty" db:"error_msg"`
	WorkerID     string        `json:"worker_id,omitempty" db:"worker_id"`
	CallbackURL  string        `json:"callback_url,omitempty" db:"callback_url"`
	Request      RenderRequest `json:"request" db:"request"`
	StartedAt    *time.Time    `json:"started_at,omitempty" db:"started_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at" db:"updated_at"`
}

// IsTerminal reports whether the job can no longer change status
func (j *RenderJob) IsTerminal() bool {
	switch j.Status {
	case RenderStatusCompleted, RenderStatusFailed, RenderStatusCancelled:
		return true
	}
	return false
}

// RenderStatus constants
const (
	RenderStatusPending    = "pending"
	RenderStatusProcessing = "processing"
	RenderStatusCompleted  = "completed"
	RenderStatusFailed     = "failed"
	RenderStatusCancelled  = "cancelled"
)

// Artifact is a finished render stored for download
type Artifact struct {
	ID        string    `json:"id" db:"id"`
	JobID     string    `json:"job_id" db:"job_id"`
	Format    string    `json:"format" db:"format"`
	MediaType string    `json:"media_type" db:"media_type"`
	Size      int64     `json:"size" db:"size"`
	Duration  float64   `json:"duration" db:"duration"`
	Frames    int       `json:"frames" db:"frames"`
	URL       string    `json:"url" db:"url"`
	Path      string    `json:"path" db:"path"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
