// Package audiograph builds the audio mix of a render: the original
// soundtrack behind a gain, plus every selected music track scheduled onto
// the output timeline.
package audiograph

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Buffer is decoded PCM, interleaved float32 samples
type Buffer struct {
	SampleRate int
	Channels   int
	Samples    []float32
}

// Frames returns the number of sample frames
func (b *Buffer) Frames() int {
	if b == nil || b.Channels == 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration returns the buffer length in seconds
func (b *Buffer) Duration() float64 {
	if b == nil || b.SampleRate == 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// DecodeError is returned when bytes cannot be turned into a Buffer
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("audio decode failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("audio decode failed: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// FromFloat32LE builds a Buffer from little-endian float32 PCM
func FromFloat32LE(data []byte, sampleRate, channels int) (*Buffer, error) {
	if channels <= 0 || sampleRate <= 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("invalid layout %d Hz x %d channels", sampleRate, channels)}
	}
	if len(data)%(4*channels) != 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("truncated pcm: %d bytes is not a whole number of frames", len(data))}
	}

	samples := make([]float32, len(data)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return &Buffer{SampleRate: sampleRate, Channels: channels, Samples: samples}, nil
}

// EncodeFloat32LE serializes interleaved samples as little-endian float32
func EncodeFloat32LE(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}
