package audiograph

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
)

// ErrAlreadyStarted is returned when a source is started twice
var ErrAlreadyStarted = errors.New("audio source already started")

// Mixer is an in-process Context. Output time zero is the first rendered
// sample; Render advances the mix cursor and returns interleaved PCM.
type Mixer struct {
	sampleRate int
	channels   int

	mu      sync.Mutex
	cursor  int64
	sources []*mixSource
	dest    *mixNode
	monitor io.Writer
}

// NewMixer creates a mixer producing sampleRate Hz audio with channels channels
func NewMixer(sampleRate, channels int) *Mixer {
	m := &Mixer{sampleRate: sampleRate, channels: channels}
	m.dest = &mixNode{mixer: m, gain: 1, sink: true}
	return m
}

// SetMonitor tees every rendered block to w as little-endian float32
func (m *Mixer) SetMonitor(w io.Writer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.monitor = w
}

func (m *Mixer) SampleRate() int { return m.sampleRate }
func (m *Mixer) Channels() int   { return m.channels }
func (m *Mixer) Destination() Node {
	return m.dest
}

// NewGain creates a gain node
func (m *Mixer) NewGain(g float64) Gain {
	return &mixNode{mixer: m, gain: g}
}

// NewBufferSource creates a source reading buf
func (m *Mixer) NewBufferSource(buf *Buffer) Source {
	src := &mixSource{mixNode: mixNode{mixer: m, gain: 1}, buf: buf}
	m.mu.Lock()
	m.sources = append(m.sources, src)
	m.mu.Unlock()
	return src
}

// Position returns the output time already rendered, in seconds
func (m *Mixer) Position() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return float64(m.cursor) / float64(m.sampleRate)
}

// Render mixes every started source up to output time until and returns the
// new samples. Calls with until at or before the cursor return nothing.
func (m *Mixer) Render(until float64) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	end := int64(math.Round(until * float64(m.sampleRate)))
	if end <= m.cursor {
		return nil, nil
	}

	frames := int(end - m.cursor)
	out := make([]float32, frames*m.channels)

	for _, src := range m.sources {
		if !src.started {
			continue
		}
		gain := src.pathGain(0)
		if gain == 0 {
			continue
		}
		src.mixInto(out, m.cursor, end, m.sampleRate, m.channels, gain)
	}

	for i, s := range out {
		if s > 1 {
			out[i] = 1
		} else if s < -1 {
			out[i] = -1
		}
	}

	m.cursor = end

	if m.monitor != nil {
		if _, err := m.monitor.Write(EncodeFloat32LE(out)); err != nil {
			return out, fmt.Errorf("failed to write monitor output: %w", err)
		}
	}

	return out, nil
}

type mixNode struct {
	mixer   *Mixer
	gain    float64
	sink    bool
	outputs []*mixNode
}

func (n *mixNode) Connect(dst Node) error {
	target, ok := nodeOf(dst)
	if !ok || target.mixer != n.mixer {
		return fmt.Errorf("cannot connect nodes from different audio contexts")
	}
	n.mixer.mu.Lock()
	n.outputs = append(n.outputs, target)
	n.mixer.mu.Unlock()
	return nil
}

func (n *mixNode) SetGain(g float64) {
	n.mixer.mu.Lock()
	n.gain = g
	n.mixer.mu.Unlock()
}

func (n *mixNode) Value() float64 {
	n.mixer.mu.Lock()
	defer n.mixer.mu.Unlock()
	return n.gain
}

// pathGain sums the gain products of every route from n to the destination
func (n *mixNode) pathGain(depth int) float64 {
	if n.sink {
		return n.gain
	}
	if depth > 16 {
		return 0
	}
	var total float64
	for _, out := range n.outputs {
		total += out.pathGain(depth + 1)
	}
	return n.gain * total
}

func nodeOf(n Node) (*mixNode, bool) {
	switch v := n.(type) {
	case *mixNode:
		return v, true
	case *mixSource:
		return &v.mixNode, true
	}
	return nil, false
}

type mixSource struct {
	mixNode
	buf *Buffer

	started     bool
	startFrame  int64
	offsetFrame int64
	stopFrame   int64
	stopped     bool
}

func (s *mixSource) Connect(dst Node) error {
	return s.mixNode.Connect(dst)
}

func (s *mixSource) Start(at, offset, duration float64) error {
	m := s.mixer
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	if s.buf == nil {
		return fmt.Errorf("audio source has no buffer")
	}

	rate := float64(m.sampleRate)
	s.started = true
	s.startFrame = int64(math.Round(math.Max(0, at) * rate))
	s.offsetFrame = int64(math.Round(math.Max(0, offset) * float64(s.buf.SampleRate)))
	s.stopFrame = s.startFrame + int64(math.Round(math.Max(0, duration)*rate))
	if s.stopped {
		s.stopFrame = s.startFrame
	}
	return nil
}

func (s *mixSource) Stop() {
	m := s.mixer
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	if !s.started || m.cursor < s.stopFrame {
		s.stopFrame = m.cursor
	}
}

// mixInto adds this source's samples for output frames [from, to) to out
func (s *mixSource) mixInto(out []float32, from, to int64, rate, channels int, gain float64) {
	lo := max(from, s.startFrame)
	hi := min(to, s.stopFrame)
	if lo >= hi {
		return
	}

	bufFrames := int64(s.buf.Frames())
	ratio := float64(s.buf.SampleRate) / float64(rate)
	g := float32(gain)

	for f := lo; f < hi; f++ {
		src := s.offsetFrame + int64(float64(f-s.startFrame)*ratio)
		if src >= bufFrames {
			break
		}
		base := int(f-from) * channels
		for c := 0; c < channels; c++ {
			bc := c
			if bc >= s.buf.Channels {
				bc = s.buf.Channels - 1
			}
			out[base+c] += s.buf.Samples[int(src)*s.buf.Channels+bc] * g
		}
	}
}
