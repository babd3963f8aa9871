package audiograph

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// constant returns a mono buffer of n frames all set to v
func constant(rate, n int, v float32) *Buffer {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = v
	}
	return &Buffer{SampleRate: rate, Channels: 1, Samples: samples}
}

func TestMixer_ScheduledStart(t *testing.T) {
	m := NewMixer(10, 1)

	src := m.NewBufferSource(constant(10, 100, 0.5))
	require.NoError(t, src.Connect(m.Destination()))
	require.NoError(t, src.Start(0.5, 0, 1))

	out, err := m.Render(2)
	require.NoError(t, err)
	require.Len(t, out, 20)

	for i, s := range out {
		if i >= 5 && i < 15 {
			assert.Equal(t, float32(0.5), s, "frame %d", i)
		} else {
			assert.Equal(t, float32(0), s, "frame %d", i)
		}
	}
}

func TestMixer_GainAndSum(t *testing.T) {
	m := NewMixer(10, 1)

	a := m.NewBufferSource(constant(10, 10, 0.5))
	b := m.NewBufferSource(constant(10, 10, 0.25))
	half := m.NewGain(0.5)
	mute := m.NewGain(0)

	require.NoError(t, a.Connect(half))
	require.NoError(t, half.Connect(m.Destination()))
	require.NoError(t, b.Connect(mute))
	require.NoError(t, mute.Connect(m.Destination()))
	require.NoError(t, a.Start(0, 0, 1))
	require.NoError(t, b.Start(0, 0, 1))

	out, err := m.Render(0.5)
	require.NoError(t, err)
	for _, s := range out {
		assert.Equal(t, float32(0.25), s)
	}

	mute.SetGain(1)
	out, err = m.Render(1)
	require.NoError(t, err)
	for _, s := range out {
		assert.Equal(t, float32(0.5), s)
	}
}

func TestMixer_BufferOffset(t *testing.T) {
	m := NewMixer(4, 1)

	buf := &Buffer{SampleRate: 4, Channels: 1, Samples: []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8}}
	src := m.NewBufferSource(buf)
	require.NoError(t, src.Connect(m.Destination()))
	require.NoError(t, src.Start(0, 1, 0.5))

	out, err := m.Render(1)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.6, 0, 0}, out)
}

func TestMixer_StopIsIdempotent(t *testing.T) {
	m := NewMixer(10, 1)

	src := m.NewBufferSource(constant(10, 100, 0.5))
	require.NoError(t, src.Connect(m.Destination()))
	require.NoError(t, src.Start(0, 0, 10))

	_, err := m.Render(0.5)
	require.NoError(t, err)

	src.Stop()
	src.Stop()

	out, err := m.Render(1)
	require.NoError(t, err)
	for _, s := range out {
		assert.Equal(t, float32(0), s)
	}

	assert.ErrorIs(t, src.Start(0, 0, 1), ErrAlreadyStarted)
}

func TestMixer_UpmixAndClip(t *testing.T) {
	m := NewMixer(10, 2)

	for i := 0; i < 3; i++ {
		src := m.NewBufferSource(constant(10, 10, 0.5))
		require.NoError(t, src.Connect(m.Destination()))
		require.NoError(t, src.Start(0, 0, 1))
	}

	out, err := m.Render(0.1)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1}, out)
}

func TestMixer_Monitor(t *testing.T) {
	m := NewMixer(10, 1)
	var monitor bytes.Buffer
	m.SetMonitor(&monitor)

	src := m.NewBufferSource(constant(10, 10, 0.5))
	require.NoError(t, src.Connect(m.Destination()))
	require.NoError(t, src.Start(0, 0, 1))

	out, err := m.Render(1)
	require.NoError(t, err)

	decoded, err := FromFloat32LE(monitor.Bytes(), 10, 1)
	require.NoError(t, err)
	assert.Equal(t, out, decoded.Samples)
	assert.Equal(t, 1.0, m.Position())

	again, err := m.Render(1)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestFromFloat32LE_Truncated(t *testing.T) {
	_, err := FromFloat32LE([]byte{1, 2, 3}, 48000, 2)
	var decodeErr *DecodeError
	assert.ErrorAs(t, err, &decodeErr)
}
