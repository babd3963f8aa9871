package audiograph

// Node is a vertex of the audio graph
type Node interface {
	Connect(dst Node) error
}

// Source plays a decoded buffer once
type Source interface {
	Node
	// Start schedules playback at output time at, reading from offset
	// seconds into the buffer for at most duration seconds.
	Start(at, offset, duration float64) error
	// Stop silences the source. Stopping twice is a no-op.
	Stop()
}

// Gain scales everything connected to it
type Gain interface {
	Node
	SetGain(g float64)
	Value() float64
}

// Context is the audio processing primitive the graph is built on
type Context interface {
	SampleRate() int
	Channels() int
	NewBufferSource(buf *Buffer) Source
	NewGain(g float64) Gain
	Destination() Node
}
