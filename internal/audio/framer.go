package audio

// Framer accumulates arbitrary-length sample chunks into fixed-size frames.
// The streaming endpoint sees one frame per processing quantum regardless of
// how the device delivers samples.
type Framer struct {
	size    int
	pending []float32
	onFrame func([]float32)
}

// NewFramer creates a framer emitting frames of size samples through onFrame.
// Emitted frames are freshly allocated; ownership passes to the callback.
func NewFramer(size int, onFrame func([]float32)) *Framer {
	return &Framer{
		size:    size,
		pending: make([]float32, 0, size),
		onFrame: onFrame,
	}
}

// Push appends samples, emitting a frame each time a full quantum is buffered
func (f *Framer) Push(samples []float32) {
	f.pending = append(f.pending, samples...)

	for len(f.pending) >= f.size {
		frame := make([]float32, f.size)
		copy(frame, f.pending[:f.size])
		f.pending = f.pending[:copy(f.pending, f.pending[f.size:])]
		f.onFrame(frame)
	}
}

// Pending returns the number of samples buffered below one frame
func (f *Framer) Pending() int {
	return len(f.pending)
}

// Reset discards any partial frame
func (f *Framer) Reset() {
	f.pending = f.pending[:0]
}
