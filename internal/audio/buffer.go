package audio

import (
	"sync"
)

// SampleRing is a thread-safe ring buffer of float samples. It decouples the
// device read loop from the resample/frame pump so a slow consumer never
// stalls the hardware reads; when the ring fills, the oldest unread samples
// are not overwritten and the write is truncated instead.
type SampleRing struct {
	buffer []float32
	size   int
	read   int
	write  int
	mu     sync.RWMutex
}

// NewSampleRing creates a new ring buffer holding up to size-1 samples
func NewSampleRing(size int) *SampleRing {
	return &SampleRing{
		buffer: make([]float32, size),
		size:   size,
	}
}

// Write writes samples to the ring buffer
// Returns the number of samples written (may be less than len(samples) if the buffer is full)
func (r *SampleRing) Write(samples []float32) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	written := 0
	for i := 0; i < len(samples); i++ {
		if (r.write+1)%r.size == r.read {
			break // Buffer full
		}

		r.buffer[r.write] = samples[i]
		r.write = (r.write + 1) % r.size
		written++
	}

	return written
}

// Read reads samples from the ring buffer
// Returns the number of samples read
func (r *SampleRing) Read(samples []float32) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	read := 0
	for i := 0; i < len(samples); i++ {
		if r.read == r.write {
			break // Buffer empty
		}

		samples[i] = r.buffer[r.read]
		r.read = (r.read + 1) % r.size
		read++
	}

	return read
}

// Available returns the number of samples available to read
func (r *SampleRing) Available() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.available()
}

// Space returns the number of samples that can still be written
func (r *SampleRing) Space() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.size - r.available() - 1 // -1 to prevent full/empty ambiguity
}

func (r *SampleRing) available() int {
	if r.write >= r.read {
		return r.write - r.read
	}
	return r.size - r.read + r.write
}

// Clear discards all buffered samples
func (r *SampleRing) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.read = 0
	r.write = 0
}
