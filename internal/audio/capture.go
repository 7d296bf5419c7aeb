package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"github.com/voxlab/voice-client/internal/observability"
)

// ErrPermissionDenied is returned when the platform refuses microphone access
var ErrPermissionDenied = errors.New("microphone access denied")

// ErrAccessNotGranted is returned when Start is called before RequestAccess
var ErrAccessNotGranted = errors.New("microphone access not granted; call RequestAccess first")

const (
	// readBufferSize is the per-read device buffer in samples (device rate)
	readBufferSize = 1024
	// pumpInterval is how often the resample/frame pump drains the ring
	pumpInterval = 20 * time.Millisecond
)

// CaptureSource captures microphone audio through PortAudio and produces
// fixed-size mono frames at the target sample rate, resampling from the
// device-native rate when they differ.
type CaptureSource struct {
	targetRate int
	frameSize  int
	logger     zerolog.Logger

	mu         sync.Mutex
	granted    bool
	started    bool
	terminated bool
	deviceRate int

	stream *portaudio.Stream
	in     []float32
	ring   *SampleRing
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewCaptureSource creates a capture source producing frames of frameSize
// samples at targetRate Hz, mono.
func NewCaptureSource(targetRate, frameSize int) *CaptureSource {
	return &CaptureSource{
		targetRate: targetRate,
		frameSize:  frameSize,
		// Ring holds ~1s of device audio; more than enough to ride out pump jitter
		ring:   NewSampleRing(48000),
		logger: observability.Component("capture"),
	}
}

// RequestAccess initializes the audio host and verifies that an input device
// can actually be opened. Opening a short-lived stream is what triggers the
// OS permission prompt on platforms that have one.
func (c *CaptureSource) RequestAccess() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.granted {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}

	device, err := portaudio.DefaultInputDevice()
	if err != nil {
		_ = portaudio.Terminate()
		return fmt.Errorf("%w: no input device: %v", ErrPermissionDenied, err)
	}

	deviceRate := int(device.DefaultSampleRate)
	if deviceRate <= 0 {
		deviceRate = c.targetRate
	}

	probe := make([]float32, readBufferSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(deviceRate), len(probe), probe)
	if err != nil {
		_ = portaudio.Terminate()
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	_ = stream.Close()

	c.deviceRate = deviceRate
	c.granted = true
	c.logger.Info().
		Str("device", device.Name).
		Int("device_rate", deviceRate).
		Int("target_rate", c.targetRate).
		Msg("Microphone access granted")
	return nil
}

// Start begins continuous frame production, invoking onFrame for each full
// frame on a background goroutine. Calling Start on an active source is a
// warned no-op.
func (c *CaptureSource) Start(onFrame func([]float32)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.granted {
		return ErrAccessNotGranted
	}
	if c.started {
		c.logger.Warn().Msg("Start called on an active capture source; ignoring")
		return nil
	}

	c.in = make([]float32, readBufferSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(c.deviceRate), len(c.in), c.in)
	if err != nil {
		return fmt.Errorf("failed to open capture stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("failed to start capture stream: %w", err)
	}

	c.stream = stream
	c.ring.Clear()
	c.done = make(chan struct{})
	c.started = true

	framer := NewFramer(c.frameSize, onFrame)

	c.wg.Add(2)
	go c.readLoop()
	go c.pumpLoop(framer)

	c.logger.Info().Int("frame_size", c.frameSize).Msg("Capture started")
	return nil
}

// readLoop keeps the device drained; it must never block on downstream work
func (c *CaptureSource) readLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		if err := c.stream.Read(); err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.logger.Warn().Err(err).Msg("Capture read error")
			time.Sleep(pumpInterval)
			continue
		}

		if written := c.ring.Write(c.in); written < len(c.in) {
			c.logger.Warn().
				Int("dropped", len(c.in)-written).
				Msg("Capture ring full, dropping samples")
		}
	}
}

// pumpLoop drains the ring, resamples to the target rate, and frames
func (c *CaptureSource) pumpLoop(framer *Framer) {
	defer c.wg.Done()

	scratch := make([]float32, readBufferSize*4)
	ticker := time.NewTicker(pumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			// Drain whatever is left so trailing speech is not lost
			for {
				n := c.ring.Read(scratch)
				if n == 0 {
					return
				}
				framer.Push(Resample(scratch[:n], c.deviceRate, c.targetRate))
			}
		case <-ticker.C:
			for {
				n := c.ring.Read(scratch)
				if n == 0 {
					break
				}
				framer.Push(Resample(scratch[:n], c.deviceRate, c.targetRate))
			}
		}
	}
}

// Stop halts frame production and releases the device stream
func (c *CaptureSource) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return
	}

	close(c.done)
	_ = c.stream.Stop()
	c.wg.Wait()
	_ = c.stream.Close()
	c.stream = nil
	c.started = false
	c.logger.Info().Msg("Capture stopped")
}

// Cleanup releases all underlying audio host resources. Idempotent and safe
// to call whether or not the source ever started.
func (c *CaptureSource) Cleanup() {
	c.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.terminated || !c.granted {
		return
	}
	if err := portaudio.Terminate(); err != nil {
		c.logger.Warn().Err(err).Msg("Audio host termination failed")
	}
	c.terminated = true
	c.granted = false
}
