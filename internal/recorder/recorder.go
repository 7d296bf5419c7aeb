package recorder

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/voxlab/voice-client/internal/audio"
	"github.com/voxlab/voice-client/internal/config"
	"github.com/voxlab/voice-client/internal/observability"
	"github.com/voxlab/voice-client/internal/probe"
	"github.com/voxlab/voice-client/internal/resilience"
	"github.com/voxlab/voice-client/internal/session"
)

var (
	// ErrNotReady is returned by StartRecording before a successful Initialize
	ErrNotReady = errors.New("recorder is not ready; call Initialize first")
)

// Capture is the microphone boundary the recorder drives
type Capture interface {
	RequestAccess() error
	Start(onFrame func([]float32)) error
	Stop()
	Cleanup()
}

// Stream is the streaming session surface the recorder drives. A fresh
// Stream is created per recording so listener registration is per-session
// rather than last-writer-wins on a shared slot.
type Stream interface {
	Connect(ctx context.Context) error
	Send(frame []byte) error
	Finish()
	Disconnect()
	SubscribeTranscript(func(session.TranscriptEvent))
	SubscribeError(func(error))
	SubscribeClose(func())
}

// Validator classifies endpoint reachability and credential validity
type Validator interface {
	ValidateKey(ctx context.Context) error
	Probe(ctx context.Context, timeout time.Duration) probe.Result
}

// State is the externally visible recorder state. IsRecording implies an
// open session fed by an active capture source; IsProcessing is transient
// and bounded by an in-flight initialize/connect/finish call.
type State struct {
	IsRecording       bool
	IsProcessing      bool
	IsReady           bool
	Transcript        string
	InterimTranscript string
	Err               string
}

// Recorder composes the capture source and streaming session into one
// start/stop workflow and merges interim and final fragments into a growing
// transcript. One recorder owns at most one open session at a time.
type Recorder struct {
	cfg       *config.Config
	capture   Capture
	newStream func() Stream
	validator Validator
	breaker   *resilience.CircuitBreaker
	logger    zerolog.Logger

	mu     sync.Mutex
	st     State
	stream Stream
	closed bool
}

// New creates a recorder. newStream is invoked once per recording.
func New(cfg *config.Config, capture Capture, newStream func() Stream, validator Validator) *Recorder {
	return &Recorder{
		cfg:       cfg,
		capture:   capture,
		newStream: newStream,
		validator: validator,
		breaker: resilience.NewCircuitBreaker(
			"frame-send",
			cfg.SendBreakerMaxFailures,
			time.Duration(cfg.SendBreakerResetTimeout)*time.Second,
		),
		logger: observability.Component("recorder"),
	}
}

// State returns a snapshot of the current recorder state
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st
}

// Initialize acquires microphone access and validates the credential. Only
// when every sub-step succeeds does the recorder become ready; any failure
// leaves IsReady false with the classified error populated.
func (r *Recorder) Initialize(ctx context.Context) error {
	r.setProcessing(true)
	defer r.setProcessing(false)

	if err := r.capture.RequestAccess(); err != nil {
		r.recordError(err)
		r.logger.Error().Err(err).Msg("Microphone access failed")
		return err
	}

	if err := r.validator.ValidateKey(ctx); err != nil {
		r.recordError(err)
		r.logger.Error().Err(err).Msg("Credential validation failed")
		return err
	}

	r.mu.Lock()
	r.st.IsReady = true
	r.st.Err = ""
	r.mu.Unlock()

	r.logger.Info().Msg("Recorder ready")
	return nil
}

// StartRecording connects a fresh session and starts the capture source
// feeding encoded frames into it. Individual send failures are logged and
// swallowed; a single dropped frame must not kill a healthy stream.
func (r *Recorder) StartRecording(ctx context.Context) error {
	r.mu.Lock()
	if !r.st.IsReady {
		r.mu.Unlock()
		return ErrNotReady
	}
	if r.st.IsRecording {
		r.mu.Unlock()
		r.logger.Warn().Msg("StartRecording called while already recording; ignoring")
		return nil
	}
	r.st.IsProcessing = true
	r.mu.Unlock()

	stream := r.newStream()
	stream.SubscribeTranscript(r.handleTranscript)
	stream.SubscribeError(r.handleSessionError)
	stream.SubscribeClose(r.handleSessionClose)

	if err := stream.Connect(ctx); err != nil {
		r.recordError(err)
		r.setProcessing(false)
		return err
	}

	r.breaker.Reset()
	if err := r.capture.Start(r.frameSink(stream)); err != nil {
		stream.Finish()
		stream.Disconnect()
		r.recordError(err)
		r.setProcessing(false)
		return err
	}

	r.mu.Lock()
	r.stream = stream
	r.st.IsRecording = true
	r.st.IsProcessing = false
	r.st.Err = ""
	r.mu.Unlock()

	r.logger.Info().Msg("Recording started")
	return nil
}

// frameSink returns the per-frame callback: encode, then fire-and-forget
// send behind the circuit breaker so a dead connection stops being hammered
// once per frame.
func (r *Recorder) frameSink(stream Stream) func([]float32) {
	return func(frame []float32) {
		encoded := audio.EncodePCM16(frame)
		err := r.breaker.Call(func() error {
			return stream.Send(encoded)
		})
		if err != nil {
			observability.RecordFrameDropped()
			if errors.Is(err, resilience.ErrOpen) {
				r.logger.Debug().Msg("Send circuit open, dropping frame")
			} else {
				r.logger.Warn().Err(err).Msg("Dropped audio frame")
			}
		}
	}
}

// StopRecording halts frame production first, then flushes and tears down
// the session, in that order, so no frames are sent into a closing stream.
func (r *Recorder) StopRecording() {
	r.mu.Lock()
	if !r.st.IsRecording {
		r.mu.Unlock()
		return
	}
	r.st.IsProcessing = true
	stream := r.stream
	r.stream = nil
	r.mu.Unlock()

	r.capture.Stop()
	if stream != nil {
		stream.Finish()
		stream.Disconnect()
	}

	r.mu.Lock()
	r.st.IsRecording = false
	r.st.IsProcessing = false
	r.mu.Unlock()

	r.logger.Info().Msg("Recording stopped")
}

// handleTranscript applies the merge rule: interim events replace the
// provisional slot wholesale (latest wins), final events append to the
// transcript and clear the slot
func (r *Recorder) handleTranscript(ev session.TranscriptEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return
	}

	if ev.IsFinal {
		if r.st.Transcript == "" {
			r.st.Transcript = text
		} else {
			r.st.Transcript += " " + text
		}
		r.st.InterimTranscript = ""
	} else {
		r.st.InterimTranscript = text
	}
}

func (r *Recorder) handleSessionError(err error) {
	r.recordError(err)
	r.logger.Error().Err(err).Msg("Session error")
}

// handleSessionClose fires when the connection dies underneath an active
// recording. The capture source is stopped and IsRecording cleared so the
// state never claims an open session that no longer exists; any classified
// error dispatched before the close stays recorded. A caller-initiated stop
// nils the stream first, so this is a no-op during StopRecording and Close.
func (r *Recorder) handleSessionClose() {
	r.mu.Lock()
	if r.stream == nil || !r.st.IsRecording {
		r.mu.Unlock()
		return
	}
	stream := r.stream
	r.stream = nil
	r.mu.Unlock()

	r.capture.Stop()
	stream.Disconnect()

	r.mu.Lock()
	r.st.IsRecording = false
	r.st.IsProcessing = false
	r.mu.Unlock()

	r.logger.Warn().Msg("Session closed while recording; capture stopped")
}

// ClearTranscript resets the transcript and any recorded error without
// touching the connection state
func (r *Recorder) ClearTranscript() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.st.Transcript = ""
	r.st.InterimTranscript = ""
	r.st.Err = ""
}

// ValidateKey re-runs credential validation on demand
func (r *Recorder) ValidateKey(ctx context.Context) error {
	err := r.validator.ValidateKey(ctx)
	if err != nil {
		r.recordError(err)
	}
	return err
}

// RunDiagnostics performs a single reachability probe and returns its result
func (r *Recorder) RunDiagnostics(ctx context.Context, timeout time.Duration) probe.Result {
	return r.validator.Probe(ctx, timeout)
}

// Close tears everything down unconditionally: capture source released,
// session flushed and disconnected. Safe to call while recording and safe to
// call repeatedly.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	stream := r.stream
	r.stream = nil
	wasRecording := r.st.IsRecording
	r.st.IsRecording = false
	r.st.IsReady = false
	r.mu.Unlock()

	if wasRecording {
		r.capture.Stop()
	}
	if stream != nil {
		stream.Finish()
		stream.Disconnect()
	}
	r.capture.Cleanup()

	r.logger.Info().Msg("Recorder closed")
}

func (r *Recorder) setProcessing(v bool) {
	r.mu.Lock()
	r.st.IsProcessing = v
	r.mu.Unlock()
}

func (r *Recorder) recordError(err error) {
	r.mu.Lock()
	r.st.Err = err.Error()
	r.mu.Unlock()
}
