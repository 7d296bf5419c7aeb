package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/voxlab/voice-client/internal/observability"
	"github.com/voxlab/voice-client/internal/resilience"
)

var (
	// ErrNotConnected is returned by Send when the session is not open
	ErrNotConnected = errors.New("session is not connected")

	// ErrAlreadyActive is returned by Connect on a connecting or open session
	ErrAlreadyActive = errors.New("session is already active")
)

var (
	finishMessage    = []byte(`{"type":"CloseStream"}`)
	keepAliveMessage = []byte(`{"type":"KeepAlive"}`)
)

// Options tune session behavior; zero values fall back to defaults
type Options struct {
	Dialer         Dialer
	OpenTimeout    time.Duration // Wait for the open acknowledgment
	RetryBackoff   time.Duration // Backoff before the single connect retry
	FinishGrace    time.Duration // Wait for trailing finals during Finish
	KeepAliveEvery time.Duration // Keepalive cadence while open; 0 disables
	Retry          RetryPolicy   // Connect retry predicate
}

// Session owns one duplex connection lifecycle:
// Idle -> Connecting -> Open -> Closing -> Closed, with Connecting -> Closed
// on failure. It becomes Open only after the endpoint's explicit open
// acknowledgment, never inferred from send success.
type Session struct {
	id     string
	params Params
	opts   Options
	logger zerolog.Logger

	mu           sync.Mutex
	state        State
	conn         Conn
	loopDone     chan struct{}
	onTranscript []func(TranscriptEvent)
	onError      []func(error)
	onClose      []func()
}

// New creates an idle session for the given endpoint parameters
func New(params Params, opts Options) *Session {
	if opts.Dialer == nil {
		opts.Dialer = WSDialer{}
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 10 * time.Second
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 500 * time.Millisecond
	}
	if opts.FinishGrace <= 0 {
		opts.FinishGrace = 500 * time.Millisecond
	}
	if opts.Retry.ShouldRetry == nil {
		opts.Retry = DefaultRetryPolicy()
	}

	id := observability.NewSessionID()
	return &Session{
		id:     id,
		params: params,
		opts:   opts,
		state:  StateIdle,
		logger: observability.WithSessionID(id).With().Str("component", "session").Logger(),
	}
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SubscribeTranscript registers a transcript listener. Listeners survive
// until Disconnect clears them.
func (s *Session) SubscribeTranscript(fn func(TranscriptEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTranscript = append(s.onTranscript, fn)
}

// SubscribeError registers an error listener
func (s *Session) SubscribeError(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = append(s.onError, fn)
}

// SubscribeClose registers a listener for connection death observed by the
// event loop. It fires after any terminal close, normal or abnormal, but not
// for a caller-initiated Disconnect.
func (s *Session) SubscribeClose(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = append(s.onClose, fn)
}

// Connect opens the duplex connection and blocks until the endpoint
// acknowledges the open or the attempt fails. A transient-looking failure is
// retried exactly once after the configured backoff. On exhaustion the
// classified failure is returned and also dispatched to error listeners.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle && s.state != StateClosed {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w (state %s)", ErrAlreadyActive, state)
	}
	s.state = StateConnecting
	s.mu.Unlock()

	retryCfg := &resilience.RetryConfig{
		MaxAttempts:       2,
		InitialBackoff:    s.opts.RetryBackoff,
		MaxBackoff:        s.opts.RetryBackoff,
		BackoffMultiplier: 1.0,
		OnRetry: func(nextAttempt int, err error) {
			observability.RecordConnectRetry()
			s.logger.Warn().Err(err).
				Dur("backoff", s.opts.RetryBackoff).
				Msg("Transient connect failure, retrying once")
		},
	}

	err := resilience.Retry(func() error {
		return s.dialOnce(ctx)
	}, retryCfg, s.opts.Retry.ShouldRetry)

	if err != nil {
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()

		classified := &Error{
			Category: CategoryOf(err),
			Message:  fmt.Sprintf("connection failed: %v", err),
		}
		observability.RecordSessionFailed()
		s.logger.Error().Err(err).Str("category", string(classified.Category)).
			Msg("Connect failed")
		s.dispatchError(classified)
		return classified
	}

	observability.RecordSessionConnected()
	s.logger.Info().Str("model", s.params.Model).Str("language", s.params.Language).
		Msg("Session open")
	return nil
}

// dialOnce performs a single dial and waits for the open acknowledgment.
// Error or close events arriving before the acknowledgment fail the attempt.
func (s *Session) dialOnce(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, s.opts.OpenTimeout)
	defer cancel()

	conn, err := s.opts.Dialer.Dial(dialCtx, s.params)
	if err != nil {
		return err
	}

	for {
		select {
		case ev, ok := <-conn.Events():
			if !ok {
				_ = conn.Close()
				return errors.New("connection closed before open acknowledgment")
			}
			switch ev.Type {
			case EventOpen:
				s.attach(conn)
				return nil
			case EventError:
				_ = conn.Close()
				return errors.New(ev.Message)
			case EventClose:
				_ = conn.Close()
				return fmt.Errorf("connection closed before open (code %d): %s", ev.Code, closeText(ev))
			default:
				// Metadata before open carries nothing actionable
			}

		case <-dialCtx.Done():
			_ = conn.Close()
			return fmt.Errorf("timed out waiting for open acknowledgment after %v", s.opts.OpenTimeout)
		}
	}
}

// attach transitions to Open and starts the receive demux loop
func (s *Session) attach(conn Conn) {
	s.mu.Lock()
	s.conn = conn
	s.state = StateOpen
	s.loopDone = make(chan struct{})
	s.mu.Unlock()

	go s.eventLoop(conn)
}

// eventLoop demultiplexes inbound events until the connection dies. Handlers
// never block: transcript and error listeners are plain function calls and
// the loop performs no I/O besides the keepalive.
func (s *Session) eventLoop(conn Conn) {
	defer close(s.loopDone)

	var keepalive *time.Ticker
	var keepaliveC <-chan time.Time
	if s.opts.KeepAliveEvery > 0 {
		keepalive = time.NewTicker(s.opts.KeepAliveEvery)
		keepaliveC = keepalive.C
		defer keepalive.Stop()
	}

	for {
		select {
		case ev, ok := <-conn.Events():
			if !ok {
				s.markClosed()
				return
			}
			switch ev.Type {
			case EventTranscript:
				observability.RecordTranscriptEvent(ev.Transcript.IsFinal)
				s.dispatchTranscript(*ev.Transcript)

			case EventMetadata:
				s.logger.Debug().Str("event", ev.Message).Msg("Endpoint metadata")

			case EventError:
				classified := NewError(ev.Message)
				observability.RecordSessionError(string(classified.Category))
				s.logger.Error().Str("category", string(classified.Category)).
					Str("message", ev.Message).Msg("Endpoint error")
				s.dispatchError(classified)

			case EventClose:
				s.handleClose(ev)
				s.markClosed()
				return
			}

		case <-keepaliveC:
			if s.State() == StateOpen {
				if err := conn.SendControl(keepAliveMessage); err != nil {
					s.logger.Debug().Err(err).Msg("Keepalive send failed")
				}
			}
		}
	}
}

// handleClose dispatches non-normal closes as classified errors. An abnormal
// closure (1006) with no prior error event is still a network failure, not a
// silent teardown.
func (s *Session) handleClose(ev Event) {
	const closeNormal = 1000

	if ev.Code == closeNormal {
		s.logger.Info().Msg("Session closed normally")
		return
	}

	category := Classify(closeText(ev))
	if ev.Code == 1006 || category == CategoryUnknown {
		category = CategoryNetwork
	}
	classified := &Error{
		Category: category,
		Message:  fmt.Sprintf("connection closed (code %d): %s", ev.Code, closeText(ev)),
	}
	observability.RecordSessionError(string(classified.Category))
	s.logger.Error().Int("code", ev.Code).Str("reason", ev.Reason).
		Msg("Session closed abnormally")
	s.dispatchError(classified)
}

func closeText(ev Event) string {
	if ev.Reason != "" {
		return ev.Reason
	}
	return ev.Message
}

// Send forwards one encoded audio frame, fire-and-forget. It fails fast when
// the session is not open; it never silently drops.
func (s *Session) Send(frame []byte) error {
	s.mu.Lock()
	conn := s.conn
	state := s.state
	s.mu.Unlock()

	if state != StateOpen || conn == nil {
		return fmt.Errorf("%w (state %s)", ErrNotConnected, state)
	}

	if err := conn.Send(frame); err != nil {
		return fmt.Errorf("failed to send audio frame: %w", err)
	}
	observability.RecordFrameSent(len(frame))
	return nil
}

// Finish signals the endpoint to flush trailing finals, then waits a fixed
// grace period for them to arrive. Finish runs during teardown, so internal
// failures are logged, never propagated.
func (s *Session) Finish() {
	s.mu.Lock()
	if s.state != StateOpen && s.state != StateClosing {
		s.mu.Unlock()
		return
	}
	s.state = StateClosing
	conn := s.conn
	loopDone := s.loopDone
	s.mu.Unlock()

	if conn != nil {
		if err := conn.SendControl(finishMessage); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to send finish signal")
		}
	}

	// Trailing finals keep flowing through the event loop during the grace
	// window; stop waiting early if the connection dies first.
	timer := time.NewTimer(s.opts.FinishGrace)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-loopDone:
	}
}

// Disconnect tears the session down from any state, clears all listeners and
// is safe to call repeatedly, including when Connect never succeeded.
func (s *Session) Disconnect() {
	s.mu.Lock()
	conn := s.conn
	wasOpen := s.state == StateOpen || s.state == StateClosing
	s.conn = nil
	s.state = StateClosed
	s.onTranscript = nil
	s.onError = nil
	s.onClose = nil
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if wasOpen {
		observability.RecordSessionClosed()
		s.logger.Info().Msg("Session disconnected")
	}
}

// markClosed records connection death observed by the event loop and notifies
// close listeners so owners can release resources tied to the open session
func (s *Session) markClosed() {
	s.mu.Lock()
	wasOpen := s.state == StateOpen || s.state == StateClosing
	s.state = StateClosed
	s.conn = nil
	listeners := make([]func(), len(s.onClose))
	copy(listeners, s.onClose)
	s.mu.Unlock()

	if wasOpen {
		observability.RecordSessionClosed()
	}
	for _, fn := range listeners {
		fn()
	}
}

func (s *Session) dispatchTranscript(ev TranscriptEvent) {
	s.mu.Lock()
	listeners := make([]func(TranscriptEvent), len(s.onTranscript))
	copy(listeners, s.onTranscript)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

func (s *Session) dispatchError(err error) {
	s.mu.Lock()
	listeners := make([]func(error), len(s.onError))
	copy(listeners, s.onError)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(err)
	}
}
