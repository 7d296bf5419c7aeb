package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/voxlab/voice-client/internal/observability"
	"github.com/voxlab/voice-client/internal/session"
)

// ErrNoAPIKey is a configuration error: probing without a credential is
// pointless and always fails fast
var ErrNoAPIKey = errors.New("configuration error: API key is empty")

// Result is the outcome of a diagnostic probe. Never persisted; consumed
// once by the caller.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    int    `json:"code,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// AlternateProbe performs the same handshake over an independent transport
// stack, for when the primary dial is blocked by proxy/TLS interference
// unrelated to credential validity
type AlternateProbe func(ctx context.Context, apiKey string, timeout time.Duration) Result

// Options tune the prober; zero values fall back to defaults
type Options struct {
	Dialer    session.Dialer
	Timeout   time.Duration
	Alternate AlternateProbe
}

// Prober classifies endpoint reachability and credential validity using
// short-lived throwaway connections that carry no real audio.
type Prober struct {
	params session.Params
	opts   Options
	logger zerolog.Logger
}

// New creates a prober using the same endpoint parameters as the real session
func New(params session.Params, opts Options) *Prober {
	if opts.Dialer == nil {
		opts.Dialer = session.WSDialer{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	return &Prober{
		params: params,
		opts:   opts,
		logger: observability.Component("probe"),
	}
}

// Probe opens a throwaway connection with the session's exact parameters and
// reports whether the endpoint acknowledged the open within timeout. The
// connection is torn down on every exit path.
func (p *Prober) Probe(ctx context.Context, timeout time.Duration) Result {
	if timeout <= 0 {
		timeout = p.opts.Timeout
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p.logger.Info().Dur("timeout", timeout).Msg("Probing streaming endpoint")

	conn, err := p.opts.Dialer.Dial(probeCtx, p.params)
	if err != nil {
		return failureResult(err.Error())
	}
	defer conn.Close()

	for {
		select {
		case ev, ok := <-conn.Events():
			if !ok {
				return failureResult("connection closed before open acknowledgment")
			}
			switch ev.Type {
			case session.EventOpen:
				return Result{
					Success: true,
					Message: "WebSocket connection established successfully",
				}
			case session.EventError:
				return failureResult(ev.Message)
			case session.EventClose:
				reason := ev.Reason
				if reason == "" {
					reason = ev.Message
				}
				return Result{
					Success: false,
					Message: fmt.Sprintf("connection closed before open (code %d): %s", ev.Code, reason),
					Code:    ev.Code,
					Reason:  reason,
				}
			}

		case <-probeCtx.Done():
			return Result{
				Success: false,
				Message: fmt.Sprintf("WebSocket probe timed out (%dms)", timeout.Milliseconds()),
				Code:    1006,
				Reason:  "Timeout",
			}
		}
	}
}

// failureResult maps raw failure text onto a user-meaningful message while
// preserving the original for diagnostics
func failureResult(message string) Result {
	switch session.Classify(message) {
	case session.CategoryAuth:
		return Result{Success: false, Message: "Authentication failed: check your Deepgram API key", Reason: message}
	case session.CategoryPermission:
		return Result{Success: false, Message: "Permission denied: check your Deepgram account and plan", Reason: message}
	default:
		return Result{Success: false, Message: "WebSocket connection failed: " + message}
	}
}

// ValidateKey verifies the configured credential. The primary probe runs
// over the session's own transport; when it fails, the probe is escalated to
// the alternate transport, because a proxy or TLS-intercepting middlebox can
// block one stack while the other gets through. Only when both fail is a
// classified error raised.
func (p *Prober) ValidateKey(ctx context.Context) error {
	if strings.TrimSpace(p.params.APIKey) == "" {
		return ErrNoAPIKey
	}

	primary := p.Probe(ctx, p.opts.Timeout)
	observability.RecordProbe("session", primary.Success)
	if primary.Success {
		return nil
	}

	p.logger.Warn().Str("message", primary.Message).
		Msg("Primary probe failed, escalating to alternate transport")

	if p.opts.Alternate != nil {
		alt := p.opts.Alternate(ctx, p.params.APIKey, p.opts.Timeout)
		observability.RecordProbe("sdk", alt.Success)
		if alt.Success {
			p.logger.Info().
				Msg("Alternate transport reached the endpoint; primary path is blocked, not the credential")
			return nil
		}
		p.logger.Warn().Str("message", alt.Message).Msg("Alternate probe failed")
	}

	detail := primary.Message
	if primary.Reason != "" {
		detail = primary.Reason
	}
	return &session.Error{
		Category: session.Classify(detail),
		Message:  primary.Message,
	}
}
