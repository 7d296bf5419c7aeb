package session

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// State is the lifecycle state of a streaming session
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// TranscriptEvent is a single recognition result from the endpoint
type TranscriptEvent struct {
	// Text is the transcribed fragment
	Text string

	// IsFinal distinguishes recognizer-confirmed fragments from provisional ones
	IsFinal bool

	// Confidence is the recognizer confidence (0.0 to 1.0) if available
	Confidence float64
}

// EventType tags inbound endpoint events
type EventType int

const (
	EventOpen EventType = iota
	EventTranscript
	EventMetadata
	EventError
	EventClose
)

// Event is one demultiplexed inbound endpoint event
type Event struct {
	Type       EventType
	Transcript *TranscriptEvent // EventTranscript only
	Message    string           // error text or metadata summary
	Code       int              // EventClose: close code
	Reason     string           // EventClose: close reason
}

// Params are the streaming handshake parameters. The endpoint requires exact
// encoding/rate/channel agreement with the audio pipeline.
type Params struct {
	BaseURL string // e.g. wss://api.deepgram.com/v1
	APIKey  string

	Model          string
	Language       string
	Punctuate      bool
	SmartFormat    bool
	InterimResults bool

	SampleRate int
	Channels   int
}

// ListenURL builds the websocket URL for the streaming endpoint
func (p Params) ListenURL() (string, error) {
	base := strings.TrimSpace(p.BaseURL)
	if base == "" {
		base = "wss://api.deepgram.com/v1"
	}
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	listenURL, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid endpoint base URL: %w", err)
	}

	sampleRate := p.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	channels := p.Channels
	if channels <= 0 {
		channels = 1
	}
	model := p.Model
	if model == "" {
		model = "nova-2"
	}

	query := listenURL.Query()
	query.Set("model", model)
	query.Set("encoding", "linear16")
	query.Set("sample_rate", fmt.Sprintf("%d", sampleRate))
	query.Set("channels", fmt.Sprintf("%d", channels))
	query.Set("punctuate", fmt.Sprintf("%t", p.Punctuate))
	query.Set("smart_format", fmt.Sprintf("%t", p.SmartFormat))
	query.Set("interim_results", fmt.Sprintf("%t", p.InterimResults))
	if p.Language != "" {
		query.Set("language", p.Language)
	}
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}

// Conn is an established duplex connection delivering demultiplexed events.
// The events channel is closed when the connection dies; a Close event is
// always the last event delivered.
type Conn interface {
	Events() <-chan Event
	Send(data []byte) error
	SendControl(data []byte) error
	Close() error
}

// Dialer opens connections to the streaming endpoint
type Dialer interface {
	Dial(ctx context.Context, params Params) (Conn, error)
}
