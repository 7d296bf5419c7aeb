package probe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voxlab/voice-client/internal/session"
)

// scriptedConn delivers canned events for probing
type scriptedConn struct {
	events chan session.Event
	closed bool
}

func newScriptedConn(events ...session.Event) *scriptedConn {
	c := &scriptedConn{events: make(chan session.Event, len(events)+1)}
	for _, ev := range events {
		c.events <- ev
	}
	return c
}

func (c *scriptedConn) Events() <-chan session.Event { return c.events }
func (c *scriptedConn) Send([]byte) error            { return nil }
func (c *scriptedConn) SendControl([]byte) error     { return nil }
func (c *scriptedConn) Close() error {
	c.closed = true
	return nil
}

type stubDialer struct {
	conn *scriptedConn
	err  error
}

func (d *stubDialer) Dial(ctx context.Context, params session.Params) (session.Conn, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

func testParams() session.Params {
	return session.Params{APIKey: "test-key", Model: "nova-2", Language: "en-US", SampleRate: 16000, Channels: 1}
}

func TestProbe_SuccessOnOpenAck(t *testing.T) {
	conn := newScriptedConn(session.Event{Type: session.EventOpen})
	p := New(testParams(), Options{Dialer: &stubDialer{conn: conn}, Timeout: time.Second})

	result := p.Probe(context.Background(), time.Second)
	if !result.Success {
		t.Fatalf("Expected success, got %+v", result)
	}
	if !conn.closed {
		t.Error("Expected throwaway connection torn down after success")
	}
}

func TestProbe_TimeoutWithoutAck(t *testing.T) {
	conn := newScriptedConn() // never emits
	p := New(testParams(), Options{Dialer: &stubDialer{conn: conn}, Timeout: time.Second})

	result := p.Probe(context.Background(), 30*time.Millisecond)
	if result.Success {
		t.Fatal("Expected timeout failure")
	}
	if result.Code != 1006 || result.Reason != "Timeout" {
		t.Errorf("Expected code 1006 reason Timeout, got %+v", result)
	}
	if !conn.closed {
		t.Error("Expected throwaway connection torn down on timeout")
	}
}

func TestProbe_CloseBeforeOpenCarriesCodeAndReason(t *testing.T) {
	conn := newScriptedConn(session.Event{Type: session.EventClose, Code: 1011, Reason: "internal error"})
	p := New(testParams(), Options{Dialer: &stubDialer{conn: conn}, Timeout: time.Second})

	result := p.Probe(context.Background(), time.Second)
	if result.Success {
		t.Fatal("Expected failure on close before open")
	}
	if result.Code != 1011 || result.Reason != "internal error" {
		t.Errorf("Expected close code/reason captured, got %+v", result)
	}
	if !conn.closed {
		t.Error("Expected throwaway connection torn down on close")
	}
}

func TestProbe_AuthFailureMessage(t *testing.T) {
	p := New(testParams(), Options{
		Dialer:  &stubDialer{err: errors.New("websocket handshake failed (401 Unauthorized): bad handshake")},
		Timeout: time.Second,
	})

	result := p.Probe(context.Background(), time.Second)
	if result.Success {
		t.Fatal("Expected failure")
	}
	if result.Message != "Authentication failed: check your Deepgram API key" {
		t.Errorf("Expected user-meaningful auth message, got %q", result.Message)
	}
	if result.Reason == "" {
		t.Error("Expected original transport text preserved in Reason")
	}
}

func TestValidateKey_PrimarySuccess(t *testing.T) {
	conn := newScriptedConn(session.Event{Type: session.EventOpen})
	alternateCalled := false
	p := New(testParams(), Options{
		Dialer:  &stubDialer{conn: conn},
		Timeout: time.Second,
		Alternate: func(ctx context.Context, apiKey string, timeout time.Duration) Result {
			alternateCalled = true
			return Result{Success: false}
		},
	})

	if err := p.ValidateKey(context.Background()); err != nil {
		t.Fatalf("ValidateKey() failed: %v", err)
	}
	if alternateCalled {
		t.Error("Expected no escalation when primary succeeds")
	}
}

func TestValidateKey_FallbackToAlternate(t *testing.T) {
	// Primary times out, alternate succeeds: the key is valid, the primary
	// path is blocked
	conn := newScriptedConn()
	p := New(testParams(), Options{
		Dialer:  &stubDialer{conn: conn},
		Timeout: 30 * time.Millisecond,
		Alternate: func(ctx context.Context, apiKey string, timeout time.Duration) Result {
			if apiKey != "test-key" {
				t.Errorf("Expected credential forwarded, got %q", apiKey)
			}
			return Result{Success: true, Message: "ok"}
		},
	})

	if err := p.ValidateKey(context.Background()); err != nil {
		t.Fatalf("Expected alternate success to validate the key, got %v", err)
	}
}

func TestValidateKey_BothFailRaisesClassifiedError(t *testing.T) {
	p := New(testParams(), Options{
		Dialer:  &stubDialer{err: errors.New("websocket handshake failed (401 Unauthorized): bad handshake")},
		Timeout: time.Second,
		Alternate: func(ctx context.Context, apiKey string, timeout time.Duration) Result {
			return Result{Success: false, Message: "alternate also failed"}
		},
	})

	err := p.ValidateKey(context.Background())
	if err == nil {
		t.Fatal("Expected classified error when both probes fail")
	}
	var se *session.Error
	if !errors.As(err, &se) || se.Category != session.CategoryAuth {
		t.Errorf("Expected auth classification, got %v", err)
	}
}

func TestValidateKey_BothFailNetwork(t *testing.T) {
	conn := newScriptedConn()
	p := New(testParams(), Options{
		Dialer:  &stubDialer{conn: conn},
		Timeout: 30 * time.Millisecond,
		Alternate: func(ctx context.Context, apiKey string, timeout time.Duration) Result {
			return Result{Success: false, Message: "timed out too"}
		},
	})

	err := p.ValidateKey(context.Background())
	var se *session.Error
	if !errors.As(err, &se) || se.Category != session.CategoryNetwork {
		t.Errorf("Expected network classification for double timeout, got %v", err)
	}
}

func TestValidateKey_EmptyKeyFailsFast(t *testing.T) {
	params := testParams()
	params.APIKey = "   "
	p := New(params, Options{
		Dialer:  &stubDialer{err: errors.New("should not dial")},
		Timeout: time.Second,
	})

	err := p.ValidateKey(context.Background())
	if !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("Expected ErrNoAPIKey, got %v", err)
	}
}

func TestSDKHostFollowsEndpointBaseURL(t *testing.T) {
	tests := []struct {
		baseURL string
		want    string
	}{
		{"wss://api.deepgram.com/v1", "api.deepgram.com"},
		{"https://api.deepgram.com/v1", "api.deepgram.com"},
		{"ws://localhost:8080/v1", "localhost:8080"},
		{"wss://stt.internal.example:8443", "stt.internal.example:8443"},
		{"", ""},
		{"   ", ""},
		{"not a url", ""},
	}

	for _, tt := range tests {
		if got := sdkHost(tt.baseURL); got != tt.want {
			t.Errorf("sdkHost(%q): expected %q, got %q", tt.baseURL, tt.want, got)
		}
	}
}
