package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// WSDialer dials the streaming endpoint over gorilla/websocket. The
// completed handshake (the endpoint's 101 response) is surfaced as an
// explicit Open event through the same channel as every other inbound
// event, so the session state machine observes open, error and close in
// arrival order.
type WSDialer struct{}

func (WSDialer) Dial(ctx context.Context, params Params) (Conn, error) {
	wsURL, err := params.ListenURL()
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+params.APIKey)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		// The handshake response status is the only structured hint the
		// dialer gives us; fold it into the message for the classifier.
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake failed (%s): %w", resp.Status, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	c := &wsConn{
		conn:   conn,
		events: make(chan Event, 64),
		closed: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

type wsConn struct {
	conn *websocket.Conn

	events chan Event
	closed chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (c *wsConn) Events() <-chan Event {
	return c.events
}

// Send forwards one binary audio frame. No acknowledgment is awaited.
func (c *wsConn) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

// SendControl forwards one text control message (finish, keepalive)
func (c *wsConn) SendControl(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		close(c.closed)
		_ = c.conn.Close()
	})
	return nil
}

// emit delivers an event unless the consumer is gone
func (c *wsConn) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.closed:
	}
}

func (c *wsConn) readLoop() {
	defer close(c.events)

	// Handshake already completed; announce it before any endpoint traffic
	c.emit(Event{Type: EventOpen})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			code, reason := closeDetails(err)
			c.emit(Event{Type: EventClose, Code: code, Reason: reason, Message: err.Error()})
			return
		}

		var msg wireMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			continue
		}

		switch {
		case strings.EqualFold(msg.Type, "Error"):
			c.emit(Event{Type: EventError, Message: msg.errorText()})

		case strings.EqualFold(msg.Type, "Results") || strings.EqualFold(msg.Type, "Message"):
			text, confidence := msg.transcript()
			if text == "" {
				continue
			}
			c.emit(Event{Type: EventTranscript, Transcript: &TranscriptEvent{
				Text:       text,
				IsFinal:    msg.IsFinal || msg.SpeechFinal,
				Confidence: confidence,
			}})

		default:
			// Metadata, SpeechStarted, UtteranceEnd and anything unrecognized
			c.emit(Event{Type: EventMetadata, Message: msg.Type})
		}
	}
}

// closeDetails extracts code and reason from a read error. Reads that fail
// without a proper close handshake count as abnormal closure (1006).
func closeDetails(err error) (int, string) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code, closeErr.Text
	}
	return websocket.CloseAbnormalClosure, "abnormal closure"
}

type wireMessage struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	Description string `json:"description"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (m wireMessage) transcript() (string, float64) {
	if len(m.Channel.Alternatives) == 0 {
		return "", 0
	}
	alt := m.Channel.Alternatives[0]
	return strings.TrimSpace(alt.Transcript), alt.Confidence
}

func (m wireMessage) errorText() string {
	if text := strings.TrimSpace(m.Description); text != "" {
		return text
	}
	if text := strings.TrimSpace(m.Message); text != "" {
		return text
	}
	return "endpoint returned an unknown error"
}
