// Package stream dials the conversation websocket at a signed URL and turns
// inbound frames into an ordered channel of tagged events.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/vai-convai/pkg/convai/protocol"
	"github.com/vango-go/vai-convai/pkg/convai/transcript"
)

const (
	defaultEventBuffer  = 256
	defaultWriteTimeout = 5 * time.Second
)

// Dialer opens conversation streams.
type Dialer struct {
	// WS is the websocket dialer; nil uses websocket.DefaultDialer.
	WS *websocket.Dialer
	// Initiation is sent as the first frame. Its Type is always forced to
	// conversation_initiation_client_data.
	Initiation   protocol.ClientInitiation
	WriteTimeout time.Duration
	EventBuffer  int
	Logger       *slog.Logger
}

// Open dials signedURL and starts reading. Inbound events are buffered from
// the moment the socket is up, so nothing is lost before the caller starts
// draining Events.
func (d *Dialer) Open(ctx context.Context, signedURL string) (*Conn, error) {
	wsURL, err := websocketURL(signedURL)
	if err != nil {
		return nil, err
	}

	dialer := websocket.DefaultDialer
	logger := slog.Default()
	writeTimeout := defaultWriteTimeout
	buffer := defaultEventBuffer
	initiation := protocol.ClientInitiation{}
	if d != nil {
		if d.WS != nil {
			dialer = d.WS
		}
		if d.Logger != nil {
			logger = d.Logger
		}
		if d.WriteTimeout > 0 {
			writeTimeout = d.WriteTimeout
		}
		if d.EventBuffer > 0 {
			buffer = d.EventBuffer
		}
		initiation = d.Initiation
	}
	initiation.Type = protocol.TypeConversationInitiationClientData

	ws, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial conversation %s (status %d): %w", redactQuery(wsURL), resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial conversation %s: %w", redactQuery(wsURL), err)
	}

	c := &Conn{
		ws:           ws,
		logger:       logger,
		writeTimeout: writeTimeout,
		events:       make(chan Event, buffer),
		closing:      make(chan struct{}),
		done:         make(chan struct{}),
	}
	if err := c.writeJSON(initiation); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("send conversation initiation: %w", err)
	}
	go c.readLoop()
	return c, nil
}

// Conn is one open conversation stream.
type Conn struct {
	ws           *websocket.Conn
	logger       *slog.Logger
	writeTimeout time.Duration

	events  chan Event
	closing chan struct{}
	done    chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool

	errMu sync.Mutex
	err   error

	speaking bool
}

// Events yields inbound events in the order the service sent them. The
// channel is closed when the stream ends.
func (c *Conn) Events() <-chan Event {
	if c == nil {
		return nil
	}
	return c.events
}

// Close sends a normal close frame and tears the socket down. Events that
// were not yet delivered are discarded.
func (c *Conn) Close() error {
	if c == nil {
		return nil
	}
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.closing)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		c.writeMu.Unlock()
		_ = c.ws.Close()
	})
	<-c.done
	return nil
}

// Err returns the terminal read error, if any, once the stream has ended.
func (c *Conn) Err() error {
	if c == nil {
		return nil
	}
	<-c.done
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Conn) setErr(err error) {
	if err == nil {
		return
	}
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

func (c *Conn) writeJSON(v any) error {
	if c.closed.Load() {
		return fmt.Errorf("conversation stream is closed")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteJSON(v)
}

func (c *Conn) readLoop() {
	defer close(c.done)
	defer close(c.events)

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.emit(StatusChangeEvent{Status: StatusDisconnected})
				return
			}
			c.setErr(err)
			c.emit(ErrorEvent{Err: err})
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		events, err := c.decodeFrame(data)
		if err != nil {
			c.setErr(err)
			c.emit(ErrorEvent{Err: err})
			return
		}
		for _, event := range events {
			if !c.emit(event) {
				return
			}
		}
	}
}

// emit blocks until the consumer takes the event or the stream is closed.
// Dropping is not an option: transcript turns must arrive complete and in order.
func (c *Conn) emit(event Event) bool {
	select {
	case c.events <- event:
		return true
	case <-c.closing:
		return false
	}
}

func (c *Conn) decodeFrame(data []byte) ([]Event, error) {
	typ, err := protocol.PeekType(data)
	if err != nil {
		return nil, err
	}

	switch typ {
	case protocol.TypeConversationInitiationMetadata:
		var frame protocol.ConversationInitiationMetadata
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("decode %s: %w", typ, err)
		}
		return []Event{StatusChangeEvent{
			Status:         StatusConnected,
			ConversationID: strings.TrimSpace(frame.Event.ConversationID),
		}}, nil
	case protocol.TypeUserTranscript:
		var frame protocol.UserTranscript
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("decode %s: %w", typ, err)
		}
		var out []Event
		if c.speaking {
			c.speaking = false
			out = append(out, ModeChangeEvent{Mode: ModeListening})
		}
		return append(out, MessageEvent{Source: transcript.SourceUser, Text: frame.Event.UserTranscript}), nil
	case protocol.TypeAgentResponse:
		var frame protocol.AgentResponse
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("decode %s: %w", typ, err)
		}
		return []Event{MessageEvent{Source: transcript.SourceAgent, Text: frame.Event.AgentResponse}}, nil
	case protocol.TypeAudio:
		if c.speaking {
			return nil, nil
		}
		c.speaking = true
		return []Event{ModeChangeEvent{Mode: ModeSpeaking}}, nil
	case protocol.TypeInterruption:
		if !c.speaking {
			return nil, nil
		}
		c.speaking = false
		return []Event{ModeChangeEvent{Mode: ModeListening}}, nil
	case protocol.TypePing:
		var frame protocol.Ping
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("decode %s: %w", typ, err)
		}
		if err := c.writeJSON(protocol.Pong{Type: protocol.TypePong, EventID: frame.Event.EventID}); err != nil {
			c.logger.Debug("pong failed", "event_id", frame.Event.EventID, "error", err)
		}
		return nil, nil
	case protocol.TypeError:
		var frame protocol.ServerError
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("decode %s: %w", typ, err)
		}
		return []Event{ErrorEvent{Err: &RemoteError{Message: frame.Detail()}}}, nil
	default:
		// agent_response_correction, vad_score, tool calls and friends carry
		// nothing the session tracks.
		c.logger.Debug("ignoring conversation frame", "type", typ)
		return nil, nil
	}
}

func websocketURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("signed url must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid signed url: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(u.Scheme)) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("signed url must use ws(s) or http(s), got %q", u.Scheme)
	}
	return u.String(), nil
}

// redactQuery drops the query string, which carries the one-time signature.
func redactQuery(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u == nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}
