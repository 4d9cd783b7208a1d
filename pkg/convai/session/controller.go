// Package session implements the conversation session controller: the
// connection state machine, the transcript log and the stream handle for
// one agent.
//
// All state lives behind a single mutex. Each session gets one consumer
// goroutine that applies stream events in order. Every session carries a
// token; Stop, stream errors and remote disconnects advance the controller's
// token, so anything still in flight for an older session is discarded.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vango-go/vai-convai/pkg/convai/credential"
	"github.com/vango-go/vai-convai/pkg/convai/stream"
	"github.com/vango-go/vai-convai/pkg/convai/transcript"
)

// Status is the connection status of the controller.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// Mode reports whether the agent is currently speaking. It is always
// ModeListening unless the controller is connected.
type Mode string

const (
	ModeListening Mode = "listening"
	ModeSpeaking  Mode = "speaking"
)

const subscriberBuffer = 16

// Options configures a Controller.
type Options struct {
	AgentID     string
	Credentials SignedURLSource
	Transport   Transport
	Logger      *slog.Logger

	// Now stamps transcript entries; defaults to time.Now.
	Now func() time.Time
}

// Controller drives one conversation at a time.
type Controller struct {
	agentID     string
	credentials SignedURLSource
	transport   Transport
	logger      *slog.Logger
	now         func() time.Time

	mu             sync.Mutex
	status         Status
	mode           Mode
	entries        []transcript.Entry
	token          uint64
	current        *activeSession
	sessionID      string
	conversationID string
	lastErr        error

	subs    map[int]chan Snapshot
	nextSub int
}

type activeSession struct {
	token  uint64
	id     string
	stream Stream
}

// New validates opts and returns a disconnected controller.
func New(opts Options) (*Controller, error) {
	agentID := strings.TrimSpace(opts.AgentID)
	if agentID == "" {
		return nil, credential.ErrMissingAgentID
	}
	if opts.Credentials == nil {
		return nil, errors.New("session: credentials source is required")
	}
	if opts.Transport == nil {
		return nil, errors.New("session: transport is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Controller{
		agentID:     agentID,
		credentials: opts.Credentials,
		transport:   opts.Transport,
		logger:      logger,
		now:         now,
		status:      StatusDisconnected,
		mode:        ModeListening,
		subs:        make(map[int]chan Snapshot),
	}, nil
}

// Start moves disconnected -> connecting, fetches a signed URL and opens the
// stream. On success the controller is connected when Start returns. Any
// failure leaves the controller disconnected and is returned unchanged in
// kind (*credential.Error, credential.ErrEmptySignedURL, *StreamError).
//
// Start never runs an internal timeout; bound it with ctx.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.status != StatusDisconnected {
		status := c.status
		c.mu.Unlock()
		c.logger.Debug("start rejected", "status", status)
		return fmt.Errorf("%w (status %s)", ErrAlreadyActive, status)
	}
	c.token++
	token := c.token
	id := uuid.Must(uuid.NewV7()).String()
	c.sessionID = id
	c.conversationID = ""
	c.lastErr = nil
	c.status = StatusConnecting
	c.mode = ModeListening
	c.publishLocked()
	c.mu.Unlock()

	logger := c.logger.With("session_id", id)
	logger.Info("starting conversation", "agent_id", c.agentID)

	signedURL, err := c.credentials.RequestSignedURL(ctx, c.agentID)
	if err == nil && strings.TrimSpace(signedURL) == "" {
		err = credential.ErrEmptySignedURL
	}
	if err != nil {
		err = fmt.Errorf("request signed url: %w", err)
		c.abortStart(token, err)
		logger.Warn("conversation start failed", "error", err)
		return err
	}
	if !c.isCurrent(token) {
		logger.Info("conversation stopped while requesting signed url")
		return ErrSessionSuperseded
	}

	strm, err := c.transport.Open(ctx, signedURL)
	if err != nil {
		streamErr := &StreamError{Op: "open", Err: err}
		c.abortStart(token, streamErr)
		logger.Warn("conversation start failed", "error", streamErr)
		return streamErr
	}

	c.mu.Lock()
	if c.token != token {
		c.mu.Unlock()
		logger.Info("closing stream opened after stop")
		_ = strm.Close()
		return ErrSessionSuperseded
	}
	c.current = &activeSession{token: token, id: id, stream: strm}
	// Optimistic: the open call succeeded. A status-change event from the
	// service may also report connected; either order converges here.
	if c.status != StatusConnected {
		c.status = StatusConnected
		c.publishLocked()
	}
	c.mu.Unlock()

	logger.Info("conversation connected")
	go c.consume(token, strm, logger)
	return nil
}

// Stop closes the active session. It is a no-op when already disconnected.
// Stopping while connecting cancels the pending session: whatever the
// in-flight Start later obtains is closed instead of adopted.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.status == StatusDisconnected {
		c.mu.Unlock()
		return nil
	}
	prev := c.status
	strm := c.endLocked(nil)
	c.publishLocked()
	id := c.sessionID
	c.mu.Unlock()

	c.logger.Info("conversation stopped", "session_id", id, "previous_status", prev)
	if strm == nil {
		return nil
	}
	if err := strm.Close(); err != nil {
		return &StreamError{Op: "close", Err: err}
	}
	return nil
}

// ClearTranscript drops every transcript entry. Allowed in any state.
func (c *Controller) ClearTranscript() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) == 0 {
		return
	}
	c.entries = nil
	c.publishLocked()
}

// Transcript returns a copy of the transcript in arrival order.
func (c *Controller) Transcript() []transcript.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]transcript.Entry(nil), c.entries...)
}

// Export renders the current transcript. It does not touch controller state.
func (c *Controller) Export() []byte {
	return transcript.Export(c.Transcript())
}

// ExportToDir writes the current transcript to a timestamped file in dir.
func (c *Controller) ExportToDir(dir string) (string, error) {
	return transcript.WriteFile(dir, c.Transcript(), c.now())
}

func (c *Controller) isCurrent(token uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token == token
}

// abortStart returns a failed start to disconnected unless Stop already did.
func (c *Controller) abortStart(token uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != token {
		return
	}
	c.endLocked(err)
	c.publishLocked()
}

// endLocked retires the current session and returns its stream for the
// caller to close outside the lock.
func (c *Controller) endLocked(err error) Stream {
	c.token++
	var strm Stream
	if c.current != nil {
		strm = c.current.stream
		c.current = nil
	}
	c.status = StatusDisconnected
	c.mode = ModeListening
	if err != nil {
		c.lastErr = err
	}
	return strm
}

func (c *Controller) consume(token uint64, strm Stream, logger *slog.Logger) {
	for event := range strm.Events() {
		if !c.apply(token, event, logger) {
			return
		}
	}

	c.mu.Lock()
	if c.token != token {
		c.mu.Unlock()
		return
	}
	c.endLocked(nil)
	c.publishLocked()
	c.mu.Unlock()

	logger.Info("conversation stream ended")
	_ = strm.Close()
}

// apply folds one event into controller state. It reports false once the
// session is no longer current and the consumer should stop.
func (c *Controller) apply(token uint64, event stream.Event, logger *slog.Logger) bool {
	c.mu.Lock()
	if c.token != token {
		c.mu.Unlock()
		logger.Debug("dropping event from superseded session", "event", fmt.Sprintf("%T", event))
		return false
	}

	var toClose Stream
	ended := false
	switch e := event.(type) {
	case stream.MessageEvent:
		c.entries = append(c.entries, transcript.Entry{
			Source:     e.Source,
			Text:       e.Text,
			CapturedAt: c.now(),
		})
	case stream.ModeChangeEvent:
		mode := ModeListening
		if e.Mode == stream.ModeSpeaking {
			mode = ModeSpeaking
		}
		if mode == c.mode {
			c.mu.Unlock()
			return true
		}
		c.mode = mode
	case stream.StatusChangeEvent:
		if e.Status == stream.StatusConnected {
			if id := strings.TrimSpace(e.ConversationID); id != "" {
				c.conversationID = id
			}
			c.status = StatusConnected
		} else {
			toClose = c.endLocked(nil)
			ended = true
		}
	case stream.ErrorEvent:
		toClose = c.endLocked(&StreamError{Op: "read", Err: e.Err})
		ended = true
		logger.Warn("conversation stream error", "error", e.Err)
	default:
		c.mu.Unlock()
		logger.Debug("ignoring unknown event", "event", fmt.Sprintf("%T", event))
		return true
	}
	c.publishLocked()
	c.mu.Unlock()

	if ended {
		logger.Info("conversation disconnected")
		if toClose != nil {
			_ = toClose.Close()
		}
		return false
	}
	return true
}
