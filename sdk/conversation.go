package vai

import (
	"errors"
	"log/slog"
	"time"

	"github.com/vango-go/vai-convai/pkg/convai/protocol"
	"github.com/vango-go/vai-convai/pkg/convai/session"
	"github.com/vango-go/vai-convai/pkg/convai/stream"
	"github.com/vango-go/vai-convai/pkg/convai/transcript"
)

type (
	Status   = session.Status
	Mode     = session.Mode
	Snapshot = session.Snapshot
	Entry    = transcript.Entry
	Source   = transcript.Source
)

const (
	StatusDisconnected = session.StatusDisconnected
	StatusConnecting   = session.StatusConnecting
	StatusConnected    = session.StatusConnected

	ModeListening = session.ModeListening
	ModeSpeaking  = session.ModeSpeaking

	SourceUser  = transcript.SourceUser
	SourceAgent = transcript.SourceAgent
)

// Conversation is a session controller bound to one agent. Start, Stop,
// Snapshot, Subscribe and the transcript methods come from the controller.
type Conversation struct {
	*session.Controller
}

// ConversationOption configures a Conversation.
type ConversationOption func(*conversationConfig)

type conversationConfig struct {
	initiation   protocol.ClientInitiation
	writeTimeout time.Duration
	logger       *slog.Logger
	now          func() time.Time
	transport    session.Transport
}

// WithDynamicVariables sets the dynamic variables sent in the initiation frame.
func WithDynamicVariables(vars map[string]any) ConversationOption {
	return func(c *conversationConfig) {
		c.initiation.DynamicVariables = vars
	}
}

// WithConfigOverride sets conversation_config_override in the initiation frame.
func WithConfigOverride(override map[string]any) ConversationOption {
	return func(c *conversationConfig) {
		c.initiation.ConversationConfigOverride = override
	}
}

// WithWriteTimeout bounds each outbound frame write.
func WithWriteTimeout(d time.Duration) ConversationOption {
	return func(c *conversationConfig) {
		c.writeTimeout = d
	}
}

// WithConversationLogger overrides the client logger for one conversation.
func WithConversationLogger(l *slog.Logger) ConversationOption {
	return func(c *conversationConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock sets the clock used to stamp transcript entries.
func WithClock(now func() time.Time) ConversationOption {
	return func(c *conversationConfig) {
		c.now = now
	}
}

// WithTransport replaces the websocket transport.
func WithTransport(t session.Transport) ConversationOption {
	return func(c *conversationConfig) {
		c.transport = t
	}
}

// NewConversation returns a disconnected conversation with agentID. Signed
// URLs are requested from the client on every Start.
func (c *Client) NewConversation(agentID string, opts ...ConversationOption) (*Conversation, error) {
	if c == nil {
		return nil, errors.New("vai: nil client")
	}
	cfg := conversationConfig{logger: c.logger}
	for _, opt := range opts {
		opt(&cfg)
	}
	transport := cfg.transport
	if transport == nil {
		transport = session.WebSocketTransport(&stream.Dialer{
			WS:           c.wsDialer,
			Initiation:   cfg.initiation,
			WriteTimeout: cfg.writeTimeout,
			Logger:       cfg.logger,
		})
	}

	ctrl, err := session.New(session.Options{
		AgentID:     agentID,
		Credentials: c,
		Transport:   transport,
		Logger:      cfg.logger,
		Now:         cfg.now,
	})
	if err != nil {
		return nil, err
	}
	return &Conversation{Controller: ctrl}, nil
}
