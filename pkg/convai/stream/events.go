package stream

import (
	"github.com/vango-go/vai-convai/pkg/convai/transcript"
)

// Status and mode literals carried by StatusChangeEvent and ModeChangeEvent.
// Consumers only distinguish StatusConnected and ModeSpeaking; every other
// value means disconnected and listening respectively.
const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"

	ModeSpeaking  = "speaking"
	ModeListening = "listening"
)

// Event is one inbound session event. The concrete type is one of
// MessageEvent, ErrorEvent, StatusChangeEvent or ModeChangeEvent.
type Event interface {
	eventType() string
}

// MessageEvent is a finished transcript turn.
type MessageEvent struct {
	Source transcript.Source
	Text   string
}

func (e MessageEvent) eventType() string { return "message" }

// ErrorEvent reports a failure on the stream. The stream is unusable after it.
type ErrorEvent struct {
	Err error
}

func (e ErrorEvent) eventType() string { return "error" }

type StatusChangeEvent struct {
	Status         string
	ConversationID string
}

func (e StatusChangeEvent) eventType() string { return "status_change" }

type ModeChangeEvent struct {
	Mode string
}

func (e ModeChangeEvent) eventType() string { return "mode_change" }

// RemoteError is an error frame sent by the conversation service.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	if e == nil {
		return ""
	}
	return "conversation service error: " + e.Message
}
