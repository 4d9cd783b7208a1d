// Package protocol defines the JSON frames exchanged with the ElevenLabs
// Conversational AI websocket.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Inbound frame types.
const (
	TypeConversationInitiationMetadata = "conversation_initiation_metadata"
	TypeUserTranscript                 = "user_transcript"
	TypeAgentResponse                  = "agent_response"
	TypeAgentResponseCorrection        = "agent_response_correction"
	TypeAudio                          = "audio"
	TypeInterruption                   = "interruption"
	TypePing                           = "ping"
	TypeError                          = "error"
)

// Outbound frame types.
const (
	TypeConversationInitiationClientData = "conversation_initiation_client_data"
	TypePong                             = "pong"
)

type Envelope struct {
	Type string `json:"type"`
}

type ConversationInitiationMetadata struct {
	Type  string                              `json:"type"`
	Event ConversationInitiationMetadataEvent `json:"conversation_initiation_metadata_event"`
}

type ConversationInitiationMetadataEvent struct {
	ConversationID         string `json:"conversation_id"`
	AgentOutputAudioFormat string `json:"agent_output_audio_format,omitempty"`
	UserInputAudioFormat   string `json:"user_input_audio_format,omitempty"`
}

type UserTranscript struct {
	Type  string              `json:"type"`
	Event UserTranscriptEvent `json:"user_transcription_event"`
}

type UserTranscriptEvent struct {
	UserTranscript string `json:"user_transcript"`
}

type AgentResponse struct {
	Type  string             `json:"type"`
	Event AgentResponseEvent `json:"agent_response_event"`
}

type AgentResponseEvent struct {
	AgentResponse string `json:"agent_response"`
}

type AgentResponseCorrection struct {
	Type  string                       `json:"type"`
	Event AgentResponseCorrectionEvent `json:"agent_response_correction_event"`
}

type AgentResponseCorrectionEvent struct {
	OriginalAgentResponse  string `json:"original_agent_response"`
	CorrectedAgentResponse string `json:"corrected_agent_response"`
}

// Audio carries agent speech. The payload is not decoded; only its arrival
// matters to the session.
type Audio struct {
	Type  string     `json:"type"`
	Event AudioEvent `json:"audio_event"`
}

type AudioEvent struct {
	EventID int64 `json:"event_id"`
}

type Interruption struct {
	Type  string            `json:"type"`
	Event InterruptionEvent `json:"interruption_event"`
}

type InterruptionEvent struct {
	EventID int64  `json:"event_id,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

type Ping struct {
	Type  string    `json:"type"`
	Event PingEvent `json:"ping_event"`
}

type PingEvent struct {
	EventID int64 `json:"event_id"`
	PingMS  int64 `json:"ping_ms,omitempty"`
}

// ServerError is an error frame. The service has used both a flat
// {"message": ...} shape and a nested {"error_event": {...}} shape.
type ServerError struct {
	Type    string            `json:"type"`
	Message string            `json:"message,omitempty"`
	Code    string            `json:"code,omitempty"`
	Event   *ServerErrorEvent `json:"error_event,omitempty"`
}

type ServerErrorEvent struct {
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// Detail returns the most specific human readable error text in the frame.
func (e ServerError) Detail() string {
	msg := strings.TrimSpace(e.Message)
	code := strings.TrimSpace(e.Code)
	if e.Event != nil {
		if m := strings.TrimSpace(e.Event.Message); m != "" {
			msg = m
		}
		if c := strings.TrimSpace(e.Event.Code); c != "" {
			code = c
		}
	}
	switch {
	case msg != "" && code != "":
		return fmt.Sprintf("%s (code: %s)", msg, code)
	case msg != "":
		return msg
	case code != "":
		return code
	default:
		return "conversation error"
	}
}

// ClientInitiation is sent once right after the socket opens.
type ClientInitiation struct {
	Type                       string         `json:"type"`
	ConversationConfigOverride map[string]any `json:"conversation_config_override,omitempty"`
	DynamicVariables           map[string]any `json:"dynamic_variables,omitempty"`
}

type Pong struct {
	Type    string `json:"type"`
	EventID int64  `json:"event_id"`
}

// PeekType extracts the frame type without decoding the rest.
func PeekType(data []byte) (string, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("decode frame envelope: %w", err)
	}
	typ := strings.TrimSpace(env.Type)
	if typ == "" {
		return "", fmt.Errorf("frame missing type")
	}
	return typ, nil
}
