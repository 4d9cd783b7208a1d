package stream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/vai-convai/pkg/convai/transcript"
)

func newConversationTestServer(t *testing.T, handler func(conn *websocket.Conn)) (string, func()) {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/convai/conversation" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("conversation_signature") == "" {
			http.Error(w, "missing signature", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handler(conn)
	}))

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/convai/conversation?agent_id=agent_1&conversation_signature=sig"
	return wsURL, server.Close
}

func collectEvents(t *testing.T, conn *Conn) []Event {
	t.Helper()

	var out []Event
	timeout := time.After(3 * time.Second)
	for {
		select {
		case event, ok := <-conn.Events():
			if !ok {
				return out
			}
			out = append(out, event)
		case <-timeout:
			t.Fatalf("timed out waiting for stream to end; got %d events", len(out))
		}
	}
}

func TestOpen_MapsFramesToEventsInOrder(t *testing.T) {
	t.Parallel()

	initiation := make(chan map[string]any, 1)
	pong := make(chan map[string]any, 1)
	serverURL, closeServer := newConversationTestServer(t, func(conn *websocket.Conn) {
		defer conn.Close()

		var first map[string]any
		if err := conn.ReadJSON(&first); err != nil {
			return
		}
		initiation <- first

		frames := []map[string]any{
			{"type": "conversation_initiation_metadata", "conversation_initiation_metadata_event": map[string]any{"conversation_id": "conv_1"}},
			{"type": "audio", "audio_event": map[string]any{"audio_base_64": "AAAA", "event_id": 1}},
			{"type": "audio", "audio_event": map[string]any{"audio_base_64": "AAAA", "event_id": 2}},
			{"type": "agent_response", "agent_response_event": map[string]any{"agent_response": "Hello!"}},
			{"type": "vad_score", "vad_score_event": map[string]any{"vad_score": 0.5}},
			{"type": "interruption", "interruption_event": map[string]any{"event_id": 2}},
			{"type": "audio", "audio_event": map[string]any{"audio_base_64": "AAAA", "event_id": 3}},
			{"type": "user_transcript", "user_transcription_event": map[string]any{"user_transcript": "hi there"}},
			{"type": "ping", "ping_event": map[string]any{"event_id": 7, "ping_ms": 20}},
		}
		for _, frame := range frames {
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		}

		var reply map[string]any
		if err := conn.ReadJSON(&reply); err == nil {
			pong <- reply
		}
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
	})
	defer closeServer()

	conn, err := (&Dialer{}).Open(context.Background(), serverURL)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer conn.Close()

	got := collectEvents(t, conn)
	want := []Event{
		StatusChangeEvent{Status: StatusConnected, ConversationID: "conv_1"},
		ModeChangeEvent{Mode: ModeSpeaking},
		MessageEvent{Source: transcript.SourceAgent, Text: "Hello!"},
		ModeChangeEvent{Mode: ModeListening},
		ModeChangeEvent{Mode: ModeSpeaking},
		ModeChangeEvent{Mode: ModeListening},
		MessageEvent{Source: transcript.SourceUser, Text: "hi there"},
		StatusChangeEvent{Status: StatusDisconnected},
	}
	if len(got) != len(want) {
		t.Fatalf("events=%#v, want %#v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event[%d]=%#v, want %#v", i, got[i], want[i])
		}
	}
	if err := conn.Err(); err != nil {
		t.Fatalf("Err()=%v, want nil after normal close", err)
	}

	select {
	case first := <-initiation:
		if first["type"] != "conversation_initiation_client_data" {
			t.Fatalf("initiation frame=%v", first)
		}
	default:
		t.Fatalf("server did not receive initiation frame")
	}
	select {
	case reply := <-pong:
		if reply["type"] != "pong" || reply["event_id"] != float64(7) {
			t.Fatalf("pong frame=%v", reply)
		}
	default:
		t.Fatalf("server did not receive pong")
	}
}

func TestOpen_ServerErrorFrameSurfacesAsErrorEvent(t *testing.T) {
	t.Parallel()

	serverURL, closeServer := newConversationTestServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		var first map[string]any
		_ = conn.ReadJSON(&first)
		_ = conn.WriteJSON(map[string]any{"type": "error", "message": "agent not found", "code": "not_found"})
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
	})
	defer closeServer()

	conn, err := (&Dialer{}).Open(context.Background(), serverURL)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer conn.Close()

	got := collectEvents(t, conn)
	if len(got) == 0 {
		t.Fatalf("expected events")
	}
	errEvent, ok := got[0].(ErrorEvent)
	if !ok {
		t.Fatalf("first event=%#v, want ErrorEvent", got[0])
	}
	var remote *RemoteError
	if !errors.As(errEvent.Err, &remote) {
		t.Fatalf("err=%v, want *RemoteError", errEvent.Err)
	}
	if remote.Message != "agent not found (code: not_found)" {
		t.Fatalf("message=%q", remote.Message)
	}
}

func TestOpen_AbnormalCloseSurfacesAsErrorEvent(t *testing.T) {
	t.Parallel()

	serverURL, closeServer := newConversationTestServer(t, func(conn *websocket.Conn) {
		var first map[string]any
		_ = conn.ReadJSON(&first)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "boom"), time.Now().Add(2*time.Second))
		_ = conn.Close()
	})
	defer closeServer()

	conn, err := (&Dialer{}).Open(context.Background(), serverURL)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer conn.Close()

	got := collectEvents(t, conn)
	if len(got) != 1 {
		t.Fatalf("events=%#v, want exactly one error", got)
	}
	if _, ok := got[0].(ErrorEvent); !ok {
		t.Fatalf("event=%#v, want ErrorEvent", got[0])
	}
	if conn.Err() == nil {
		t.Fatalf("Err()=nil, want terminal error")
	}
}

func TestOpen_MalformedFrameEndsStream(t *testing.T) {
	t.Parallel()

	serverURL, closeServer := newConversationTestServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		var first map[string]any
		_ = conn.ReadJSON(&first)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"no_type":true}`))
		time.Sleep(200 * time.Millisecond)
	})
	defer closeServer()

	conn, err := (&Dialer{}).Open(context.Background(), serverURL)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer conn.Close()

	got := collectEvents(t, conn)
	if len(got) != 1 {
		t.Fatalf("events=%#v, want one error", got)
	}
	if _, ok := got[0].(ErrorEvent); !ok {
		t.Fatalf("event=%#v, want ErrorEvent", got[0])
	}
}

func TestConn_CloseEndsEventsWithoutFurtherDelivery(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	serverURL, closeServer := newConversationTestServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		var first map[string]any
		_ = conn.ReadJSON(&first)
		<-release
	})
	defer closeServer()
	defer close(release)

	conn, err := (&Dialer{}).Open(context.Background(), serverURL)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if got := collectEvents(t, conn); len(got) != 0 {
		t.Fatalf("events after local close=%#v", got)
	}
	if err := conn.Err(); err != nil {
		t.Fatalf("Err()=%v, want nil after local close", err)
	}
	// Idempotent.
	if err := conn.Close(); err != nil {
		t.Fatalf("second Close error: %v", err)
	}
}

func TestOpen_DialFailureRedactsSignature(t *testing.T) {
	t.Parallel()

	serverURL, closeServer := newConversationTestServer(t, func(conn *websocket.Conn) { _ = conn.Close() })
	defer closeServer()

	badURL := strings.Replace(serverURL, "/v1/convai/conversation", "/nope", 1)
	_, err := (&Dialer{}).Open(context.Background(), badURL)
	if err == nil {
		t.Fatalf("expected dial error")
	}
	if strings.Contains(err.Error(), "conversation_signature") {
		t.Fatalf("error leaks signed query: %v", err)
	}
	if !strings.Contains(err.Error(), "status 404") {
		t.Fatalf("error=%v, want status 404", err)
	}
}

func TestWebsocketURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "wss://api.elevenlabs.io/v1/convai/conversation?x=1", want: "wss://api.elevenlabs.io/v1/convai/conversation?x=1"},
		{in: "https://api.elevenlabs.io/c", want: "wss://api.elevenlabs.io/c"},
		{in: "http://127.0.0.1:9000/c", want: "ws://127.0.0.1:9000/c"},
		{in: "", wantErr: true},
		{in: "ftp://example.test/c", wantErr: true},
	}
	for _, tt := range tests {
		got, err := websocketURL(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("websocketURL(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("websocketURL(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("websocketURL(%q)=%q, want %q", tt.in, got, tt.want)
		}
	}
}
