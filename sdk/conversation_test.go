package vai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/vai-convai/pkg/gateway/config"
	"github.com/vango-go/vai-convai/pkg/gateway/server"
)

type fixedSource struct {
	url string
}

func (s fixedSource) RequestSignedURL(ctx context.Context, agentID string) (string, error) {
	return s.url + "&agent_id=" + agentID, nil
}

// newAgentServer plays the conversation service: it records the initiation
// frame, sends frames, then holds the socket until the client leaves.
func newAgentServer(t *testing.T, initiation chan<- map[string]any, frames []map[string]any) string {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("conversation_signature") == "" {
			http.Error(w, "missing signature", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var first map[string]any
		if err := conn.ReadJSON(&first); err != nil {
			return
		}
		initiation <- first
		for _, frame := range frames {
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/convai/conversation?conversation_signature=sig"
}

func newGateway(t *testing.T, signedURL string) string {
	t.Helper()

	cfg := config.Config{
		AuthMode:                      config.AuthModeRequired,
		APIKeys:                       map[string]struct{}{"cvg_sk_test": {}},
		ElevenLabsAPIKey:              "xi_test",
		ElevenLabsBaseURL:             "https://api.elevenlabs.io/v1/convai",
		AgentAllowlist:                map[string]struct{}{},
		CORSAllowedOrigins:            map[string]struct{}{},
		ReadHeaderTimeout:             time.Second,
		ReadTimeout:                   time.Second,
		WriteTimeout:                  2 * time.Second,
		HandlerTimeout:                time.Second,
		UpstreamConnectTimeout:        time.Second,
		UpstreamResponseHeaderTimeout: time.Second,
	}
	gw := server.New(cfg, discardLogger(), server.WithCredentials(fixedSource{url: signedURL}))
	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(srv.Close)
	return srv.URL
}

func waitForSnapshot(t *testing.T, conv *Conversation, cond func(Snapshot) bool) Snapshot {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for {
		snap := conv.Snapshot()
		if cond(snap) {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met; last snapshot %+v", snap)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConversation_EndToEndThroughGateway(t *testing.T) {
	initiation := make(chan map[string]any, 1)
	signedURL := newAgentServer(t, initiation, []map[string]any{
		{"type": "conversation_initiation_metadata", "conversation_initiation_metadata_event": map[string]any{"conversation_id": "conv_e2e"}},
		{"type": "user_transcript", "user_transcription_event": map[string]any{"user_transcript": "hi"}},
		{"type": "audio", "audio_event": map[string]any{"audio_base_64": "AAAA", "event_id": 1}},
		{"type": "agent_response", "agent_response_event": map[string]any{"agent_response": "hello"}},
	})
	gatewayURL := newGateway(t, signedURL)

	client := NewClient(WithBaseURL(gatewayURL), WithAPIKey("cvg_sk_test"), WithLogger(discardLogger()))
	conv, err := client.NewConversation("agent_1", WithDynamicVariables(map[string]any{"user_name": "Ada"}))
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := conv.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := conv.Snapshot().Status; got != StatusConnected {
		t.Fatalf("status after Start=%q", got)
	}

	select {
	case first := <-initiation:
		if first["type"] != "conversation_initiation_client_data" {
			t.Fatalf("initiation type=%v", first["type"])
		}
		vars, _ := first["dynamic_variables"].(map[string]any)
		if vars["user_name"] != "Ada" {
			t.Fatalf("dynamic_variables=%v", first["dynamic_variables"])
		}
	case <-time.After(3 * time.Second):
		t.Fatal("initiation frame not received")
	}

	snap := waitForSnapshot(t, conv, func(s Snapshot) bool { return s.MessageCount == 2 })
	if snap.ConversationID != "conv_e2e" {
		t.Fatalf("conversation_id=%q", snap.ConversationID)
	}
	if !snap.Speaking() {
		t.Fatalf("mode=%q, want speaking after agent audio", snap.Mode)
	}
	if got := string(conv.Export()); got != "User: hi\n\nAI: hello" {
		t.Fatalf("export=%q", got)
	}

	if err := conv.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	snap = conv.Snapshot()
	if snap.Status != StatusDisconnected || snap.Mode != ModeListening || snap.Active {
		t.Fatalf("after Stop: %+v", snap)
	}
	if snap.MessageCount != 2 {
		t.Fatalf("transcript dropped on Stop: %d", snap.MessageCount)
	}
}

func TestConversation_GatewayRejectionLeavesDisconnected(t *testing.T) {
	gatewayURL := newGateway(t, "ws://127.0.0.1:1/unused?conversation_signature=sig")

	client := NewClient(WithBaseURL(gatewayURL), WithAPIKey("wrong"), WithLogger(discardLogger()))
	conv, err := client.NewConversation("agent_1")
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}

	err = conv.Start(context.Background())
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Type != ErrAuthentication {
		t.Fatalf("err=%v, want authentication error", err)
	}
	if snap := conv.Snapshot(); snap.Status != StatusDisconnected || snap.Active {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestNewConversation_RequiresAgent(t *testing.T) {
	if _, err := NewClient().NewConversation("  "); err == nil {
		t.Fatal("expected error for empty agent id")
	}
}
