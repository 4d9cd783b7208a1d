package mw

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vango-go/vai-convai/pkg/gateway/config"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, nil))
}

func parseSingleLogRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("expected log output")
	}
	if strings.Contains(line, "\n") {
		t.Fatalf("expected one log record, got %q", line)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		t.Fatalf("unmarshal log: %v", err)
	}
	return rec
}

func TestAccessLog_RecordsStatusAndRequestID(t *testing.T) {
	loggerOut := &bytes.Buffer{}
	h := AccessLog(newTestLogger(loggerOut), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/convai/signed-url?agent_id=a", nil).WithContext(WithRequestID(context.Background(), "req_test"))
	h.ServeHTTP(httptest.NewRecorder(), req)

	rec := parseSingleLogRecord(t, loggerOut)
	if rec["msg"] != "request" || rec["request_id"] != "req_test" {
		t.Fatalf("record=%v", rec)
	}
	if rec["status"] != float64(http.StatusTeapot) {
		t.Fatalf("status=%v, want first written status", rec["status"])
	}
	if rec["path"] != "/v1/convai/signed-url" {
		t.Fatalf("path=%v; query must not be logged", rec["path"])
	}
	if _, ok := rec["key_id"]; ok {
		t.Fatalf("anonymous request logged key_id")
	}
}

func TestAccessLog_ServerErrorsLogAtWarn(t *testing.T) {
	loggerOut := &bytes.Buffer{}
	h := AccessLog(newTestLogger(loggerOut), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if rec := parseSingleLogRecord(t, loggerOut); rec["level"] != "WARN" {
		t.Fatalf("level=%v", rec["level"])
	}
}

func TestAccessLog_IncludesKeyIDNotKey(t *testing.T) {
	loggerOut := &bytes.Buffer{}
	cfg := config.Config{AuthMode: config.AuthModeRequired, APIKeys: map[string]struct{}{"cvg_sk_secret": {}}}
	h := AccessLog(newTestLogger(loggerOut), Auth(cfg, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	req := httptest.NewRequest(http.MethodGet, "/v1/convai/signed-url", nil)
	req.Header.Set("Authorization", "Bearer cvg_sk_secret")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if strings.Contains(loggerOut.String(), "cvg_sk_secret") {
		t.Fatalf("api key leaked into access log: %s", loggerOut.String())
	}
	rec := parseSingleLogRecord(t, loggerOut)
	if id, _ := rec["key_id"].(string); !strings.HasPrefix(id, "key_") {
		t.Fatalf("key_id=%v", rec["key_id"])
	}
}

func TestAccessLog_NilLogger(t *testing.T) {
	h := AccessLog(nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Body.String() != "ok" {
		t.Fatalf("body=%q", rr.Body.String())
	}
}
