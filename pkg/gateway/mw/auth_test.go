package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vango-go/vai-convai/pkg/gateway/auth"
	"github.com/vango-go/vai-convai/pkg/gateway/config"
)

func authTestConfig(mode config.AuthMode) config.Config {
	return config.Config{AuthMode: mode, APIKeys: map[string]struct{}{"cvg_sk_test": {}}}
}

func TestAuth_RequiredRejectsMissingBearer(t *testing.T) {
	h := Auth(authTestConfig(config.AuthModeRequired), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/convai/signed-url", nil)
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("WWW-Authenticate") == "" {
		t.Fatalf("expected WWW-Authenticate challenge")
	}
}

func TestAuth_RejectsUnknownKeyInAnyMode(t *testing.T) {
	for _, mode := range []config.AuthMode{config.AuthModeRequired, config.AuthModeOptional} {
		h := Auth(authTestConfig(mode), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatalf("next called for invalid key in mode %s", mode)
		}))
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/v1/convai/signed-url", nil)
		req.Header.Set("Authorization", "Bearer cvg_sk_wrong")
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("mode=%s status=%d", mode, rr.Code)
		}
	}
}

func TestAuth_ValidKeyAttachesPrincipal(t *testing.T) {
	var got *auth.Principal
	h := Auth(authTestConfig(config.AuthModeRequired), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = auth.PrincipalFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/convai/signed-url", nil)
	req.Header.Set("Authorization", "Bearer cvg_sk_test")
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if got == nil || got.APIKey != "cvg_sk_test" {
		t.Fatalf("principal=%+v", got)
	}
}

func TestAuth_OptionalAllowsAnonymous(t *testing.T) {
	called := false
	h := Auth(authTestConfig(config.AuthModeOptional), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if _, ok := auth.PrincipalFrom(r.Context()); ok {
			t.Fatalf("anonymous request should carry no principal")
		}
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/convai/signed-url", nil))
	if !called {
		t.Fatalf("next not called")
	}
}

func TestAuth_HealthProbesBypass(t *testing.T) {
	h := Auth(authTestConfig(config.AuthModeRequired), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusNoContent {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
}

func TestAuth_InvalidModeIs500(t *testing.T) {
	h := Auth(config.Config{AuthMode: "bogus"}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next should not be called")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/convai/signed-url", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rr.Code)
	}
}
