package handlers

import (
	"net/http"
	"strconv"

	"github.com/vango-go/vai-convai/pkg/gateway/config"
	"github.com/vango-go/vai-convai/pkg/gateway/lifecycle"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// ReadyHandler reports configuration problems and shutdown draining. It never
// calls the upstream service.
type ReadyHandler struct {
	Config    config.Config
	Lifecycle *lifecycle.Lifecycle
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK                    bool     `json:"ok"`
		Draining              bool     `json:"draining,omitempty"`
		AuthMode              string   `json:"auth_mode"`
		DefaultAgent          bool     `json:"default_agent_configured"`
		AgentAllowlistEnabled bool     `json:"agent_allowlist_enabled"`
		LimitsEnabled         bool     `json:"limits_enabled"`
		Issues                []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	switch h.Config.AuthMode {
	case config.AuthModeRequired, config.AuthModeOptional, config.AuthModeDisabled:
	default:
		issues = append(issues, "invalid auth_mode")
	}
	if h.Config.AuthMode == config.AuthModeRequired && len(h.Config.APIKeys) == 0 {
		issues = append(issues, "auth_mode=required but no api keys configured")
	}
	if h.Config.ElevenLabsAPIKey == "" {
		issues = append(issues, "elevenlabs api key not configured")
	}
	if h.Config.DefaultAgentID != "" && !h.Config.AgentAllowed(h.Config.DefaultAgentID) {
		issues = append(issues, "default agent is not in the agent allowlist")
	}
	if h.Config.ReadHeaderTimeout <= 0 || h.Config.ReadTimeout <= 0 || h.Config.HandlerTimeout <= 0 {
		issues = append(issues, "timeouts must be > 0")
	}
	if h.Config.UpstreamConnectTimeout <= 0 || h.Config.UpstreamResponseHeaderTimeout <= 0 {
		issues = append(issues, "upstream timeouts must be > 0")
	}

	draining := h.Lifecycle.IsDraining()
	limitsEnabled := (h.Config.LimitRPS > 0 && h.Config.LimitBurst > 0) || h.Config.LimitMaxConcurrentRequests > 0

	ok := len(issues) == 0 && !draining
	status := http.StatusOK
	switch {
	case len(issues) > 0:
		status = http.StatusInternalServerError
	case draining:
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", itoa(1))
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, status, readyResp{
		OK:                    ok,
		Draining:              draining,
		AuthMode:              string(h.Config.AuthMode),
		DefaultAgent:          h.Config.DefaultAgentID != "",
		AgentAllowlistEnabled: len(h.Config.AgentAllowlist) > 0,
		LimitsEnabled:         limitsEnabled,
		Issues:                issues,
	})
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
