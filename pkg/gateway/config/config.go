package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vango-go/vai-convai/pkg/convai/credential"
)

type AuthMode string

const (
	AuthModeRequired AuthMode = "required"
	AuthModeOptional AuthMode = "optional"
	AuthModeDisabled AuthMode = "disabled"
)

type Config struct {
	Addr string

	AuthMode AuthMode
	APIKeys  map[string]struct{}

	// If true, client identity may be derived from proxy headers like X-Forwarded-For.
	// This should only be enabled when the gateway is deployed behind a trusted proxy/LB.
	TrustProxyHeaders bool

	// ElevenLabs credentials. The API key never leaves this process.
	ElevenLabsAPIKey  string
	ElevenLabsBaseURL string

	// DefaultAgentID is used when a caller omits agent_id.
	DefaultAgentID string
	// Optional allowlist of agent IDs callers may request signed URLs for.
	AgentAllowlist map[string]struct{}

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// In-memory limits (per principal).
	LimitRPS                   float64
	LimitBurst                 int
	LimitMaxConcurrentRequests int

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	HandlerTimeout      time.Duration
	ShutdownGracePeriod time.Duration

	// Upstream HTTP client defaults
	UpstreamConnectTimeout        time.Duration
	UpstreamResponseHeaderTimeout time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                          envOr("CONVAI_GATEWAY_ADDR", ":8080"),
		AuthMode:                      AuthMode(envOr("CONVAI_GATEWAY_AUTH_MODE", string(AuthModeRequired))),
		APIKeys:                       make(map[string]struct{}),
		TrustProxyHeaders:             envBoolOr("CONVAI_GATEWAY_TRUST_PROXY_HEADERS", false),
		ElevenLabsAPIKey:              strings.TrimSpace(os.Getenv("ELEVENLABS_API_KEY")),
		ElevenLabsBaseURL:             strings.TrimRight(envOr("ELEVENLABS_CONVAI_BASE_URL", credential.DefaultBaseURL), "/"),
		DefaultAgentID:                strings.TrimSpace(os.Getenv("ELEVENLABS_AGENT_ID")),
		AgentAllowlist:                make(map[string]struct{}),
		CORSAllowedOrigins:            make(map[string]struct{}),
		LimitRPS:                      envFloat64Or("CONVAI_GATEWAY_RATE_LIMIT_RPS", 1.0),
		LimitBurst:                    envIntOr("CONVAI_GATEWAY_RATE_LIMIT_BURST", 5),
		LimitMaxConcurrentRequests:    envIntOr("CONVAI_GATEWAY_MAX_CONCURRENT_REQUESTS", 4),
		ReadHeaderTimeout:             envDurationOr("CONVAI_GATEWAY_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:                   envDurationOr("CONVAI_GATEWAY_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:                  envDurationOr("CONVAI_GATEWAY_WRITE_TIMEOUT", 30*time.Second),
		HandlerTimeout:                envDurationOr("CONVAI_GATEWAY_HANDLER_TIMEOUT", 20*time.Second),
		ShutdownGracePeriod:           envDurationOr("CONVAI_GATEWAY_SHUTDOWN_GRACE_PERIOD", 15*time.Second),
		UpstreamConnectTimeout:        envDurationOr("CONVAI_GATEWAY_CONNECT_TIMEOUT", 5*time.Second),
		UpstreamResponseHeaderTimeout: envDurationOr("CONVAI_GATEWAY_RESPONSE_HEADER_TIMEOUT", 10*time.Second),
	}

	switch cfg.AuthMode {
	case AuthModeRequired, AuthModeOptional, AuthModeDisabled:
	default:
		return Config{}, fmt.Errorf("CONVAI_GATEWAY_AUTH_MODE must be one of required|optional|disabled")
	}

	for _, key := range splitCSV(os.Getenv("CONVAI_GATEWAY_API_KEYS")) {
		cfg.APIKeys[key] = struct{}{}
	}

	for _, agent := range splitCSV(os.Getenv("CONVAI_GATEWAY_AGENT_ALLOWLIST")) {
		cfg.AgentAllowlist[agent] = struct{}{}
	}

	for _, origin := range splitCSV(os.Getenv("CONVAI_GATEWAY_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.ElevenLabsAPIKey == "" {
		return Config{}, fmt.Errorf("ELEVENLABS_API_KEY must be set")
	}
	if u, err := url.Parse(cfg.ElevenLabsBaseURL); err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return Config{}, fmt.Errorf("ELEVENLABS_CONVAI_BASE_URL must be an absolute http(s) url")
	}
	if cfg.DefaultAgentID != "" && !cfg.AgentAllowed(cfg.DefaultAgentID) {
		return Config{}, fmt.Errorf("ELEVENLABS_AGENT_ID must be listed in CONVAI_GATEWAY_AGENT_ALLOWLIST")
	}

	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("CONVAI_GATEWAY_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("CONVAI_GATEWAY_READ_TIMEOUT must be > 0")
	}
	if cfg.WriteTimeout <= 0 {
		return Config{}, fmt.Errorf("CONVAI_GATEWAY_WRITE_TIMEOUT must be > 0")
	}
	if cfg.HandlerTimeout <= 0 {
		return Config{}, fmt.Errorf("CONVAI_GATEWAY_HANDLER_TIMEOUT must be > 0")
	}
	if cfg.HandlerTimeout > cfg.WriteTimeout {
		return Config{}, fmt.Errorf("CONVAI_GATEWAY_HANDLER_TIMEOUT must be <= CONVAI_GATEWAY_WRITE_TIMEOUT")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("CONVAI_GATEWAY_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if cfg.UpstreamConnectTimeout <= 0 {
		return Config{}, fmt.Errorf("CONVAI_GATEWAY_CONNECT_TIMEOUT must be > 0")
	}
	if cfg.UpstreamResponseHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("CONVAI_GATEWAY_RESPONSE_HEADER_TIMEOUT must be > 0")
	}

	if cfg.LimitRPS < 0 {
		return Config{}, fmt.Errorf("CONVAI_GATEWAY_RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.LimitBurst < 0 {
		return Config{}, fmt.Errorf("CONVAI_GATEWAY_RATE_LIMIT_BURST must be >= 0")
	}
	if cfg.LimitMaxConcurrentRequests < 0 {
		return Config{}, fmt.Errorf("CONVAI_GATEWAY_MAX_CONCURRENT_REQUESTS must be >= 0")
	}

	if cfg.AuthMode == AuthModeRequired && len(cfg.APIKeys) == 0 {
		return Config{}, fmt.Errorf("CONVAI_GATEWAY_API_KEYS must be set when CONVAI_GATEWAY_AUTH_MODE=required")
	}

	return cfg, nil
}

// AgentAllowed reports whether agentID may be exchanged. An empty allowlist
// allows every agent.
func (c Config) AgentAllowed(agentID string) bool {
	if len(c.AgentAllowlist) == 0 {
		return true
	}
	_, ok := c.AgentAllowlist[agentID]
	return ok
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
