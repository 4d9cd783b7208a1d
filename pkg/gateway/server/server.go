package server

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/vango-go/vai-convai/pkg/convai/credential"
	"github.com/vango-go/vai-convai/pkg/gateway/config"
	"github.com/vango-go/vai-convai/pkg/gateway/handlers"
	"github.com/vango-go/vai-convai/pkg/gateway/lifecycle"
	"github.com/vango-go/vai-convai/pkg/gateway/metrics"
	"github.com/vango-go/vai-convai/pkg/gateway/mw"
	"github.com/vango-go/vai-convai/pkg/gateway/ratelimit"
)

const signedURLRoute = "/v1/convai/signed-url"

type Server struct {
	cfg       config.Config
	logger    *slog.Logger
	mux       *http.ServeMux
	lifecycle *lifecycle.Lifecycle

	credentials handlers.SignedURLSource
	limiter     *ratelimit.Limiter
	metrics     *metrics.Metrics
}

type Option func(*Server)

// WithCredentials replaces the ElevenLabs client (tests, alternate upstreams).
func WithCredentials(src handlers.SignedURLSource) Option {
	return func(s *Server) { s.credentials = src }
}

// WithMetrics supplies the registry served on /metrics. A Metrics value
// must back at most one Server.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLifecycle shares draining state with the process shutdown path.
func WithLifecycle(lc *lifecycle.Lifecycle) Option {
	return func(s *Server) { s.lifecycle = lc }
}

func New(cfg config.Config, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		mux:       http.NewServeMux(),
		lifecycle: &lifecycle.Lifecycle{},
		limiter: ratelimit.New(ratelimit.Config{
			RPS:                   cfg.LimitRPS,
			Burst:                 cfg.LimitBurst,
			MaxConcurrentRequests: cfg.LimitMaxConcurrentRequests,
		}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.credentials == nil {
		s.credentials = credential.NewWithClient(cfg.ElevenLabsAPIKey, newUpstreamClient(cfg)).
			WithBaseURL(cfg.ElevenLabsBaseURL)
	}
	if s.metrics == nil {
		s.metrics = metrics.New("")
	}
	s.metrics.RegisterDraining("", s.lifecycle.IsDraining)

	s.routes()
	return s
}

func newUpstreamClient(cfg config.Config) *http.Client {
	connectTimeout := cfg.UpstreamConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: connectTimeout,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          20,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   connectTimeout,
			ExpectContinueTimeout: 1 * time.Second,
			ResponseHeaderTimeout: cfg.UpstreamResponseHeaderTimeout,
		},
	}
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg, Lifecycle: s.lifecycle})

	s.mux.Handle("/metrics", s.metrics.Handler())

	s.mux.Handle(signedURLRoute, s.metrics.Instrument("signed_url", handlers.SignedURLHandler{
		Config:      s.cfg,
		Credentials: s.credentials,
		Logger:      s.logger,
		Metrics:     s.metrics,
	}))
	s.mux.Handle("/", handlers.NotFoundHandler{})
}

// Lifecycle returns the draining state used by /readyz.
func (s *Server) Lifecycle() *lifecycle.Lifecycle {
	return s.lifecycle
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.RateLimit(s.cfg, s.limiter, h)
	h = mw.APIVersion(h)
	h = mw.Auth(s.cfg, h)
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}
