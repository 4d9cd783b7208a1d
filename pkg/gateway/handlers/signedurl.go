package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vango-go/vai-convai/pkg/convai/credential"
	"github.com/vango-go/vai-convai/pkg/core"
	"github.com/vango-go/vai-convai/pkg/gateway/apierror"
	"github.com/vango-go/vai-convai/pkg/gateway/config"
	"github.com/vango-go/vai-convai/pkg/gateway/metrics"
	"github.com/vango-go/vai-convai/pkg/gateway/mw"
)

const maxAgentIDLen = 128

// SignedURLSource mints signed conversation URLs. *credential.Client is the
// production implementation.
type SignedURLSource interface {
	RequestSignedURL(ctx context.Context, agentID string) (string, error)
}

// SignedURLResponse is the body of a successful exchange.
type SignedURLResponse struct {
	SignedURL string `json:"signed_url"`
}

// SignedURLHandler serves GET /v1/convai/signed-url?agent_id=. It is the only
// place the ElevenLabs key is used; callers receive just the signed URL.
type SignedURLHandler struct {
	Config      config.Config
	Credentials SignedURLSource
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

func (h SignedURLHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	agentID := strings.TrimSpace(r.URL.Query().Get("agent_id"))
	if agentID == "" {
		agentID = h.Config.DefaultAgentID
	}
	if coreErr := validateAgentID(agentID); coreErr != nil {
		h.Metrics.RecordSignedURL(metrics.OutcomeRejected, 0)
		writeCoreErrorJSON(w, reqID, coreErr, http.StatusBadRequest)
		return
	}
	if !h.Config.AgentAllowed(agentID) {
		h.Metrics.RecordSignedURL(metrics.OutcomeRejected, 0)
		writeCoreErrorJSON(w, reqID, core.NewPermissionError("agent_id is not allowed"), http.StatusForbidden)
		return
	}
	if h.Credentials == nil {
		writeCoreErrorJSON(w, reqID, core.NewAPIError("credential exchange is not configured"), http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	if h.Config.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Config.HandlerTimeout)
		defer cancel()
	}

	start := time.Now()
	signedURL, err := h.Credentials.RequestSignedURL(ctx, agentID)
	elapsed := time.Since(start)
	if err != nil {
		h.Metrics.RecordSignedURL(metrics.OutcomeUpstreamError, elapsed)
		coreErr, status := apierror.FromError(err, reqID)
		attrs := []any{
			"request_id", reqID,
			"agent_id", agentID,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"error", err,
		}
		var credErr *credential.Error
		if errors.As(err, &credErr) {
			attrs = append(attrs, "upstream_status", credErr.StatusCode)
		}
		logger.Warn("signed url exchange failed", attrs...)
		writeCoreErrorJSON(w, reqID, coreErr, status)
		return
	}

	h.Metrics.RecordSignedURL(metrics.OutcomeIssued, elapsed)
	logger.Info("signed url issued",
		"request_id", reqID,
		"agent_id", agentID,
		"duration_ms", elapsed.Milliseconds(),
	)
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, SignedURLResponse{SignedURL: signedURL})
}

func validateAgentID(agentID string) *core.Error {
	if agentID == "" {
		return core.NewInvalidRequestErrorWithParam("agent_id is required", "agent_id")
	}
	if len(agentID) > maxAgentIDLen {
		return core.NewInvalidRequestErrorWithParam("agent_id is too long", "agent_id")
	}
	for _, r := range agentID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return core.NewInvalidRequestErrorWithParam("agent_id contains invalid characters", "agent_id")
		}
	}
	return nil
}
