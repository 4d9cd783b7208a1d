package apierror

import (
	"context"
	"errors"
	"net/http"

	"github.com/vango-go/vai-convai/pkg/convai/credential"
	"github.com/vango-go/vai-convai/pkg/core"
)

type Envelope struct {
	Error *core.Error `json:"error"`
}

func FromError(err error, requestID string) (*core.Error, int) {
	if err == nil {
		return nil, http.StatusOK
	}

	// Context timeouts/cancellation.
	if errors.Is(err, context.DeadlineExceeded) {
		return &core.Error{
			Type:      core.ErrAPI,
			Message:   "request timeout",
			RequestID: requestID,
		}, http.StatusGatewayTimeout
	}
	if errors.Is(err, context.Canceled) {
		return &core.Error{
			Type:      core.ErrAPI,
			Message:   "request cancelled",
			Code:      "cancelled",
			RequestID: requestID,
		}, http.StatusRequestTimeout
	}

	// Already canonical.
	var coreErr *core.Error
	if errors.As(err, &coreErr) && coreErr != nil {
		out := *coreErr
		out.RequestID = requestID
		return &out, statusFromType(coreErr.Type)
	}

	if errors.Is(err, credential.ErrMissingAgentID) {
		return &core.Error{
			Type:      core.ErrInvalidRequest,
			Message:   "agent_id is required",
			Param:     "agent_id",
			RequestID: requestID,
		}, http.StatusBadRequest
	}
	if errors.Is(err, credential.ErrEmptySignedURL) {
		return &core.Error{
			Type:      core.ErrUpstream,
			Message:   err.Error(),
			Code:      "empty_signed_url",
			RequestID: requestID,
		}, http.StatusBadGateway
	}

	// Upstream (ElevenLabs) failures keep the status and body detail so the
	// client can show the same message the service produced.
	var credErr *credential.Error
	if errors.As(err, &credErr) && credErr != nil {
		out := core.NewUpstreamError(credErr.StatusCode, credErr)
		out.RequestID = requestID
		if credErr.StatusCode == 0 {
			out.Code = "upstream_unreachable"
		}
		return out, upstreamHTTPStatus(credErr.StatusCode)
	}

	// Unknown errors: treat as internal API error (do not leak details by default).
	return &core.Error{
		Type:      core.ErrAPI,
		Message:   "internal error",
		RequestID: requestID,
	}, http.StatusInternalServerError
}

// upstreamHTTPStatus maps an upstream status to the gateway's own. Client
// errors that describe the caller's request pass through; everything else is
// a bad gateway.
func upstreamHTTPStatus(status int) int {
	switch status {
	case http.StatusNotFound, http.StatusUnprocessableEntity, http.StatusTooManyRequests:
		return status
	default:
		return http.StatusBadGateway
	}
}

func statusFromType(t core.ErrorType) int {
	switch t {
	case core.ErrInvalidRequest:
		return http.StatusBadRequest
	case core.ErrAuthentication:
		return http.StatusUnauthorized
	case core.ErrPermission:
		return http.StatusForbidden
	case core.ErrNotFound:
		return http.StatusNotFound
	case core.ErrRateLimit:
		return http.StatusTooManyRequests
	case core.ErrUpstream:
		return http.StatusBadGateway
	case core.ErrAPI:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
