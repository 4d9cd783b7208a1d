package core

import (
	"errors"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := &Error{
		Type:    ErrInvalidRequest,
		Message: "agent_id is required",
	}

	expected := "invalid_request_error: agent_id is required"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestError_WithCode(t *testing.T) {
	err := &Error{
		Type:    ErrRateLimit,
		Message: "too many requests",
		Code:    "rate_limit_exceeded",
	}

	expected := "rate_limit_error: too many requests (code: rate_limit_exceeded)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewRateLimitError(t *testing.T) {
	err := NewRateLimitError("rate limit exceeded", 60)
	if err.Type != ErrRateLimit {
		t.Errorf("Type = %v, want %v", err.Type, ErrRateLimit)
	}
	if err.RetryAfter == nil || *err.RetryAfter != 60 {
		t.Errorf("RetryAfter = %v, want 60", err.RetryAfter)
	}
}

func TestNewUpstreamError_UnwrapsCause(t *testing.T) {
	cause := errors.New("API request failed with status 401 - invalid key")
	err := NewUpstreamError(401, cause)

	if err.Type != ErrUpstream {
		t.Errorf("Type = %v, want %v", err.Type, ErrUpstream)
	}
	if err.Message != cause.Error() {
		t.Errorf("Message = %q, want %q", err.Message, cause.Error())
	}
	if !errors.Is(err, cause) {
		t.Errorf("errors.Is(err, cause) = false")
	}
}

func TestError_IsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want bool
	}{
		{"invalid request", NewInvalidRequestError("bad"), false},
		{"permission", NewPermissionError("agent not allowed"), false},
		{"rate limit", NewRateLimitError("slow down", 1), true},
		{"api", NewAPIError("internal"), true},
		{"upstream 5xx", NewUpstreamError(503, errors.New("unavailable")), true},
		{"upstream 429", NewUpstreamError(429, errors.New("busy")), true},
		{"upstream 401", NewUpstreamError(401, errors.New("denied")), false},
		{"upstream network", NewUpstreamError(0, errors.New("dial tcp: refused")), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.IsRetryable(); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}
