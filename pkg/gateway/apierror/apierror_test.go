package apierror

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/vango-go/vai-convai/pkg/convai/credential"
	"github.com/vango-go/vai-convai/pkg/core"
)

func TestFromError_ContextCanceled_Is408Cancelled(t *testing.T) {
	ce, status := FromError(context.Canceled, "req_test")
	if status != 408 {
		t.Fatalf("status=%d", status)
	}
	if ce.Type != core.ErrAPI {
		t.Fatalf("type=%q", ce.Type)
	}
	if ce.Code != "cancelled" {
		t.Fatalf("code=%q", ce.Code)
	}
	if ce.RequestID != "req_test" {
		t.Fatalf("request_id=%q", ce.RequestID)
	}
}

func TestFromError_DeadlineIs504(t *testing.T) {
	_, status := FromError(fmt.Errorf("exchange: %w", context.DeadlineExceeded), "req_test")
	if status != http.StatusGatewayTimeout {
		t.Fatalf("status=%d", status)
	}
}

func TestFromError_CoreErrorKeepsTypeAndSetsRequestID(t *testing.T) {
	ce, status := FromError(core.NewPermissionError("agent not allowed"), "req_x")
	if status != http.StatusForbidden || ce.Type != core.ErrPermission || ce.RequestID != "req_x" {
		t.Fatalf("ce=%+v status=%d", ce, status)
	}
}

func TestFromError_CredentialErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   core.ErrorType
		wantInMsg  string
		wantCode   string
		wantUp     int
	}{
		{
			name:       "upstream unauthorized",
			err:        &credential.Error{StatusCode: 401, Body: `{"detail":"invalid_api_key"}`},
			wantStatus: http.StatusBadGateway,
			wantType:   core.ErrUpstream,
			wantInMsg:  `API request failed with status 401 - {"detail":"invalid_api_key"}`,
			wantUp:     401,
		},
		{
			name:       "unknown agent passes through",
			err:        &credential.Error{StatusCode: 404, Body: "agent not found"},
			wantStatus: http.StatusNotFound,
			wantType:   core.ErrUpstream,
			wantInMsg:  "agent not found",
			wantUp:     404,
		},
		{
			name:       "network failure",
			err:        &credential.Error{Err: errors.New("dial tcp: connection refused")},
			wantStatus: http.StatusBadGateway,
			wantType:   core.ErrUpstream,
			wantInMsg:  "connection refused",
			wantCode:   "upstream_unreachable",
		},
		{
			name:       "empty signed url",
			err:        credential.ErrEmptySignedURL,
			wantStatus: http.StatusBadGateway,
			wantType:   core.ErrUpstream,
			wantInMsg:  "signed_url",
			wantCode:   "empty_signed_url",
		},
		{
			name:       "missing agent",
			err:        credential.ErrMissingAgentID,
			wantStatus: http.StatusBadRequest,
			wantType:   core.ErrInvalidRequest,
			wantInMsg:  "agent_id",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ce, status := FromError(tt.err, "req_cred")
			if status != tt.wantStatus {
				t.Fatalf("status=%d, want %d", status, tt.wantStatus)
			}
			if ce.Type != tt.wantType {
				t.Fatalf("type=%q, want %q", ce.Type, tt.wantType)
			}
			if !strings.Contains(ce.Message, tt.wantInMsg) {
				t.Fatalf("message=%q, want substring %q", ce.Message, tt.wantInMsg)
			}
			if ce.Code != tt.wantCode {
				t.Fatalf("code=%q, want %q", ce.Code, tt.wantCode)
			}
			if ce.UpstreamStatus != tt.wantUp {
				t.Fatalf("upstream_status=%d, want %d", ce.UpstreamStatus, tt.wantUp)
			}
			if ce.RequestID != "req_cred" {
				t.Fatalf("request_id=%q", ce.RequestID)
			}
		})
	}
}

func TestFromError_UnknownIsOpaque(t *testing.T) {
	ce, status := FromError(errors.New("db password is hunter2"), "req_test")
	if status != http.StatusInternalServerError {
		t.Fatalf("status=%d", status)
	}
	if strings.Contains(ce.Message, "hunter2") {
		t.Fatalf("leaked detail: %q", ce.Message)
	}
}
