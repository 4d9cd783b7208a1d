package credential

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBodyBytes bounds how much of a failed response is kept for diagnostics.
const maxErrorBodyBytes = 64 << 10

var (
	// ErrEmptySignedURL is returned when the service answers 2xx but the
	// response carries no signed_url. Callers treat it like any other
	// credential failure.
	ErrEmptySignedURL = errors.New("failed to get signed url: response did not include signed_url")

	ErrMissingAgentID = errors.New("agent id is required")
	ErrMissingAPIKey  = errors.New("api key is required")
)

// Error is a failed signed URL request. StatusCode is zero when the request
// never produced a response (DNS, refused connection, TLS, cancelled context).
type Error struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case !e.succeeded() && e.Body != "":
		return fmt.Sprintf("API request failed with status %d - %s", e.StatusCode, e.Body)
	case !e.succeeded():
		return fmt.Sprintf("API request failed with status %d", e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("signed url request failed: %v", e.Err)
	default:
		return "signed url request failed"
	}
}

// succeeded reports whether the upstream answered 2xx or never answered.
func (e *Error) succeeded() bool {
	return e.StatusCode == 0 || (e.StatusCode >= 200 && e.StatusCode <= 299)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ErrorFromResponse folds a non-2xx response into an *Error. JSON bodies are
// re-encoded compactly; anything else is kept as trimmed text.
func ErrorFromResponse(resp *http.Response) *Error {
	out := &Error{StatusCode: resp.StatusCode}
	if resp.Body == nil {
		return out
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil {
		out.Err = fmt.Errorf("read error body: %w", err)
	}
	out.Body = renderErrorBody(raw)
	return out
}

func renderErrorBody(raw []byte) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ""
	}
	if json.Valid(trimmed) {
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err == nil {
			return buf.String()
		}
	}
	return strings.TrimSpace(string(trimmed))
}
