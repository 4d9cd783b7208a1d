// Package vai is the Go client for conversational voice sessions.
//
// In gateway mode (WithBaseURL) signed URLs are minted by a convai-gateway
// that holds the ElevenLabs key. In direct mode (WithElevenLabsKey) the client
// calls ElevenLabs itself; use that only inside a trusted process.
package vai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/vango-go/vai-convai/pkg/convai/credential"
)

const (
	signedURLPath     = "/v1/convai/signed-url"
	apiVersionHeader  = "X-Convai-Version"
	apiVersion        = "1"
	maxErrorBodyBytes = 64 << 10
)

// Client mints signed URLs and builds conversations.
type Client struct {
	baseURL       string
	apiKey        string
	elevenLabsKey string
	elevenLabsURL string
	httpClient    *http.Client
	wsDialer      *websocket.Dialer
	logger        *slog.Logger

	direct *credential.Client
}

// NewClient creates a client. Without WithBaseURL or WithElevenLabsKey every
// signed URL request fails with a configuration error.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: newDefaultHTTPClient(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.baseURL = strings.TrimRight(strings.TrimSpace(c.baseURL), "/")
	if c.elevenLabsKey != "" {
		c.direct = credential.NewWithClient(c.elevenLabsKey, c.httpClient)
		if c.elevenLabsURL != "" {
			c.direct.WithBaseURL(c.elevenLabsURL)
		}
	}
	return c
}

// IsGatewayMode reports whether signed URLs come from a gateway.
func (c *Client) IsGatewayMode() bool {
	return c.baseURL != ""
}

// RequestSignedURL returns a single-use conversation URL for agentID. Gateway
// failures are returned as *Error; network failures as *TransportError.
func (c *Client) RequestSignedURL(ctx context.Context, agentID string) (string, error) {
	if c.IsGatewayMode() {
		return c.requestViaGateway(ctx, agentID)
	}
	if c.direct != nil {
		return c.direct.RequestSignedURL(ctx, agentID)
	}
	return "", errors.New("vai: no signed url source configured; use WithBaseURL or WithElevenLabsKey")
}

func (c *Client) requestViaGateway(ctx context.Context, agentID string) (string, error) {
	endpoint, err := url.Parse(c.baseURL + signedURLPath)
	if err != nil {
		return "", fmt.Errorf("vai: invalid base url: %w", err)
	}
	if agentID = strings.TrimSpace(agentID); agentID != "" {
		q := endpoint.Query()
		q.Set("agent_id", agentID)
		endpoint.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return "", fmt.Errorf("vai: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-store")
	req.Header.Set(apiVersionHeader, apiVersion)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &TransportError{Op: http.MethodGet, URL: endpoint.String(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", decodeGatewayError(resp)
	}
	signed, err := credential.DecodeSignedURLResponse(resp)
	if err != nil {
		return "", err
	}
	c.logger.Debug("signed url received", "agent_id", agentID, "request_id", resp.Header.Get("X-Request-ID"))
	return signed, nil
}

// decodeGatewayError reads the canonical error envelope. Responses that do not
// carry one (a proxy in front of the gateway, say) fall back to the raw body.
func decodeGatewayError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	var env struct {
		Error *Error `json:"error"`
	}
	if err := json.Unmarshal(raw, &env); err == nil && env.Error != nil && env.Error.Type != "" {
		if env.Error.RequestID == "" {
			env.Error.RequestID = resp.Header.Get("X-Request-ID")
		}
		return env.Error
	}

	fallback := &credential.Error{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	return fallback
}
