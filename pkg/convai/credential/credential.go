// Package credential exchanges a server-held ElevenLabs API key for a
// single-use signed conversation URL.
//
// It must only run inside a trusted boundary (the gateway process); the
// session controller never sees the key.
package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// DefaultBaseURL is the ElevenLabs Conversational AI control base.
const DefaultBaseURL = "https://api.elevenlabs.io/v1/convai"

const signedURLPath = "/conversation/get_signed_url"

// Client requests signed URLs. It keeps no state between calls.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func New(apiKey string) *Client {
	return NewWithClient(apiKey, nil)
}

func NewWithClient(apiKey string, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{}
	}
	return &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    DefaultBaseURL,
		httpClient: client,
	}
}

// WithBaseURL overrides the control base (tests, regional endpoints).
func (c *Client) WithBaseURL(base string) *Client {
	if c == nil {
		return c
	}
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base != "" {
		c.baseURL = base
	}
	return c
}

type signedURLResponse struct {
	SignedURL string `json:"signed_url"`
}

// RequestSignedURL performs exactly one request against the live endpoint.
// Responses are never cached and failures are never retried here.
func (c *Client) RequestSignedURL(ctx context.Context, agentID string) (string, error) {
	if c == nil || c.apiKey == "" {
		return "", ErrMissingAPIKey
	}
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return "", ErrMissingAgentID
	}

	endpoint, err := url.Parse(c.baseURL + signedURLPath)
	if err != nil {
		return "", fmt.Errorf("invalid credential base url: %w", err)
	}
	q := endpoint.Query()
	q.Set("agent_id", agentID)
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build signed url request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-store")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &Error{Err: err}
	}
	defer resp.Body.Close()

	return DecodeSignedURLResponse(resp)
}

// DecodeSignedURLResponse turns a signed URL response into the URL string or
// a typed error. It is shared with the gateway client in the SDK, whose
// endpoint answers with the same body shape.
func DecodeSignedURLResponse(resp *http.Response) (string, error) {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", ErrorFromResponse(resp)
	}

	var body signedURLResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBodyBytes)).Decode(&body); err != nil {
		return "", &Error{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode signed url response: %w", err)}
	}
	signed := strings.TrimSpace(body.SignedURL)
	if signed == "" {
		return "", ErrEmptySignedURL
	}
	return signed, nil
}
