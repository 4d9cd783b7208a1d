package vai

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// WithBaseURL sets the convai-gateway base URL and enables gateway mode.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithAPIKey sets the gateway API key sent as a bearer token.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithElevenLabsKey enables direct mode. The key is sent to ElevenLabs only.
func WithElevenLabsKey(key string) ClientOption {
	return func(c *Client) {
		c.elevenLabsKey = key
	}
}

// WithElevenLabsBaseURL overrides the ElevenLabs control base in direct mode.
func WithElevenLabsBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.elevenLabsURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout bounds each signed URL request. It copies the current HTTP
// client rather than mutating a caller-owned one.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		clone := *c.httpClient
		clone.Timeout = d
		c.httpClient = &clone
	}
}

// WithWebSocketDialer sets the dialer used for conversation streams.
func WithWebSocketDialer(d *websocket.Dialer) ClientOption {
	return func(c *Client) {
		c.wsDialer = d
	}
}

// WithLogger sets the logger for the client and its conversations.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}
