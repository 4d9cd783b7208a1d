package session

import (
	"context"

	"github.com/vango-go/vai-convai/pkg/convai/stream"
)

// SignedURLSource yields a single-use signed conversation URL. Implementations
// live in a trusted boundary (see pkg/convai/credential) or call into one
// (see the SDK gateway client).
type SignedURLSource interface {
	RequestSignedURL(ctx context.Context, agentID string) (string, error)
}

// Stream is an open bidirectional conversation stream. Events must be
// delivered in transport order and the channel closed when the stream ends.
type Stream interface {
	Events() <-chan stream.Event
	Close() error
}

// Transport opens streams at signed URLs.
type Transport interface {
	Open(ctx context.Context, signedURL string) (Stream, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, signedURL string) (Stream, error)

func (f TransportFunc) Open(ctx context.Context, signedURL string) (Stream, error) {
	return f(ctx, signedURL)
}

// WebSocketTransport opens streams with the websocket dialer.
func WebSocketTransport(d *stream.Dialer) Transport {
	return TransportFunc(func(ctx context.Context, signedURL string) (Stream, error) {
		conn, err := d.Open(ctx, signedURL)
		if err != nil {
			return nil, err
		}
		return conn, nil
	})
}
