package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// Principal is an authenticated gateway caller.
type Principal struct {
	APIKey string
}

// KeyID is a short, log-safe fingerprint of the caller's key.
func (p *Principal) KeyID() string {
	if p == nil || p.APIKey == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(p.APIKey))
	return "key_" + hex.EncodeToString(sum[:6])
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(*Principal)
	return p, ok && p != nil
}

// ParseBearer extracts the token from an Authorization header. The scheme is
// matched case-insensitively.
func ParseBearer(r *http.Request) (string, bool) {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(authz, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}
