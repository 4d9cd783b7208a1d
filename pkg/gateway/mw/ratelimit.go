package mw

import (
	"net/http"
	"strconv"
	"time"

	"github.com/vango-go/vai-convai/pkg/core"
	"github.com/vango-go/vai-convai/pkg/gateway/config"
	"github.com/vango-go/vai-convai/pkg/gateway/principal"
	"github.com/vango-go/vai-convai/pkg/gateway/ratelimit"
)

func RateLimit(cfg config.Config, limiter *ratelimit.Limiter, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Probe endpoints must remain cheap and reliable.
		if isProbePath(r.URL.Path) || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		who := principal.Resolve(r, cfg)
		dec := limiter.AcquireRequest(who.Key, time.Now())
		if !dec.Allowed {
			reqID, _ := RequestIDFrom(r.Context())
			ce := core.NewRateLimitError("rate limit exceeded", dec.RetryAfter)
			ce.RequestID = reqID
			if dec.RetryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(dec.RetryAfter))
			} else {
				ce.RetryAfter = nil
			}
			writeJSONError(w, http.StatusTooManyRequests, ce)
			return
		}
		defer dec.Permit.Release()

		next.ServeHTTP(w, r)
	})
}
