package registry

import (
	"encoding/json"
	"net/http"

	"github.com/bnema/zerowrap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/bnema/ocistore/internal/adapters/dto"
	"github.com/bnema/ocistore/internal/adapters/in/http/middleware"
	"github.com/bnema/ocistore/internal/adapters/out/telemetry"
	"github.com/bnema/ocistore/internal/boundaries/out"
)

// RateLimitMiddleware creates rate limiting middleware for the registry API.
// It uses the provided RateLimiter interfaces for global and per-IP limits.
// IP extraction (trusted proxy handling) remains in this HTTP adapter.
func RateLimitMiddleware(
	globalLimiter out.RateLimiter,
	ipLimiter out.RateLimiter,
	trustedProxies []string,
	metrics *telemetry.Metrics,
	log zerowrap.Logger,
) func(http.Handler) http.Handler {
	// If either limiter is nil, pass through without rate limiting
	if globalLimiter == nil || ipLimiter == nil {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	trustedNets := middleware.ParseTrustedProxies(trustedProxies)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if !globalLimiter.Allow(ctx, "global") {
				rejectRateLimited(w, r, "global", metrics, log)
				return
			}

			ip := middleware.GetClientIP(r, trustedNets)
			if !ipLimiter.Allow(ctx, "ip:"+ip) {
				rejectRateLimited(w, r, "ip", metrics, log)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func rejectRateLimited(w http.ResponseWriter, r *http.Request, scope string, metrics *telemetry.Metrics, log zerowrap.Logger) {
	if metrics != nil {
		metrics.RateLimited.Add(r.Context(), 1, metric.WithAttributes(attribute.String("scope", scope)))
	}

	log.Debug().
		Str(zerowrap.FieldLayer, "adapter").
		Str(zerowrap.FieldAdapter, "http").
		Str(zerowrap.FieldPath, r.URL.Path).
		Str("scope", scope).
		Msg("request rate limited")

	sendRateLimitError(w)
}

// sendRateLimitError sends an HTTP 429 response in registry error format.
func sendRateLimitError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(apiVersionHeader, apiVersion)
	w.Header().Set("Retry-After", "1")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(dto.NewRegistryError("TOOMANYREQUESTS", "rate limit exceeded"))
}
