package middleware

import (
	"net"
	"net/http"
	"net/netip"
)

// SecurityHeaders adds standard security headers to registry responses. The
// registry serves no HTML, so the content security policy denies everything.
// HSTS is set for TLS connections, and for X-Forwarded-Proto: https only when
// the request comes from a trusted proxy.
func SecurityHeaders(trustedNets []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-XSS-Protection", "1; mode=block")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

			if servedOverTLS(r, trustedNets) {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}

func servedOverTLS(r *http.Request, trustedNets []netip.Prefix) bool {
	if r.TLS != nil {
		return true
	}
	if r.Header.Get("X-Forwarded-Proto") != "https" {
		return false
	}
	remoteIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		remoteIP = r.RemoteAddr
	}
	return IsTrustedProxy(remoteIP, trustedNets)
}
