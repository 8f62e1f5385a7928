package middleware

import (
	"encoding/json"
	"net/http"
	"net/netip"

	"github.com/bnema/zerowrap"

	"github.com/bnema/ocistore/internal/adapters/dto"
)

// localhostNets contains IPv4 and IPv6 loopback ranges that are always allowed.
var localhostNets = ParseTrustedProxies([]string{"127.0.0.0/8", "::1"})

// RegistryCIDRAllowlist returns middleware that restricts access to the given
// CIDR ranges. Loopback clients are always allowed. An empty allowedNets
// slice lets all traffic through.
func RegistryCIDRAllowlist(allowedNets, trustedNets []netip.Prefix, log zerowrap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(allowedNets) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := GetClientIP(r, trustedNets)

			if IsTrustedProxy(clientIP, localhostNets) || IsTrustedProxy(clientIP, allowedNets) {
				next.ServeHTTP(w, r)
				return
			}

			log.Warn().
				Str(zerowrap.FieldLayer, "adapter").
				Str(zerowrap.FieldAdapter, "http").
				Str(zerowrap.FieldMethod, r.Method).
				Str(zerowrap.FieldPath, r.URL.Path).
				Str(zerowrap.FieldClientIP, clientIP).
				Msg("registry access denied by CIDR allowlist")

			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Docker-Distribution-API-Version", "registry/2.0")
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(dto.NewRegistryError("DENIED", "access to the registry is not allowed from " + clientIP))
		})
	}
}
