package middleware

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ParseTrustedProxies converts IP addresses and CIDR ranges into prefixes.
// A single address becomes a /32 or /128 prefix. Unparseable entries are
// skipped.
func ParseTrustedProxies(proxies []string) []netip.Prefix {
	var prefixes []netip.Prefix
	for _, proxy := range proxies {
		proxy = strings.TrimSpace(proxy)
		if prefix, err := netip.ParsePrefix(proxy); err == nil {
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		if addr, err := netip.ParseAddr(proxy); err == nil {
			prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
		}
	}
	return prefixes
}

// IsTrustedProxy reports whether ip falls inside one of the prefixes.
func IsTrustedProxy(ip string, trusted []netip.Prefix) bool {
	if len(trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// GetClientIP returns the address of the client that sent r. X-Forwarded-For
// and X-Real-IP are honored only when the direct peer is a trusted proxy and
// the forwarded value is a valid address.
func GetClientIP(r *http.Request, trusted []netip.Prefix) string {
	remoteIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		remoteIP = r.RemoteAddr
	}

	if !IsTrustedProxy(remoteIP, trusted) {
		return remoteIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); isIP(ip) {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); isIP(xri) {
		return xri
	}

	return remoteIP
}

func isIP(s string) bool {
	_, err := netip.ParseAddr(s)
	return err == nil
}
