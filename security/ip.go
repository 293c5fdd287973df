package security

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP extracts the client IP address from the request.
//
// X-Forwarded-For and X-Real-IP are only consulted when trustProxy is set.
// trustedProxyCount is the number of proxies we control in front of the
// server; zero is treated as one. Each proxy is assumed to append the address
// of its peer, so the outermost trusted proxy wrote the client address.
func GetClientIP(r *http.Request, trustProxy bool, trustedProxyCount int) string {
	if trustProxy {
		if ip := clientIPFromXFF(r.Header.Get("X-Forwarded-For"), trustedProxyCount); ip != "" {
			return ip
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(ip) != nil {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// IsForwardedHTTPS reports whether a trusted proxy terminated TLS for this request.
func IsForwardedHTTPS(r *http.Request, trustProxy bool) bool {
	if !trustProxy {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https")
}

// clientIPFromXFF picks the entry appended by the outermost trusted proxy:
// "spoofed, client, proxy2" with two trusted proxies yields "client". A header
// shorter than the proxy chain is ignored.
func clientIPFromXFF(xff string, trustedProxyCount int) string {
	if xff == "" {
		return ""
	}
	if trustedProxyCount <= 0 {
		trustedProxyCount = 1
	}

	ips := strings.Split(xff, ",")
	idx := len(ips) - trustedProxyCount
	if idx < 0 {
		return ""
	}

	ip := strings.TrimSpace(ips[idx])
	if net.ParseIP(ip) == nil {
		return ""
	}
	return ip
}
