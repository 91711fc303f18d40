package httpx

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// clientIPHeaders are consulted, in order, after X-Forwarded-For.
var clientIPHeaders = []string{
	"X-Client-IP",
	"CF-Connecting-IP",
	"Fastly-Client-IP",
	"True-Client-IP",
	"X-Real-IP",
	"X-Cluster-Client-IP",
}

// ClientIP returns the caller's address taken from RemoteAddr. Behind a
// trusted proxy, RealIP rewrites RemoteAddr before this runs.
func ClientIP(r *http.Request) string {
	if ip, ok := parseIP(r.RemoteAddr); ok {
		return ip
	}
	return ""
}

// ForwardedIP returns the client address reported by proxy headers: the
// first valid X-Forwarded-For entry, then well-known proxy headers. Header
// values that do not parse as an IP are skipped.
func ForwardedIP(r *http.Request) (string, bool) {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for part := range strings.SplitSeq(xff, ",") {
			if ip, ok := parseIP(part); ok {
				return ip, true
			}
		}
	}

	for _, h := range clientIPHeaders {
		if ip, ok := parseIP(r.Header.Get(h)); ok {
			return ip, true
		}
	}
	return "", false
}

// RealIP replaces RemoteAddr with ForwardedIP when the headers carry one.
// Install it only when every request arrives through a proxy that sets
// these headers; otherwise callers pick their own address.
func RealIP() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ip, ok := ForwardedIP(r); ok {
				r = r.Clone(r.Context())
				r.RemoteAddr = net.JoinHostPort(ip, "0")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// parseIP accepts a bare address or host:port.
func parseIP(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if addr, err := netip.ParseAddr(s); err == nil {
		return addr.Unmap().String(), true
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		if addr, err := netip.ParseAddr(host); err == nil {
			return addr.Unmap().String(), true
		}
	}
	return "", false
}
