package middleware

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the caller address. Proxy headers are only honoured when
// trustProxy is set, in the order CF-Connecting-IP, X-Forwarded-For (first
// entry), X-Real-IP.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if v := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); v != "" {
			return hostNoPort(v)
		}
		if v := firstForwardedFor(r.Header.Get("X-Forwarded-For")); v != "" {
			return hostNoPort(v)
		}
		if v := strings.TrimSpace(r.Header.Get("X-Real-IP")); v != "" {
			return hostNoPort(v)
		}
	}
	return hostNoPort(r.RemoteAddr)
}

func hostNoPort(s string) string {
	if h, _, err := net.SplitHostPort(s); err == nil {
		return h
	}
	return s
}

func firstForwardedFor(xff string) string {
	if i := strings.IndexByte(xff, ','); i >= 0 {
		xff = xff[:i]
	}
	return strings.TrimSpace(xff)
}
