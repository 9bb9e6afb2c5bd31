package handlers

import (
	"net"
	"net/http"
	"strings"
)

// Rate limit scopes. Each scope keeps its own budget per client address.
const (
	scopeAuth          = "auth"
	scopePasswordReset = "password-reset"
	scopeMetadata      = "metadata"
)

// RateLimiter decides whether the caller identified by key may proceed.
type RateLimiter interface {
	Allow(key string) bool
}

// allowRequest reports whether r fits the budget of scope. A nil limiter
// admits everything.
func allowRequest(limiter RateLimiter, r *http.Request, scope string) bool {
	if limiter == nil {
		return true
	}
	return limiter.Allow(scope + ":" + clientIP(r))
}

// clientIP picks the caller address: the first X-Forwarded-For hop, then
// X-Real-IP, then the connection peer. Header values that are not IP
// addresses are ignored so garbage cannot mint fresh budgets.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := parseIP(first); ip != "" {
			return ip
		}
	}
	if ip := parseIP(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}

	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	return addr
}

func parseIP(raw string) string {
	ip := net.ParseIP(strings.TrimSpace(raw))
	if ip == nil {
		return ""
	}
	return ip.String()
}
