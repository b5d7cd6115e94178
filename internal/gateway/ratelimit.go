package gateway

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// ipRateLimiter is a fixed-window counter per remote address. Polling agents
// issue a few requests per interval, so limits are meant to be generous.
type ipRateLimiter struct {
	mu        sync.Mutex
	entries   map[string]*ipEntry
	limit     int
	window    time.Duration
	lastPrune time.Time
	now       func() time.Time
}

type ipEntry struct {
	resetAt time.Time
	count   int
}

func newIPRateLimiter(limit int, window time.Duration) *ipRateLimiter {
	return &ipRateLimiter{
		entries: map[string]*ipEntry{},
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

func (l *ipRateLimiter) allow(ip string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastPrune) > l.window {
		for k, e := range l.entries {
			if now.After(e.resetAt) {
				delete(l.entries, k)
			}
		}
		l.lastPrune = now
	}

	e := l.entries[ip]
	if e == nil || now.After(e.resetAt) {
		l.entries[ip] = &ipEntry{resetAt: now.Add(l.window), count: 1}
		return true
	}
	if e.count >= l.limit {
		return false
	}
	e.count++
	return true
}

func (l *ipRateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if ip == "" {
			ip = "unknown"
		}
		if !l.allow(ip) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
