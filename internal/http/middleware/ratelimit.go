package middleware

import (
	"net/http"
	"sync"
	"time"
)

// Limits configures the per-IP request allowances for a route. A zero
// value for any window disables that window.
type Limits struct {
	PerMinute int
	PerHour   int
	PerDay    int
}

// RateLimiter tracks request counts per IP across fixed minute/hour/day
// windows.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientWindows
	limits  Limits
	now     func() time.Time
}

type clientWindows struct {
	minute   window
	hour     window
	day      window
	lastSeen time.Time
}

type window struct {
	start time.Time
	count int
}

// NewRateLimiter creates a limiter enforcing the given per-IP limits.
func NewRateLimiter(limits Limits) *RateLimiter {
	rl := &RateLimiter{
		clients: make(map[string]*clientWindows),
		limits:  limits,
		now:     time.Now,
	}
	// Periodically evict stale entries to prevent memory growth.
	go rl.cleanup()
	return rl
}

// Allow returns true if the request from ip is within every configured window.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	c, ok := rl.clients[ip]
	if !ok {
		c = &clientWindows{}
		rl.clients[ip] = c
	}
	c.lastSeen = now

	if !c.minute.allow(now, time.Minute, rl.limits.PerMinute) {
		return false
	}
	if !c.hour.allow(now, time.Hour, rl.limits.PerHour) {
		return false
	}
	if !c.day.allow(now, 24*time.Hour, rl.limits.PerDay) {
		return false
	}

	c.minute.count++
	c.hour.count++
	c.day.count++
	return true
}

func (w *window) allow(now time.Time, span time.Duration, limit int) bool {
	if limit <= 0 {
		return true
	}
	if now.Sub(w.start) >= span {
		w.start = now
		w.count = 0
	}
	return w.count < limit
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		rl.mu.Lock()
		cutoff := rl.now().Add(-25 * time.Hour)
		for ip, c := range rl.clients {
			if c.lastSeen.Before(cutoff) {
				delete(rl.clients, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// RateLimit returns middleware rejecting requests over the configured
// limits. When onLimit is nil, a plain 429 text response is written;
// routes with a JSON response contract pass their own payload writer.
func RateLimit(limits Limits, onLimit http.HandlerFunc) func(http.Handler) http.Handler {
	limiter := NewRateLimiter(limits)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := r.RemoteAddr
			// Prefer X-Real-Ip set by chi's RealIP middleware.
			if xri := r.Header.Get("X-Real-Ip"); xri != "" {
				ip = xri
			}
			if !limiter.Allow(ip) {
				if onLimit != nil {
					onLimit(w, r)
					return
				}
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
