package web

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// rateLimiter keeps one token bucket per client IP. Each bucket refills
// perWindow tokens over window and holds at most perWindow.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	window   time.Duration
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiter(perWindow int, window time.Duration) *rateLimiter {
	if perWindow <= 0 {
		perWindow = 1
	}
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Every(window / time.Duration(perWindow)),
		burst:    perWindow,
		window:   window,
	}
	go rl.cleanup()
	return rl
}

// cleanup drops visitors idle for two windows.
func (rl *rateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()
	for range ticker.C {
		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if time.Since(v.lastSeen) > 2*rl.window {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	rl.mu.Unlock()

	return v.limiter.Allow()
}

// middleware rate limits by r.RemoteAddr, which TrustedRealIP has already
// resolved.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(r.RemoteAddr) {
			slog.Warn("rate limit exceeded", "path", r.URL.Path, "ip", r.RemoteAddr)
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window/time.Duration(rl.burst)/time.Second)+1))
			respondStatus(w, r, http.StatusTooManyRequests, "rate limit exceeded", "UP004")
			return
		}
		next.ServeHTTP(w, r)
	})
}
