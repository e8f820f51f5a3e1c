package handlers

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/kedevs/blogapi/config"
	"github.com/kedevs/blogapi/internal/logger"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

// ipRateLimiter keeps one token bucket per client IP.
type ipRateLimiter struct {
	rate  rate.Limit
	burst int
	now   func() time.Time

	mu          sync.Mutex
	limiters    map[string]*ipLimiter
	lastCleanup time.Time
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPRateLimiter(requests int, window time.Duration) *ipRateLimiter {
	return &ipRateLimiter{
		rate:        rate.Limit(float64(requests) / window.Seconds()),
		burst:       requests,
		now:         time.Now,
		limiters:    make(map[string]*ipLimiter),
		lastCleanup: time.Now(),
	}
}

// reserve takes a token for key and reports how long the caller must wait
// when none is available.
func (l *ipRateLimiter) reserve(key string) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, ok := l.limiters[key]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastSeen = now

	if now.Sub(l.lastCleanup) > limiterIdleTTL {
		for k, e := range l.limiters {
			if now.Sub(e.lastSeen) > limiterIdleTTL {
				delete(l.limiters, k)
			}
		}
		l.lastCleanup = now
	}

	if entry.limiter.AllowN(now, 1) {
		return 0, true
	}
	reservation := entry.limiter.ReserveN(now, 1)
	delay := reservation.DelayFrom(now)
	reservation.CancelAt(now)
	return delay, false
}

// RateLimit limits requests per client IP, keyed on RemoteAddr. RemoteAddr
// only reflects forwarding headers when the router runs middleware.RealIP.
// A non-positive request count disables it.
func RateLimit(cfg config.RateLimitConfig) func(http.Handler) http.Handler {
	if cfg.AuthRequests <= 0 || cfg.AuthWindow <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	limiter := newIPRateLimiter(cfg.AuthRequests, cfg.AuthWindow)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIP(r)
			delay, ok := limiter.reserve(key)
			if !ok {
				retryAfter := max(int(delay.Round(time.Second).Seconds()), 1)
				logger.FromContext(r.Context()).WarnContext(r.Context(), "rate limit exceeded",
					slog.String("client_ip", key),
					slog.Int("retry_after", retryAfter),
				)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
