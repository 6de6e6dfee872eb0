package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/phrazzld/nudge-api/internal/api/shared"
	"golang.org/x/time/rate"
)

const (
	// limiters idle this long are dropped once the table grows past maxLimiters
	limiterIdleTTL = 10 * time.Minute
	maxLimiters    = 10000
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles requests per authenticated user, falling back to the
// remote address for anonymous requests.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

// NewRateLimiter allows perMinute requests per key per minute, with bursts of
// the same size. A perMinute of zero disables limiting.
func NewRateLimiter(perMinute int) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		burst:    perMinute,
		now:      time.Now,
	}
	if perMinute > 0 {
		rl.limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	return rl
}

// getLimiter gets or creates the limiter for key.
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if entry, ok := rl.limiters[key]; ok {
		entry.lastSeen = now
		return entry.limiter
	}

	if len(rl.limiters) >= maxLimiters {
		for k, entry := range rl.limiters {
			if now.Sub(entry.lastSeen) > limiterIdleTTL {
				delete(rl.limiters, k)
			}
		}
	}

	limiter := rate.NewLimiter(rl.limit, rl.burst)
	rl.limiters[key] = &limiterEntry{limiter: limiter, lastSeen: now}
	return limiter
}

// Allow reports whether a request for key may proceed now.
func (rl *RateLimiter) Allow(key string) bool {
	if rl.burst <= 0 {
		return true
	}
	return rl.getLimiter(key).AllowN(rl.now(), 1)
}

// Middleware rejects requests over the limit with 429 Too Many Requests.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if userID, ok := shared.UserIDFromContext(r.Context()); ok {
			key = "user:" + userID.String()
		}

		if !rl.Allow(key) {
			if rl.limit > 0 {
				retryAfter := time.Duration(float64(time.Second) / float64(rl.limit))
				w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
			}
			shared.RespondWithErrorAndLog(w, r, http.StatusTooManyRequests, "Too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
