package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/quitaai/cobranca-ai-platform/pkg/logging"
)

const (
	bucketSweepInterval = 5 * time.Minute
	bucketStaleAfter    = 10 * time.Minute
)

// RateLimiter throttles inbound webhook traffic per source IP with a token
// bucket, so a provider retry storm cannot flood the engine with turns.
type RateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*tokenBucket
	perSecond float64
	burst     float64
}

type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
}

// NewRateLimiter allows perSecond requests sustained and burst requests at
// peak, per source.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		buckets:   make(map[string]*tokenBucket),
		perSecond: perSecond,
		burst:     float64(burst),
	}
	go rl.sweepStale()
	return rl
}

// Allow reports whether one more request from source fits the budget.
func (rl *RateLimiter) Allow(source string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, ok := rl.buckets[source]
	if !ok {
		b = &tokenBucket{tokens: rl.burst, lastRefill: now}
		rl.buckets[source] = b
	}

	b.tokens += now.Sub(b.lastRefill).Seconds() * rl.perSecond
	if b.tokens > rl.burst {
		b.tokens = rl.burst
	}
	b.lastRefill = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// sweepStale drops buckets for sources that went quiet, keeping the map
// bounded under churning webhook source IPs.
func (rl *RateLimiter) sweepStale() {
	ticker := time.NewTicker(bucketSweepInterval)
	defer ticker.Stop()
	for range ticker.C {
		rl.mu.Lock()
		cutoff := time.Now().Add(-bucketStaleAfter)
		for source, b := range rl.buckets {
			if b.lastRefill.Before(cutoff) {
				delete(rl.buckets, source)
			}
		}
		rl.mu.Unlock()
	}
}

// RateLimit rejects callers over the limit with 429 and a Retry-After hint
// so the provider backs off instead of hammering the webhook.
func RateLimit(perSecond float64, burst int, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	limiter := NewRateLimiter(perSecond, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			source := r.RemoteAddr
			// Prefer X-Real-Ip set by chi's RealIP middleware.
			if xri := r.Header.Get("X-Real-Ip"); xri != "" {
				source = xri
			}
			if !limiter.Allow(source) {
				logger.Warn("webhook rate limit exceeded", "source", source, "path", r.URL.Path)
				w.Header().Set("Retry-After", "1")
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
