package devserver

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/telekom/reauth/pkg/metrics"
)

// RateLimit bounds token endpoint calls per client IP. A zero Rate
// disables limiting.
type RateLimit struct {
	// Rate is the number of token requests allowed per second
	Rate float64
	// Burst is the maximum number of requests allowed at once
	Burst int
	// MaxAge is how long an idle client is remembered
	MaxAge time.Duration
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// clientLimiter tracks one token bucket per client key. Stale buckets are
// pruned on access instead of by a background goroutine so a server that
// is dropped without shutdown leaks nothing.
type clientLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	cfg     RateLimit
	now     func() time.Time
}

func newClientLimiter(cfg RateLimit) *clientLimiter {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 5 * time.Minute
	}
	return &clientLimiter{
		entries: make(map[string]*limiterEntry),
		cfg:     cfg,
		now:     time.Now,
	}
}

func (l *clientLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for k, e := range l.entries {
		if now.Sub(e.lastAccess) > l.cfg.MaxAge {
			delete(l.entries, k)
		}
	}

	e, ok := l.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(l.cfg.Rate), l.cfg.Burst)}
		l.entries[key] = e
	}
	e.lastAccess = now
	return e.limiter.AllowN(now, 1)
}

func (l *clientLimiter) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *clientLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.allow(c.ClientIP()) {
			metrics.ServerRateLimited.WithLabelValues(c.FullPath()).Inc()
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"message": "Too many token requests, please try again later",
			})
			return
		}
		c.Next()
	}
}
