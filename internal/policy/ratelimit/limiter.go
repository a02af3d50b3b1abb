// Package ratelimit throttles fetches with a token bucket per host.
package ratelimit

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/quotes-crawler/internal/metrics"
)

// Limiter manages per-host rate limits.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
	jitter       time.Duration
}

// Config holds rate limiter configuration. A non-positive DefaultRPS disables
// throttling.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
	// Jitter adds a random pause in [0, Jitter) after each grant.
	Jitter time.Duration
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.DefaultRPS)
	if cfg.DefaultRPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  r,
		defaultBurst: burst,
		jitter:       cfg.Jitter,
	}
}

// Wait blocks until a token is available for the URL's host, respecting the context.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	domain := hostOf(rawURL)
	l.mu.Lock()
	limiter, exists := l.limiters[domain]
	if !exists {
		limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.limiters[domain] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if l.jitter > 0 {
		timer := time.NewTimer(rand.N(l.jitter))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("rate limit jitter: %w", ctx.Err())
		case <-timer.C:
		}
	}
	// Immediate grants are not interesting.
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(domain, waited)
	}
	return nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}
