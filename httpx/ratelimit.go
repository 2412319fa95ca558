package httpx

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiterConfig defines per-host request pacing.
type RateLimiterConfig struct {
	// DefaultRPS is the requests-per-second applied to hosts without an
	// explicit rate. 0 disables limiting for those hosts.
	DefaultRPS float64
	// PerHost maps hostnames to RPS values. A value of 0 disables
	// limiting for that host.
	PerHost map[string]float64
}

// DefaultRateLimiterConfig returns conservative rates for the upstream
// platforms the service talks to.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		DefaultRPS: 2.0,
		PerHost: map[string]float64{
			"www.googleapis.com":  5.0, // Data API is quota-limited, not rate-limited
			"www.youtube.com":     2.5,
			"rumble.com":          2.0,
			"www.bitchute.com":    2.0,
			"api.dailymotion.com": 5.0,
		},
	}
}

// RateLimiter paces requests per host using token buckets.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	config   RateLimiterConfig
}

// NewRateLimiter creates a rate limiter with the given configuration.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.PerHost == nil {
		cfg.PerHost = make(map[string]float64)
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		config:   cfg,
	}
}

// Wait blocks until the host's rate limit allows a request, or the
// context is done.
func (rl *RateLimiter) Wait(ctx context.Context, urlStr string) error {
	if rl == nil {
		return nil
	}
	limiter := rl.limiterFor(hostOf(urlStr))
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

// limiterFor returns the limiter for a host, creating it on first use.
// A nil return means the host is not limited.
func (rl *RateLimiter) limiterFor(host string) *rate.Limiter {
	rps := rl.rps(host)
	if rps <= 0 {
		return nil
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, ok := rl.limiters[host]; ok {
		return limiter
	}
	limiter := rate.NewLimiter(rate.Limit(rps), 1)
	rl.limiters[host] = limiter
	return limiter
}

func (rl *RateLimiter) rps(host string) float64 {
	if rps, ok := rl.config.PerHost[host]; ok {
		return rps
	}
	return rl.config.DefaultRPS
}

// hostOf extracts the hostname (without port) from a URL string.
func hostOf(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	host := u.Host
	if idx := strings.IndexByte(host, ':'); idx != -1 {
		host = host[:idx]
	}
	return host
}
