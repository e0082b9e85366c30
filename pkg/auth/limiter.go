package auth

import (
	"sync"

	"golang.org/x/time/rate"
)

// Request budget per authenticated subject when the config leaves rate
// limiting unset.
const (
	defaultRPS   = 5
	defaultBurst = 10
)

// limiterPool hands out one token bucket per subject. Buckets are
// created lazily on first request and never expire; the subject space
// is bounded by the user base.
type limiterPool struct {
	rps   rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

func newLimiterPool(cfg SecConfig) *limiterPool {
	rps := cfg.RPS
	if rps <= 0 {
		rps = defaultRPS
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	return &limiterPool{
		rps:     rate.Limit(rps),
		burst:   burst,
		buckets: make(map[string]*rate.Limiter),
	}
}

// Allow consumes one token from the subject's bucket.
func (p *limiterPool) Allow(subject string) bool {
	p.mu.Lock()
	b, ok := p.buckets[subject]
	if !ok {
		b = rate.NewLimiter(p.rps, p.burst)
		p.buckets[subject] = b
	}
	p.mu.Unlock()
	return b.Allow()
}
